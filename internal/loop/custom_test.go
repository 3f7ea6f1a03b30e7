package loop

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sukryu/stellane/internal/task"
)

func TestCustomBackend_WorkStealingBalancesLoad(t *testing.T) {
	const workers = 4
	const tasks = 1000

	b := NewCustomBackend(DefaultConfig(), workers, 1, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var counts [workers]int64
	var completed atomic.Int64
	var wg sync.WaitGroup
	wg.Add(tasks)

	go b.Run(ctx)

	// Push every task onto worker 0's deque directly, bypassing
	// least-loaded placement, to exercise stealing under imbalance.
	w0 := b.workers[0]
	for i := 0; i < tasks; i++ {
		tk := task.New("spin", func(ctx context.Context) (any, error) {
			time.Sleep(time.Millisecond)
			return nil, nil
		})
		tk.OnComplete(func(*task.Task) {
			completed.Add(1)
			wg.Done()
		})
		w0.mu.Lock()
		w0.deque = append(w0.deque, tk)
		w0.mu.Unlock()
	}
	b.wakeWorker(w0)

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatalf("tasks did not complete in time, completed=%d", completed.Load())
	}

	require.Equal(t, int64(tasks), completed.Load())

	var sum, sumSq float64
	for i, w := range b.workers {
		c := w.processed.Load()
		counts[i] = c
		sum += float64(c)
	}
	mean := sum / float64(workers)
	for _, c := range counts {
		d := float64(c) - mean
		sumSq += d * d
	}
	stddev := math.Sqrt(sumSq / float64(workers))
	assert.LessOrEqual(t, stddev/mean, 0.3, "per-worker completion counts: %v", counts)
}

func TestCustomBackend_ScheduleUsesLeastLoaded(t *testing.T) {
	b := NewCustomBackend(DefaultConfig(), 2, 1, 2)
	b.workers[0].deque = []*task.Task{task.New("x", func(ctx context.Context) (any, error) { return nil, nil })}

	tk := task.New("y", func(ctx context.Context) (any, error) { return nil, nil })
	require.NoError(t, b.Schedule(tk))

	assert.Equal(t, 1, b.workers[1].length())
}
