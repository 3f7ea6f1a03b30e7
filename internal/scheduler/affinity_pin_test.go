package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sukryu/stellane/internal/task"
)

// TestBaseScheduler_CPUAffinityDoesNotBlockStart checks that a configured
// CPUAffinity map never prevents a worker from starting its main loop,
// regardless of whether the underlying pin call succeeds on this
// platform/sandbox.
func TestBaseScheduler_CPUAffinityDoesNotBlockStart(t *testing.T) {
	cfg := Config{WorkerCount: 1, IdleTimeout: time.Millisecond, CPUAffinity: map[int][]int{0: {0}}}
	s := NewFIFOScheduler(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))
	defer s.Stop(time.Second)

	completed := make(chan struct{})
	tk := task.New("pinned", func(ctx context.Context) (any, error) { return nil, nil })
	tk.OnComplete(func(*task.Task) { close(completed) })
	require.NoError(t, s.Schedule(&SchedulableTask{Task: tk}))

	select {
	case <-completed:
	case <-time.After(5 * time.Second):
		t.Fatal("task scheduled on a cpu-pinned worker never completed")
	}
}
