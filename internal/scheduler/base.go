package scheduler

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sukryu/stellane/internal/logger"
	"github.com/sukryu/stellane/internal/stellaneerr"
	"github.com/sukryu/stellane/internal/task"
)

// Config tunes the common worker-pool behavior shared by every policy.
type Config struct {
	WorkerCount     int
	IdleTimeout     time.Duration
	StealingEnabled bool
	QueueCap        int // 0 = unbounded; schedule fails with Backpressure above this
	OnTaskError     func(taskID string, err error)

	// CPUAffinity maps worker id to its candidate CPU core set. A worker
	// with no entry runs unpinned. Honored on Linux via sched_setaffinity;
	// a no-op elsewhere (see affinity_linux.go / affinity_other.go).
	CPUAffinity map[int][]int
}

func DefaultConfig() Config {
	return Config{
		WorkerCount: 4,
		IdleTimeout: 50 * time.Millisecond,
	}
}

// baseScheduler holds the state and worker main-loop behavior shared by
// every placement policy: worker lifecycle, pause/resume, and the
// fetch-or-steal-or-park loop. Concrete policies embed it and supply only
// Schedule/ScheduleBatch/GetNextTask/TryStealWork/RebalanceLoad, per the
// "common interface, differ only in placement and dispatch" shape.
type baseScheduler struct {
	cfg     Config
	self    Scheduler // set by the concrete policy constructor to itself
	workers []*Worker
	wg      sync.WaitGroup
	stopCh  chan struct{}
	running atomic.Bool
}

func newBase(cfg Config) *baseScheduler {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 50 * time.Millisecond
	}
	b := &baseScheduler{cfg: cfg}
	for i := 0; i < cfg.WorkerCount; i++ {
		b.workers = append(b.workers, newWorker(i))
	}
	return b
}

func (b *baseScheduler) Start(ctx context.Context) error {
	if !b.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	b.stopCh = make(chan struct{})

	log := logger.WithComponent("scheduler")
	log.Info().Int("workers", len(b.workers)).Msg("scheduler starting")

	for _, w := range b.workers {
		b.wg.Add(1)
		go b.runWorker(ctx, w)
	}
	return nil
}

func (b *baseScheduler) Stop(timeout time.Duration) error {
	if !b.running.CompareAndSwap(true, false) {
		return nil
	}
	close(b.stopCh)

	done := make(chan struct{})
	go func() { b.wg.Wait(); close(done) }()

	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	select {
	case <-done:
	case <-time.After(timeout):
		logger.WithComponent("scheduler").Warn().Msg("scheduler shutdown timed out, abandoning running tasks")
	}
	return nil
}

func (b *baseScheduler) WorkerCount() int { return len(b.workers) }

func (b *baseScheduler) Workers() []WorkerStats {
	stats := make([]WorkerStats, len(b.workers))
	for i, w := range b.workers {
		stats[i] = WorkerStats{
			ID:               w.ID,
			BoundCore:        w.BoundCore,
			NUMANode:         w.NUMANode,
			CurrentTaskCount: w.CurrentTaskCount(),
			ProcessedCount:   w.ProcessedCount(),
			LastActivity:     w.LastActivity(),
			Paused:           w.Paused(),
		}
	}
	return stats
}

func (b *baseScheduler) workerByID(id int) *Worker {
	if id < 0 || id >= len(b.workers) {
		return nil
	}
	return b.workers[id]
}

func (b *baseScheduler) PauseWorker(id int) error {
	w := b.workerByID(id)
	if w == nil {
		return ErrUnknownWorker
	}
	w.paused.Store(true)
	return nil
}

func (b *baseScheduler) ResumeWorker(id int) error {
	w := b.workerByID(id)
	if w == nil {
		return ErrUnknownWorker
	}
	w.paused.Store(false)
	return nil
}

func (b *baseScheduler) TaskCompleted(workerID int, taskID string, duration time.Duration, success bool) {
	w := b.workerByID(workerID)
	if w == nil {
		return
	}
	w.currentTaskCount.Add(-1)
	w.processedCount.Add(1)
	w.touch()
}

// runWorker implements the worker main loop from the component design:
// pull local, else steal if enabled, else park bounded by idle_timeout;
// execute while tracking current_task_count; record completion.
func (b *baseScheduler) runWorker(ctx context.Context, w *Worker) {
	defer b.wg.Done()

	if cores, ok := b.cfg.CPUAffinity[w.ID]; ok && len(cores) > 0 {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		if err := PinWorker(w.ID, cores); err == nil {
			w.BoundCore = cores[0]
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stopCh:
			return
		default:
		}

		if w.Paused() {
			if !b.park(ctx) {
				return
			}
			continue
		}

		st, ok := b.self.GetNextTask(w.ID)
		if !ok && b.cfg.StealingEnabled {
			st, ok = b.self.TryStealWork(w.ID)
		}
		if !ok {
			if !b.park(ctx) {
				return
			}
			continue
		}

		w.currentTaskCount.Add(1)
		w.touch()
		st.WorkerID = w.ID

		start := time.Now()
		_ = st.Task.Start(ctx)
		success := st.Task.State() == task.StateCompleted

		if !success {
			if _, taskErr := st.Task.TryResult(); taskErr != nil && b.cfg.OnTaskError != nil {
				b.cfg.OnTaskError(st.Task.ID, taskErr)
			}
		}
		b.self.TaskCompleted(w.ID, st.Task.ID, time.Since(start), success)
	}
}

// park blocks the worker goroutine for up to IdleTimeout, returning false
// if the scheduler is stopping.
func (b *baseScheduler) park(ctx context.Context) bool {
	select {
	case <-time.After(b.cfg.IdleTimeout):
		return true
	case <-b.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}

// checkCapacity enforces the spec's queue-cap Backpressure rule; depth is
// supplied by the caller since each policy tracks its own queue length.
func checkCapacity(cap, depth int) error {
	if cap > 0 && depth >= cap {
		return stellaneerr.ErrBackpressure
	}
	return nil
}
