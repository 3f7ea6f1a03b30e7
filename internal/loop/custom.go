package loop

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sukryu/stellane/internal/logger"
	"github.com/sukryu/stellane/internal/task"
)

// CustomBackend is the custom multi-threaded backend: one dispatcher loop
// (handling timers and deferred work) plus a pool of task-executing
// workers balanced by a work-stealing deque, the same load-balancing shape
// internal/scheduler uses for its own Work-stealing policy — duplicated
// here rather than imported, since the loop layer sits below the scheduler
// and must not depend on it. The dispatcher runs with no readiness source:
// I/O registrations are recorded, but their handlers are never invoked.
type CustomBackend struct {
	core *Core

	workers []*customWorker
	wg      sync.WaitGroup

	stealThreshold   int
	maxStealAttempts int
}

type customWorker struct {
	id int

	mu    sync.Mutex
	deque []*task.Task

	wake      chan struct{}
	processed atomic.Int64
}

// NewCustomBackend creates workerCount task-executing workers atop a
// dispatcher Core; Run starts them. The dispatcher itself owns timers and
// deferred work; only ready tasks are fanned out to the worker pool.
func NewCustomBackend(cfg Config, workerCount, stealThreshold, maxStealAttempts int) *CustomBackend {
	if workerCount <= 0 {
		workerCount = 1
	}
	if stealThreshold <= 0 {
		stealThreshold = 1
	}
	if maxStealAttempts <= 0 {
		maxStealAttempts = 2
	}
	b := &CustomBackend{
		core:             NewCore(cfg),
		stealThreshold:   stealThreshold,
		maxStealAttempts: maxStealAttempts,
	}
	for i := 0; i < workerCount; i++ {
		b.workers = append(b.workers, &customWorker{id: i, wake: make(chan struct{}, 1)})
	}
	return b
}

func (b *CustomBackend) Run(ctx context.Context) error {
	log := logger.WithLoop("custom")
	log.Info().Int("workers", len(b.workers)).Msg("event loop starting")
	defer log.Info().Msg("event loop stopped")

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	for _, w := range b.workers {
		b.wg.Add(1)
		go b.runWorker(workerCtx, w)
	}

	err := b.core.Run(ctx, nil)
	cancel()
	b.wg.Wait()
	return err
}

func (b *CustomBackend) Stop(timeout time.Duration) error { return b.core.Stop(timeout) }

// Schedule places the task directly onto the least-loaded worker's deque
// instead of the dispatcher's own ready queue, since execution happens on
// the worker pool here.
func (b *CustomBackend) Schedule(t *task.Task) error {
	w := b.leastLoaded()
	w.mu.Lock()
	w.deque = append(w.deque, t)
	w.mu.Unlock()
	b.wakeWorker(w)
	return nil
}

func (b *CustomBackend) ScheduleWithPriority(t *task.Task, _ int) error {
	return b.Schedule(t) // the custom backend's worker pool is FIFO-per-worker; priority is a scheduler-layer concern
}

func (b *CustomBackend) Post(fn func()) error { return b.core.Post(fn) }

func (b *CustomBackend) CreateTimer(d time.Duration, cb func()) (TimerHandle, error) {
	return b.core.CreateTimer(d, cb)
}
func (b *CustomBackend) CreateRepeatingTimer(d time.Duration, cb func()) (TimerHandle, error) {
	return b.core.CreateRepeatingTimer(d, cb)
}
func (b *CustomBackend) CancelTimer(h TimerHandle) { b.core.CancelTimer(h) }

func (b *CustomBackend) RegisterIO(fd int, interest InterestMask, handler IOHandler) error {
	return b.core.RegisterIO(fd, interest, handler)
}
func (b *CustomBackend) ModifyIO(fd int, interest InterestMask) error {
	return b.core.ModifyIO(fd, interest)
}
func (b *CustomBackend) UnregisterIO(fd int) error { return b.core.UnregisterIO(fd) }

func (b *CustomBackend) leastLoaded() *customWorker {
	best := b.workers[0]
	bestLen := best.length()
	for _, w := range b.workers[1:] {
		if l := w.length(); l < bestLen {
			best, bestLen = w, l
		}
	}
	return best
}

func (w *customWorker) length() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.deque)
}

func (b *CustomBackend) wakeWorker(w *customWorker) {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *customWorker) popFront() *task.Task {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.deque) == 0 {
		return nil
	}
	t := w.deque[0]
	w.deque = w.deque[1:]
	return t
}

// stealFromBack removes up to n tasks from the back of the deque (the
// victim's newest), without blocking if another goroutine holds the lock.
func (w *customWorker) stealFromBack(n int) []*task.Task {
	if !w.mu.TryLock() {
		return nil
	}
	defer w.mu.Unlock()

	avail := len(w.deque)
	if avail <= 0 {
		return nil
	}
	if n > avail {
		n = avail
	}
	stolen := make([]*task.Task, n)
	copy(stolen, w.deque[avail-n:])
	w.deque = w.deque[:avail-n]
	return stolen
}

func (b *CustomBackend) runWorker(ctx context.Context, w *customWorker) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		t := w.popFront()
		if t == nil {
			t = b.tryStealFor(w)
		}
		if t == nil {
			select {
			case <-w.wake:
			case <-time.After(10 * time.Millisecond):
			case <-ctx.Done():
				return
			}
			continue
		}
		_ = t.Start(ctx)
		w.processed.Add(1)
	}
}

func (b *CustomBackend) tryStealFor(self *customWorker) *task.Task {
	if len(b.workers) < 2 {
		return nil
	}
	attempts := b.maxStealAttempts
	if attempts > len(b.workers)-1 {
		attempts = len(b.workers) - 1
	}
	tried := make(map[int]bool, attempts)
	for i := 0; i < attempts; i++ {
		victim := b.workers[rand.Intn(len(b.workers))]
		if victim.id == self.id || tried[victim.id] {
			continue
		}
		tried[victim.id] = true

		if victim.length() <= b.stealThreshold {
			continue
		}
		stolen := victim.stealFromBack(1)
		if len(stolen) > 0 {
			return stolen[0]
		}
	}
	return nil
}
