package loop

import (
	"context"
	"sync"
	"time"

	"github.com/sukryu/stellane/internal/logger"
	"github.com/sukryu/stellane/internal/task"
)

// CrossPlatformBackend is the generic backend: a readiness source used on
// platforms (or in tests) where no platform-specific syscall polling is
// available. Each registered fd gets its own watcher goroutine (the number
// of watchers is not bounded) that blocks in Waiter until the fd is ready
// and then hands the result to the main loop's dispatch step.
type CrossPlatformBackend struct {
	core   *Core
	waiter IOWaiter
	poolSz int

	watchMu  sync.Mutex
	watchers map[int]context.CancelFunc

	readyCh chan ioEvent
}

// IOWaiter performs the platform-specific blocking wait for fd to become
// ready for any bit in mask. The cross-platform backend runs it on a
// dedicated goroutine per registration rather than multiplexing fds
// itself, matching "generic readiness source with a worker pool for
// blocking file I/O".
type IOWaiter func(ctx context.Context, fd int, mask InterestMask) (InterestMask, error)

type ioEvent struct {
	fd    int
	ready InterestMask
}

// NewCrossPlatformBackend constructs the generic backend. waiter supplies
// the blocking readiness check; poolSize sizes the buffer of ready events
// passed from watchers to the loop (0 selects 64). It does not limit the
// number of watcher goroutines.
func NewCrossPlatformBackend(cfg Config, waiter IOWaiter, poolSize int) *CrossPlatformBackend {
	if poolSize <= 0 {
		poolSize = 64
	}
	return &CrossPlatformBackend{
		core:     NewCore(cfg),
		waiter:   waiter,
		poolSz:   poolSize,
		watchers: make(map[int]context.CancelFunc),
		readyCh:  make(chan ioEvent, poolSize),
	}
}

func (b *CrossPlatformBackend) Run(ctx context.Context) error {
	logger.WithLoop("crossplatform").Info().Msg("event loop starting")
	defer logger.WithLoop("crossplatform").Info().Msg("event loop stopped")
	return b.core.Run(ctx, b.poll)
}

func (b *CrossPlatformBackend) Stop(timeout time.Duration) error {
	b.watchMu.Lock()
	for fd, cancel := range b.watchers {
		cancel()
		delete(b.watchers, fd)
	}
	b.watchMu.Unlock()
	return b.core.Stop(timeout)
}

func (b *CrossPlatformBackend) Schedule(t *task.Task) error { return b.core.Schedule(t) }
func (b *CrossPlatformBackend) ScheduleWithPriority(t *task.Task, p int) error {
	return b.core.ScheduleWithPriority(t, p)
}
func (b *CrossPlatformBackend) Post(fn func()) error { return b.core.Post(fn) }

func (b *CrossPlatformBackend) CreateTimer(d time.Duration, cb func()) (TimerHandle, error) {
	return b.core.CreateTimer(d, cb)
}
func (b *CrossPlatformBackend) CreateRepeatingTimer(d time.Duration, cb func()) (TimerHandle, error) {
	return b.core.CreateRepeatingTimer(d, cb)
}
func (b *CrossPlatformBackend) CancelTimer(h TimerHandle) { b.core.CancelTimer(h) }

func (b *CrossPlatformBackend) RegisterIO(fd int, interest InterestMask, handler IOHandler) error {
	if err := b.core.RegisterIO(fd, interest, handler); err != nil {
		return err
	}
	watchCtx, cancel := context.WithCancel(context.Background())
	b.watchMu.Lock()
	b.watchers[fd] = cancel
	b.watchMu.Unlock()

	go b.watch(watchCtx, fd)
	return nil
}

func (b *CrossPlatformBackend) watch(ctx context.Context, fd int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		b.core.ioMu.Lock()
		reg, ok := b.core.io[fd]
		b.core.ioMu.Unlock()
		if !ok {
			return
		}

		ready, err := b.waiter(ctx, fd, reg.interest)
		if err != nil {
			return
		}
		select {
		case b.readyCh <- ioEvent{fd: fd, ready: ready}:
		case <-ctx.Done():
			return
		}
	}
}

func (b *CrossPlatformBackend) ModifyIO(fd int, interest InterestMask) error {
	return b.core.ModifyIO(fd, interest)
}

func (b *CrossPlatformBackend) UnregisterIO(fd int) error {
	b.watchMu.Lock()
	if cancel, ok := b.watchers[fd]; ok {
		cancel()
		delete(b.watchers, fd)
	}
	b.watchMu.Unlock()
	return b.core.UnregisterIO(fd)
}

// poll drains any watcher-reported readiness events up to budget and
// dispatches them to their registered handlers.
func (b *CrossPlatformBackend) poll(budget time.Duration) bool {
	deadline := time.NewTimer(budget)
	defer deadline.Stop()

	dispatched := false
	for {
		select {
		case ev := <-b.readyCh:
			b.core.ioMu.Lock()
			reg, ok := b.core.io[ev.fd]
			b.core.ioMu.Unlock()
			if ok {
				reg.handler(ev.fd, ev.ready)
				dispatched = true
			}
			if budget == 0 {
				return dispatched
			}
		case <-deadline.C:
			return dispatched
		}
	}
}
