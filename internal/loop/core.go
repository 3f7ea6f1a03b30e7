package loop

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sukryu/stellane/internal/task"
)

// PollFunc performs the backend-specific step 4 of the main loop
// algorithm: wait for I/O readiness up to budget (zero if the iteration
// already did other work) and dispatch any ready events to their
// registered handlers. It returns whether any event was dispatched.
type PollFunc func(budget time.Duration) (busy bool)

// Core is the shared state every Backend variant composes: the ready
// queue, the deferred-function queue, the timer heap, and the I/O
// registration map, each guarded by its own lock per the ownership rules.
// Concrete backends differ only in what they supply for PollFunc.
type Core struct {
	cfg Config

	ready *readyQueue

	deferredMu sync.Mutex
	deferred   []func()

	timers *timerHeap

	ioMu sync.Mutex
	io   map[int]*ioRegistration

	wake     chan struct{}
	running  atomic.Bool
	stopping atomic.Bool
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewCore(cfg Config) *Core {
	return &Core{
		cfg:    cfg,
		ready:  newReadyQueue(),
		timers: newTimerHeap(),
		io:     make(map[int]*ioRegistration),
		wake:   make(chan struct{}, 1),
	}
}

func (c *Core) tryStart() bool {
	return c.running.CompareAndSwap(false, true)
}

func (c *Core) markStopped() {
	c.running.Store(false)
}

// Schedule / ScheduleWithPriority / Post implement the loop's own queueing
// operations, independent of whatever worker pool a scheduler later layers
// on top.
func (c *Core) Schedule(t *task.Task) error {
	c.ready.push(t, 0)
	c.signalWake()
	return nil
}

func (c *Core) ScheduleWithPriority(t *task.Task, priority int) error {
	c.ready.push(t, priority)
	c.signalWake()
	return nil
}

func (c *Core) Post(fn func()) error {
	c.deferredMu.Lock()
	c.deferred = append(c.deferred, fn)
	c.deferredMu.Unlock()
	c.signalWake()
	return nil
}

func (c *Core) CreateTimer(delay time.Duration, cb func()) (TimerHandle, error) {
	return c.timers.create(delay, 0, cb, time.Now()), nil
}

func (c *Core) CreateRepeatingTimer(interval time.Duration, cb func()) (TimerHandle, error) {
	return c.timers.create(interval, interval, cb, time.Now()), nil
}

func (c *Core) CancelTimer(h TimerHandle) {
	c.timers.cancel(h)
}

func (c *Core) RegisterIO(fd int, interest InterestMask, handler IOHandler) error {
	c.ioMu.Lock()
	defer c.ioMu.Unlock()
	if _, exists := c.io[fd]; exists {
		return ErrAlreadyRegistered
	}
	c.io[fd] = &ioRegistration{fd: fd, interest: interest, handler: handler}
	return nil
}

func (c *Core) ModifyIO(fd int, interest InterestMask) error {
	c.ioMu.Lock()
	defer c.ioMu.Unlock()
	reg, ok := c.io[fd]
	if !ok {
		return ErrNotRegistered
	}
	reg.interest = interest
	return nil
}

func (c *Core) UnregisterIO(fd int) error {
	c.ioMu.Lock()
	defer c.ioMu.Unlock()
	if _, ok := c.io[fd]; !ok {
		return ErrNotRegistered
	}
	delete(c.io, fd)
	return nil
}

func (c *Core) registrationSnapshot() []*ioRegistration {
	c.ioMu.Lock()
	defer c.ioMu.Unlock()
	out := make([]*ioRegistration, 0, len(c.io))
	for _, r := range c.io {
		out = append(out, r)
	}
	return out
}

func (c *Core) signalWake() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// runIteration executes one pass of the main-loop algorithm's first three
// steps (drain tasks, drain deferred, sweep timers) plus the fourth step
// delegated to poll, and reports whether any work was done.
func (c *Core) runIteration(poll PollFunc) (busy bool, idleBudget time.Duration) {
	ready := c.ready.drain(c.cfg.MaxTasksPerLoop)
	for _, t := range ready {
		_ = t.Start(context.Background())
		busy = true
	}

	c.deferredMu.Lock()
	pending := c.deferred
	c.deferred = nil
	c.deferredMu.Unlock()
	for _, fn := range pending {
		fn()
		busy = true
	}

	fired, nextDelay, hasNext := c.timers.sweep(time.Now())
	if fired > 0 {
		busy = true
	}

	budget := c.cfg.IdleTimeout
	if busy {
		budget = 0
	} else if hasNext && nextDelay < budget {
		budget = nextDelay
	}

	if poll != nil {
		if poll(budget) {
			busy = true
		}
	}

	return busy, budget
}
