// Package task implements the runtime's suspendable computation primitive:
// a Task carries lifecycle state, a cancellation flag, a single completion
// continuation, and an optional typed result, and exposes the combinators
// (WhenAll, WhenAny, SleepFor, WithTimeout, Then/Catch/Finally) used to
// compose them.
package task

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Func is the computation a Task wraps. Suspension points are exactly the
// places it blocks on ctx.Done(), a channel receive, or a nested Task's
// Await — the goroutine running it is free to be parked by the Go runtime
// at any of those points, which is this implementation's analogue of a
// cooperative coroutine suspending.
type Func func(ctx context.Context) (any, error)

// Task is a resumable unit of computation with observable lifecycle and a
// single-consumer (but multi-observer) completion signal.
type Task struct {
	ID   string
	Name string

	fn Func // nil for tasks whose terminal state is driven externally

	state      atomic.Int32
	cancelled  atomic.Bool
	cancelFunc context.CancelFunc

	createdAt   time.Time
	startedAt   time.Time
	completedAt time.Time

	mu     sync.Mutex
	result any
	err    error

	done         chan struct{}
	doneOnce     sync.Once
	continuation func(*Task)
	contSet      atomic.Bool
}

// New creates a Task wrapping fn. The task is in StateCreated until Start
// is called.
func New(name string, fn Func) *Task {
	return &Task{
		ID:        uuid.New().String(),
		Name:      name,
		fn:        fn,
		createdAt: time.Now().UTC(),
		done:      make(chan struct{}),
	}
}

// State returns the task's current lifecycle state.
func (t *Task) State() State {
	return State(t.state.Load())
}

// Start idempotently transitions CREATED -> RUNNING and runs the wrapped
// computation to completion, suspension being whatever the computation's
// own blocking calls do under ctx. Start returns ErrAlreadyStarted if
// called more than once; the second caller observes no effect from its
// own call.
func (t *Task) Start(ctx context.Context) error {
	if !t.state.CompareAndSwap(int32(StateCreated), int32(StateRunning)) {
		return ErrAlreadyStarted
	}

	t.startedAt = time.Now().UTC()
	runCtx := ctx
	if t.cancelFunc == nil {
		runCtx, t.cancelFunc = context.WithCancel(ctx)
	}
	if t.cancelled.Load() {
		t.settle(nil, nil, StateCancelled)
		return nil
	}

	if t.fn == nil {
		// Externally-driven task with no body of its own: nothing to
		// run here.
		return nil
	}

	result, err := t.invoke(runCtx, t.fn)

	switch {
	case t.cancelled.Load() && err == context.Canceled:
		t.settle(nil, nil, StateCancelled)
	case err != nil:
		t.settle(nil, err, StateFailed)
	default:
		t.settle(result, nil, StateCompleted)
	}
	return nil
}

// invoke runs fn with panic recovery, mirroring the teacher executor's
// recover-and-convert-to-error behavior so a user computation can never
// take down the goroutine running it.
func (t *Task) invoke(ctx context.Context, fn Func) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v\n%s", t.ID, r, debug.Stack())
		}
	}()
	return fn(ctx)
}

func (t *Task) settle(result any, err error, state State) {
	t.mu.Lock()
	t.result = result
	t.err = err
	t.mu.Unlock()

	t.state.Store(int32(state))
	t.completedAt = time.Now().UTC()

	t.doneOnce.Do(func() { close(t.done) })

	if cont := t.continuation; cont != nil {
		cont(t)
	}
}

// Cancel requests cooperative cancellation. The computation observes this
// at its next suspension point via ctx.Done(); a task that has already
// reached a terminal state ignores the request.
func (t *Task) Cancel() {
	if t.State().IsTerminal() {
		return
	}
	t.cancelled.Store(true)
	if t.cancelFunc != nil {
		t.cancelFunc()
	}
	// A task that never started (no goroutine observing ctx.Done) is
	// cancelled immediately rather than left pending forever. Route
	// through settle so done closes and the continuation fires, same as
	// every other terminal transition. The CAS also guards against a
	// racing Start: only one of them can win the Created->X move.
	if t.state.CompareAndSwap(int32(StateCreated), int32(StateCancelled)) {
		t.settle(nil, nil, StateCancelled)
	}
}

// IsCancelled reports whether Cancel has been requested.
func (t *Task) IsCancelled() bool {
	return t.cancelled.Load()
}

// OnComplete registers the task's single completion continuation, fired
// exactly once when the task becomes terminal. It returns ErrContinuationSet
// if a continuation is already registered — the slot is single-writer.
// Independent observers that don't need a one-shot callback should use
// Await instead: the shared done channel broadcasts to every caller.
func (t *Task) OnComplete(fn func(*Task)) error {
	if !t.contSet.CompareAndSwap(false, true) {
		return ErrContinuationSet
	}
	t.continuation = fn
	if t.State().IsTerminal() {
		fn(t)
	}
	return nil
}

// Await blocks until the task is terminal (or ctx is done) and returns the
// stored result, re-raises the stored error, or fails with ErrCancelled
// when the terminal state is StateCancelled.
func (t *Task) Await(ctx context.Context) (any, error) {
	select {
	case <-t.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.State() == StateCancelled {
		return nil, ErrCancelled
	}
	return t.result, t.err
}

// TryResult returns the stored result/error without blocking, or
// ErrNotTerminal if the task has not yet settled.
func (t *Task) TryResult() (any, error) {
	if !t.State().IsTerminal() {
		return nil, ErrNotTerminal
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.State() == StateCancelled {
		return nil, ErrCancelled
	}
	return t.result, t.err
}

// Done returns the channel closed when the task becomes terminal. Safe for
// any number of concurrent receivers (closing a channel is Go's natural
// broadcast primitive).
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// CreatedAt, StartedAt, CompletedAt expose the lifecycle timestamps.
func (t *Task) CreatedAt() time.Time   { return t.createdAt }
func (t *Task) StartedAt() time.Time   { return t.startedAt }
func (t *Task) CompletedAt() time.Time { return t.completedAt }
