// Package loop implements the runtime's pluggable event-loop backend: an
// I/O readiness source, a timer heap, a deferred-function queue, and a
// per-backend task ready-queue, driven by a single main-loop algorithm
// (drain tasks, drain deferred work, sweep timers, poll I/O, idle-park)
// shared by every concrete backend.
package loop

import (
	"context"
	"time"

	"github.com/sukryu/stellane/internal/task"
)

// Config tunes the main loop algorithm, shared by every backend variant.
type Config struct {
	MaxTasksPerLoop int
	IdleTimeout     time.Duration
	StopGrace       time.Duration
}

// DefaultConfig mirrors the defaults named in the external-interfaces
// configuration group.
func DefaultConfig() Config {
	return Config{
		MaxTasksPerLoop: 256,
		IdleTimeout:     100 * time.Millisecond,
		StopGrace:       5 * time.Second,
	}
}

// Backend is the capability set every concrete event-loop implementation
// satisfies. Concrete variants are selected at construction by the
// embedding runtime's configured backend name, never by dynamic dispatch
// inside the hot path.
type Backend interface {
	// Run blocks the calling goroutine, driving the loop until Stop is
	// called or ctx is cancelled. Returns ErrAlreadyRunning if already
	// running.
	Run(ctx context.Context) error

	// Stop idempotently requests the loop to exit, granting it the
	// configured grace period before returning regardless.
	Stop(timeout time.Duration) error

	Schedule(t *task.Task) error
	ScheduleWithPriority(t *task.Task, priority int) error
	Post(fn func()) error

	CreateTimer(delay time.Duration, cb func()) (TimerHandle, error)
	CreateRepeatingTimer(interval time.Duration, cb func()) (TimerHandle, error)
	CancelTimer(h TimerHandle)

	RegisterIO(fd int, interest InterestMask, handler IOHandler) error
	ModifyIO(fd int, interest InterestMask) error
	UnregisterIO(fd int) error
}
