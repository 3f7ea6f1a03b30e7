package loop

import "errors"

var (
	// ErrAlreadyRunning is returned by Run when the backend is already
	// inside a Run call on another goroutine.
	ErrAlreadyRunning = errors.New("loop: already running")

	// ErrNotRunning is returned by operations that require a running loop.
	ErrNotRunning = errors.New("loop: not running")

	// ErrAlreadyRegistered is returned by RegisterIO when the fd already
	// has an active registration.
	ErrAlreadyRegistered = errors.New("loop: fd already registered")

	// ErrNotRegistered is returned by ModifyIO/UnregisterIO for an fd with
	// no active registration.
	ErrNotRegistered = errors.New("loop: fd not registered")

	// ErrBackendUnavailable is returned by constructors for backend
	// variants that cannot run in the current build (e.g. the Linux-only
	// backends on non-Linux platforms).
	ErrBackendUnavailable = errors.New("loop: backend unavailable on this platform")

	// ErrTimerInvalid is returned for a timer handle that has already been
	// cancelled or fired without repeat.
	ErrTimerInvalid = errors.New("loop: invalid timer handle")
)
