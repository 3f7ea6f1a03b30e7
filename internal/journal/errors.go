package journal

import "errors"

var (
	ErrNotFound           = errors.New("journal: entry not found")
	ErrInvalidTransition  = errors.New("journal: invalid state transition")
	ErrFiltered           = errors.New("journal: entry excluded by filter policy")
	ErrClosed             = errors.New("journal: closed")
	ErrBackendUnavailable = errors.New("journal: backend unavailable")
)
