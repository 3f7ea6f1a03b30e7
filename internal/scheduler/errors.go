package scheduler

import (
	"errors"

	"github.com/sukryu/stellane/internal/stellaneerr"
)

var (
	ErrAlreadyRunning        = errors.New("scheduler: already running")
	ErrNotRunning            = errors.New("scheduler: not running")
	ErrUnknownWorker         = errors.New("scheduler: unknown worker id")
	ErrAffinityUnsatisfiable = stellaneerr.ErrAffinityUnsatisfiable
)
