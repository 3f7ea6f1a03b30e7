//go:build !linux

package scheduler

import (
	"sync"

	"github.com/sukryu/stellane/internal/logger"
)

var pinWarnOnce sync.Once

// PinWorker is a no-op outside Linux: sched_setaffinity has no portable
// equivalent exposed by anything in the runtime's dependency set. It logs
// once per process so operators relying on pinning notice it isn't
// happening, but it never reports an error for a soft preference — only
// a genuinely unsatisfiable hard pin (see AffinityScheduler.Schedule) is
// treated as a failure.
func PinWorker(workerID int, cores []int) error {
	if len(cores) == 0 {
		return nil
	}
	pinWarnOnce.Do(func() {
		logger.WithComponent("scheduler").Warn().
			Msg("cpu pinning requested but unsupported on this platform, ignoring")
	})
	return nil
}
