//go:build linux

package scheduler

import (
	"golang.org/x/sys/unix"

	"github.com/sukryu/stellane/internal/logger"
)

// PinWorker binds worker id's OS thread to the given CPU core set via
// sched_setaffinity. It must be called from the worker's own goroutine
// (locked to its OS thread with runtime.LockOSThread) since affinity is a
// per-thread, not per-process, attribute on Linux.
func PinWorker(workerID int, cores []int) error {
	if len(cores) == 0 {
		return nil
	}
	var set unix.CPUSet
	set.Zero()
	for _, c := range cores {
		set.Set(c)
	}
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		logger.WithComponent("scheduler").Warn().
			Int("worker_id", workerID).Err(err).Msg("failed to pin worker to cpu set")
		return err
	}
	return nil
}
