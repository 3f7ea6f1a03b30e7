package scheduler

import (
	"sync/atomic"
	"time"
)

// Worker tracks one scheduler worker's identity and live stats. The
// ownership table in the data model gives it a bound core, a NUMA node,
// live/cumulative counts, a last-activity timestamp, and a paused flag.
// The counts, timestamp and paused flag are updated from the worker's own
// goroutine plus occasionally read by stats/rebalance, so they're atomics
// rather than a mutex-guarded struct; BoundCore and NUMANode are plain ints.
type Worker struct {
	ID int

	BoundCore int // -1 if unpinned
	NUMANode  int // -1 if unknown

	currentTaskCount atomic.Int64
	processedCount   atomic.Int64
	lastActivityNano atomic.Int64
	paused           atomic.Bool
}

func newWorker(id int) *Worker {
	w := &Worker{ID: id, BoundCore: -1, NUMANode: -1}
	w.lastActivityNano.Store(time.Now().UnixNano())
	return w
}

func (w *Worker) CurrentTaskCount() int64 { return w.currentTaskCount.Load() }
func (w *Worker) ProcessedCount() int64   { return w.processedCount.Load() }
func (w *Worker) LastActivity() time.Time {
	return time.Unix(0, w.lastActivityNano.Load())
}
func (w *Worker) Paused() bool { return w.paused.Load() }

func (w *Worker) touch() { w.lastActivityNano.Store(time.Now().UnixNano()) }
