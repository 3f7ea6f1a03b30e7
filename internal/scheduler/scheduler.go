// Package scheduler implements the runtime's pluggable task scheduler: a
// worker-thread pool, per-worker ready queues, and a placement policy
// (FIFO, Priority, Round-robin, Affinity, Work-stealing) that turns
// incoming schedulable tasks into (worker, task) dispatch pairs.
package scheduler

import (
	"context"
	"time"

	"github.com/sukryu/stellane/internal/task"
)

// Affinity carries a task's placement preferences. PreferredWorker and
// NUMANode of -1 mean "no preference".
type Affinity struct {
	PreferredWorker int
	NUMANode        int
	Group           string
	AllowMigration  bool
}

// SchedulableTask pairs a Task with the placement metadata the scheduler
// needs: priority, affinity, and timestamps. It lives in exactly one
// scheduler queue at a time.
type SchedulableTask struct {
	Task        *task.Task
	Priority    uint8
	Affinity    Affinity
	CreatedAt   time.Time
	ScheduledAt time.Time
	WorkerID    int
}

// Scheduler is the capability set every placement policy implements. All
// five variants (FIFO, Priority, Round-robin, Affinity, Work-stealing)
// satisfy this same interface and differ only in placement and
// GetNextTask, per the Design Notes guidance of expressing policy
// variation as a capability set rather than an inheritance hierarchy.
type Scheduler interface {
	Start(ctx context.Context) error
	Stop(timeout time.Duration) error

	Schedule(t *SchedulableTask) error
	ScheduleBatch(ts []*SchedulableTask) error

	// GetNextTask is normally called by the scheduler's own worker loop;
	// it is exported so tests and the affinity policy's fallback-queue
	// logic can drive it directly.
	GetNextTask(workerID int) (*SchedulableTask, bool)

	TaskCompleted(workerID int, taskID string, duration time.Duration, success bool)
	TryStealWork(workerID int) (*SchedulableTask, bool)

	PauseWorker(workerID int) error
	ResumeWorker(workerID int) error

	RebalanceLoad()

	// WorkerCount reports the number of workers configured at Start.
	WorkerCount() int

	// Workers reports a point-in-time snapshot of every worker's stats,
	// for admin introspection.
	Workers() []WorkerStats
}

// WorkerStats is a point-in-time, read-only snapshot of one worker's
// identity and live counters, safe to serialize directly.
type WorkerStats struct {
	ID               int
	BoundCore        int
	NUMANode         int
	CurrentTaskCount int64
	ProcessedCount   int64
	LastActivity     time.Time
	Paused           bool
}
