// Package metrics exposes the runtime's Prometheus series: task lifecycle
// counters, event-loop iteration/timer gauges, scheduler steal-attempt and
// rebalance counters, journal append/rotation/compaction counters, and
// recovery outcome counters, alongside the admin-surface HTTP/WebSocket
// series carried over from the teacher.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Task metrics
	TasksSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stellane_tasks_submitted_total",
			Help: "Total number of tasks submitted to the scheduler",
		},
		[]string{"strategy", "priority"},
	)

	TasksCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stellane_tasks_completed_total",
			Help: "Total number of tasks reaching a terminal state",
		},
		[]string{"status"},
	)

	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stellane_task_duration_seconds",
			Help:    "Task execution duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		},
		[]string{"strategy"},
	)

	TaskPanics = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stellane_task_panics_total",
			Help: "Total number of tasks that panicked during invocation",
		},
	)

	// Event loop metrics
	LoopIterations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stellane_loop_iterations_total",
			Help: "Total number of event loop core iterations",
		},
		[]string{"backend"},
	)

	LoopIterationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stellane_loop_iteration_duration_seconds",
			Help:    "Duration of a single event loop iteration",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		},
		[]string{"backend"},
	)

	TimersFired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stellane_timers_fired_total",
			Help: "Total number of timers that fired (generation matched)",
		},
		[]string{"backend"},
	)

	TimersCancelled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stellane_timers_cancelled_total",
			Help: "Total number of timers cancelled before firing",
		},
		[]string{"backend"},
	)

	IORegistrations = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stellane_io_registrations",
			Help: "Current number of active I/O registrations",
		},
		[]string{"backend"},
	)

	// Scheduler metrics
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stellane_scheduler_queue_depth",
			Help: "Current number of tasks queued per worker",
		},
		[]string{"worker_id"},
	)

	QueueLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stellane_scheduler_queue_latency_seconds",
			Help:    "Time a task spent queued before dispatch",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		},
		[]string{"strategy"},
	)

	ActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stellane_active_workers",
			Help: "Current number of unpaused scheduler workers",
		},
	)

	WorkerBusyTime = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stellane_worker_busy_seconds_total",
			Help: "Total time workers spent executing tasks",
		},
		[]string{"worker_id"},
	)

	StealAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stellane_steal_attempts_total",
			Help: "Total number of work-stealing attempts, by outcome",
		},
		[]string{"outcome"}, // "stolen", "empty", "below_threshold"
	)

	RebalanceMoves = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stellane_rebalance_moves_total",
			Help: "Total number of tasks moved by periodic load rebalancing",
		},
	)

	Backpressure = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stellane_backpressure_total",
			Help: "Total number of submissions rejected with a Backpressure error",
		},
		[]string{"source"}, // "scheduler", "journal", "recovery"
	)

	// Journal metrics
	JournalAppends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stellane_journal_appends_total",
			Help: "Total number of journal append attempts, by outcome",
		},
		[]string{"outcome"}, // "ok", "filtered", "duplicate", "full"
	)

	JournalTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stellane_journal_transitions_total",
			Help: "Total number of journal entry state transitions",
		},
		[]string{"to"},
	)

	JournalRotations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stellane_journal_rotations_total",
			Help: "Total number of journal segment rotations",
		},
		[]string{"backend"},
	)

	JournalCompactions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stellane_journal_compactions_total",
			Help: "Total number of journal compaction passes",
		},
		[]string{"backend"},
	)

	JournalCorruptRecords = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stellane_journal_corrupt_records_total",
			Help: "Total number of journal records discarded for failing CRC validation",
		},
	)

	// Recovery metrics
	RecoveryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stellane_recovery_attempts_total",
			Help: "Total number of recovery hook invocations",
		},
		[]string{"method"},
	)

	RecoveryOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stellane_recovery_outcomes_total",
			Help: "Total number of terminal recovery outcomes",
		},
		[]string{"status"}, // "success", "failed"
	)

	RecoveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stellane_recovery_duration_seconds",
			Help:    "Time spent inside a recovery hook invocation",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		},
		[]string{"method"},
	)

	// Admin HTTP surface metrics (internal/httpapi)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stellane_http_request_duration_seconds",
			Help:    "Admin HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stellane_http_requests_total",
			Help: "Total number of admin HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// WebSocket stats hub metrics
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stellane_websocket_connections",
			Help: "Current number of stats WebSocket connections",
		},
	)

	WebSocketMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stellane_websocket_messages_total",
			Help: "Total number of stats WebSocket messages sent",
		},
		[]string{"type"},
	)
)

// RecordTaskSubmission records a task submission under a scheduler
// strategy and priority label.
func RecordTaskSubmission(strategy, priority string) {
	TasksSubmitted.WithLabelValues(strategy, priority).Inc()
}

// RecordTaskCompletion records a task's terminal state and duration.
func RecordTaskCompletion(status string, strategy string, duration float64) {
	TasksCompleted.WithLabelValues(status).Inc()
	TaskDuration.WithLabelValues(strategy).Observe(duration)
}

// RecordTaskPanic records a task that panicked during invocation.
func RecordTaskPanic() {
	TaskPanics.Inc()
}

// RecordLoopIteration records one core iteration on the named backend.
func RecordLoopIteration(backend string, duration float64) {
	LoopIterations.WithLabelValues(backend).Inc()
	LoopIterationDuration.WithLabelValues(backend).Observe(duration)
}

// RecordTimerFired records a timer whose generation matched at pop time.
func RecordTimerFired(backend string) {
	TimersFired.WithLabelValues(backend).Inc()
}

// RecordTimerCancelled records a timer cancelled before it fired.
func RecordTimerCancelled(backend string) {
	TimersCancelled.WithLabelValues(backend).Inc()
}

// SetIORegistrations sets the current I/O registration count for backend.
func SetIORegistrations(backend string, count float64) {
	IORegistrations.WithLabelValues(backend).Set(count)
}

// UpdateQueueDepth updates a single worker's queue depth gauge.
func UpdateQueueDepth(workerID string, depth float64) {
	QueueDepth.WithLabelValues(workerID).Set(depth)
}

// RecordQueueLatency records how long a task waited before dispatch.
func RecordQueueLatency(strategy string, latency float64) {
	QueueLatency.WithLabelValues(strategy).Observe(latency)
}

// SetActiveWorkers sets the active (unpaused) worker gauge.
func SetActiveWorkers(count float64) {
	ActiveWorkers.Set(count)
}

// RecordWorkerBusyTime adds to a worker's cumulative busy time.
func RecordWorkerBusyTime(workerID string, duration float64) {
	WorkerBusyTime.WithLabelValues(workerID).Add(duration)
}

// RecordStealAttempt records a work-stealing attempt's outcome.
func RecordStealAttempt(outcome string) {
	StealAttempts.WithLabelValues(outcome).Inc()
}

// RecordRebalanceMove records tasks moved by one rebalance pass.
func RecordRebalanceMove(count int) {
	RebalanceMoves.Add(float64(count))
}

// RecordBackpressure records a submission rejected by a given subsystem.
func RecordBackpressure(source string) {
	Backpressure.WithLabelValues(source).Inc()
}

// RecordJournalAppend records a journal append attempt's outcome.
func RecordJournalAppend(outcome string) {
	JournalAppends.WithLabelValues(outcome).Inc()
}

// RecordJournalTransition records an entry reaching state `to`.
func RecordJournalTransition(to string) {
	JournalTransitions.WithLabelValues(to).Inc()
}

// RecordJournalRotation records a segment rotation on backend.
func RecordJournalRotation(backend string) {
	JournalRotations.WithLabelValues(backend).Inc()
}

// RecordJournalCompaction records a compaction pass on backend.
func RecordJournalCompaction(backend string) {
	JournalCompactions.WithLabelValues(backend).Inc()
}

// RecordJournalCorruptRecord records a record discarded for a CRC mismatch.
func RecordJournalCorruptRecord() {
	JournalCorruptRecords.Inc()
}

// RecordRecoveryAttempt records one hook invocation for method.
func RecordRecoveryAttempt(method string, duration float64) {
	RecoveryAttempts.WithLabelValues(method).Inc()
	RecoveryDuration.WithLabelValues(method).Observe(duration)
}

// RecordRecoveryOutcome records a terminal recovery outcome.
func RecordRecoveryOutcome(status string) {
	RecoveryOutcomes.WithLabelValues(status).Inc()
}

// RecordHTTPRequest records an admin HTTP request.
func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration)
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
}

// SetWebSocketConnections sets the current stats WebSocket connection count.
func SetWebSocketConnections(count float64) {
	WebSocketConnections.Set(count)
}

// RecordWebSocketMessage records a stats WebSocket message of msgType.
func RecordWebSocketMessage(msgType string) {
	WebSocketMessages.WithLabelValues(msgType).Inc()
}
