package events

import (
	"context"
	"encoding/json"
	"time"
)

// EventType represents the type of event
type EventType string

const (
	// Task events
	EventTaskScheduled EventType = "task.scheduled"
	EventTaskStarted   EventType = "task.started"
	EventTaskCompleted EventType = "task.completed"
	EventTaskFailed    EventType = "task.failed"
	EventTaskRetrying  EventType = "task.retrying"

	// Worker events
	EventWorkerJoined  EventType = "worker.joined"
	EventWorkerLeft    EventType = "worker.left"
	EventWorkerPaused  EventType = "worker.paused"
	EventWorkerResumed EventType = "worker.resumed"
	EventWorkerStole   EventType = "worker.stole"

	// Scheduler events
	EventSchedulerRebalance    EventType = "scheduler.rebalance"
	EventSchedulerBackpressure EventType = "scheduler.backpressure"

	// Journal events
	EventJournalAppended EventType = "journal.appended"
	EventJournalRotated  EventType = "journal.rotated"

	// Recovery events
	EventRecoveryStarted EventType = "recovery.started"
	EventRecoveryOutcome EventType = "recovery.outcome"
	EventRecoveryReplay  EventType = "recovery.replay"

	// System events
	EventLoopDepth     EventType = "loop.depth"
	EventSystemMetrics EventType = "system.metrics"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// NewEvent creates a new event
func NewEvent(eventType EventType, data map[string]interface{}) *Event {
	return &Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// ToJSON serializes the event to JSON
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON deserializes an event from JSON
func FromJSON(data []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// Publisher defines the interface for event publishers
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
	Subscribe(ctx context.Context, eventTypes ...EventType) (<-chan *Event, error)
	Close() error
}

// Subscriber represents an event subscriber
type Subscriber interface {
	OnEvent(event *Event)
	EventTypes() []EventType
}

// TaskEventData creates event data for task lifecycle events
func TaskEventData(taskID, taskType, priority string, extra map[string]interface{}) map[string]interface{} {
	data := map[string]interface{}{
		"task_id":  taskID,
		"type":     taskType,
		"priority": priority,
	}
	for k, v := range extra {
		data[k] = v
	}
	return data
}

// WorkerEventData creates event data for worker lifecycle events
func WorkerEventData(workerID, state string, extra map[string]interface{}) map[string]interface{} {
	data := map[string]interface{}{
		"worker_id": workerID,
		"state":     state,
	}
	for k, v := range extra {
		data[k] = v
	}
	return data
}

// JournalEventData creates event data for journal append/rotation events
func JournalEventData(requestID string, sequence uint64, extra map[string]interface{}) map[string]interface{} {
	data := map[string]interface{}{
		"request_id": requestID,
		"sequence":   sequence,
	}
	for k, v := range extra {
		data[k] = v
	}
	return data
}

// RecoveryEventData creates event data for recovery attempt/outcome events
func RecoveryEventData(requestID string, attempt int, extra map[string]interface{}) map[string]interface{} {
	data := map[string]interface{}{
		"request_id": requestID,
		"attempt":    attempt,
	}
	for k, v := range extra {
		data[k] = v
	}
	return data
}

// LoopDepthData creates event data for per-worker run-queue depth snapshots
func LoopDepthData(depths map[string]int64) map[string]interface{} {
	return map[string]interface{}{
		"depths": depths,
	}
}
