package events

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sukryu/stellane/internal/logger"
)

// LocalBus implements Publisher as an in-process fan-out bus. Every
// subscriber gets its own buffered channel; a slow subscriber drops events
// rather than blocking the publisher.
type LocalBus struct {
	mu     sync.RWMutex
	subs   map[int64]*localSub
	nextID int64
	closed bool
}

type localSub struct {
	types map[EventType]bool // nil/empty means "all types"
	ch    chan *Event
}

const subscriberBufferSize = 100

// NewLocalBus creates a new in-process event bus.
func NewLocalBus() *LocalBus {
	return &LocalBus{
		subs: make(map[int64]*localSub),
	}
}

// Publish fans the event out to every matching subscriber. Publish never
// blocks on a slow subscriber: if its buffer is full the event is dropped
// and logged.
func (b *LocalBus) Publish(ctx context.Context, event *Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil
	}

	for _, sub := range b.subs {
		if len(sub.types) > 0 && !sub.types[event.Type] {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			logger.Warn().
				Str("event_type", string(event.Type)).
				Msg("event channel full, dropping event")
		}
	}

	return nil
}

// Subscribe returns a channel receiving events of the given types. With no
// types given, the channel receives every event (see SubscribeAll). The
// channel is closed when ctx is done or the bus is closed.
func (b *LocalBus) Subscribe(ctx context.Context, eventTypes ...EventType) (<-chan *Event, error) {
	types := make(map[EventType]bool, len(eventTypes))
	for _, et := range eventTypes {
		types[et] = true
	}

	sub := &localSub{
		types: types,
		ch:    make(chan *Event, subscriberBufferSize),
	}

	id := atomic.AddInt64(&b.nextID, 1)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.ch)
		return sub.ch, nil
	}
	b.subs[id] = sub
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.removeSub(id)
	}()

	return sub.ch, nil
}

// SubscribeAll subscribes to every event type.
func (b *LocalBus) SubscribeAll(ctx context.Context) (<-chan *Event, error) {
	return b.Subscribe(ctx)
}

func (b *LocalBus) removeSub(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	close(sub.ch)
}

// Close closes every active subscription channel.
func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}

	return nil
}

// PublishTaskEvent is a helper to publish task lifecycle events.
func (b *LocalBus) PublishTaskEvent(ctx context.Context, eventType EventType, taskID, taskType, priority string, extra map[string]interface{}) error {
	event := NewEvent(eventType, TaskEventData(taskID, taskType, priority, extra))
	return b.Publish(ctx, event)
}

// PublishWorkerEvent is a helper to publish worker lifecycle events.
func (b *LocalBus) PublishWorkerEvent(ctx context.Context, eventType EventType, workerID, state string, extra map[string]interface{}) error {
	event := NewEvent(eventType, WorkerEventData(workerID, state, extra))
	return b.Publish(ctx, event)
}

// PublishJournalEvent is a helper to publish journal append/rotation events.
func (b *LocalBus) PublishJournalEvent(ctx context.Context, eventType EventType, requestID string, sequence uint64, extra map[string]interface{}) error {
	event := NewEvent(eventType, JournalEventData(requestID, sequence, extra))
	return b.Publish(ctx, event)
}

// PublishRecoveryEvent is a helper to publish recovery attempt/outcome events.
func (b *LocalBus) PublishRecoveryEvent(ctx context.Context, eventType EventType, requestID string, attempt int, extra map[string]interface{}) error {
	event := NewEvent(eventType, RecoveryEventData(requestID, attempt, extra))
	return b.Publish(ctx, event)
}
