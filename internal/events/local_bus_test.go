package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLocalBus(t *testing.T) {
	bus := NewLocalBus()

	assert.NotNil(t, bus)
	assert.NotNil(t, bus.subs)
	assert.Len(t, bus.subs, 0)
}

func TestLocalBus_PublishSubscribe_Filtered(t *testing.T) {
	bus := NewLocalBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx, EventTaskCompleted)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, NewEvent(EventTaskStarted, nil)))
	require.NoError(t, bus.Publish(ctx, NewEvent(EventTaskCompleted, map[string]interface{}{"task_id": "t1"})))

	select {
	case got := <-ch:
		assert.Equal(t, EventTaskCompleted, got.Type)
		assert.Equal(t, "t1", got.Data["task_id"])
	case <-time.After(time.Second):
		t.Fatal("expected event was never delivered")
	}

	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra event delivered: %v", extra)
	default:
	}
}

func TestLocalBus_SubscribeAll(t *testing.T) {
	bus := NewLocalBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.SubscribeAll(ctx)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, NewEvent(EventWorkerJoined, nil)))
	require.NoError(t, bus.Publish(ctx, NewEvent(EventRecoveryOutcome, nil)))

	received := make(map[EventType]bool)
	for i := 0; i < 2; i++ {
		select {
		case got := <-ch:
			received[got.Type] = true
		case <-time.After(time.Second):
			t.Fatal("did not receive expected events")
		}
	}

	assert.True(t, received[EventWorkerJoined])
	assert.True(t, received[EventRecoveryOutcome])
}

func TestLocalBus_CancelContextClosesChannel(t *testing.T) {
	bus := NewLocalBus()
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := bus.SubscribeAll(ctx)
	require.NoError(t, err)

	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel was not closed after context cancellation")
	}
}

func TestLocalBus_Close_EmptySubscribers(t *testing.T) {
	bus := NewLocalBus()

	err := bus.Close()
	assert.NoError(t, err)
	assert.Len(t, bus.subs, 0)
}

func TestLocalBus_Close_ClosesAllSubscribers(t *testing.T) {
	bus := NewLocalBus()
	ctx := context.Background()

	ch, err := bus.SubscribeAll(ctx)
	require.NoError(t, err)

	require.NoError(t, bus.Close())

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel was not closed")
	}

	// Publishing after close is a no-op, not an error.
	assert.NoError(t, bus.Publish(ctx, NewEvent(EventSystemMetrics, nil)))
}

func TestLocalBus_PublishHelpers(t *testing.T) {
	bus := NewLocalBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.SubscribeAll(ctx)
	require.NoError(t, err)

	require.NoError(t, bus.PublishTaskEvent(ctx, EventTaskScheduled, "t1", "io", "high", nil))
	require.NoError(t, bus.PublishWorkerEvent(ctx, EventWorkerPaused, "w1", "paused", nil))
	require.NoError(t, bus.PublishJournalEvent(ctx, EventJournalAppended, "req-1", 7, nil))
	require.NoError(t, bus.PublishRecoveryEvent(ctx, EventRecoveryOutcome, "req-1", 1, map[string]interface{}{"outcome": "success"}))

	seen := make([]EventType, 0, 4)
	for i := 0; i < 4; i++ {
		select {
		case got := <-ch:
			seen = append(seen, got.Type)
		case <-time.After(time.Second):
			t.Fatal("did not receive all published events")
		}
	}

	assert.Contains(t, seen, EventTaskScheduled)
	assert.Contains(t, seen, EventWorkerPaused)
	assert.Contains(t, seen, EventJournalAppended)
	assert.Contains(t, seen, EventRecoveryOutcome)
}

func TestLocalBus_SlowSubscriberDropsRatherThanBlocks(t *testing.T) {
	bus := NewLocalBus()
	ctx := context.Background()

	_, err := bus.SubscribeAll(ctx)
	require.NoError(t, err)

	for i := 0; i < subscriberBufferSize+10; i++ {
		require.NoError(t, bus.Publish(ctx, NewEvent(EventSystemMetrics, nil)))
	}
}
