package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probeflow/probeflow/pkg/channels/gochannel"
	"github.com/probeflow/probeflow/pkg/events"
	"github.com/probeflow/probeflow/pkg/models"
)

func newTestBus(t *testing.T) EventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := NewWatermillEventBus(pub, sub)
	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func TestWatermillEventBus_PublishAndHandle(t *testing.T) {
	bus := newTestBus(t)

	received := make(chan *events.RunCreated, 1)

	err := bus.Handle(events.RunCreatedEvent, func(_ context.Context, event any) error {
		created, ok := event.(*events.RunCreated)
		require.True(t, ok)
		received <- created

		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	event := events.RunCreated{
		BaseEvent: events.BaseEvent{
			ID:         bus.GenerateID(),
			Type:       events.RunCreatedEvent,
			Timestamp:  time.Now().UTC(),
			WorkflowID: "wf-1",
		},
		RunID: "run-1",
	}

	require.NoError(t, bus.Publish(ctx, "wf-1", event))

	select {
	case got := <-received:
		assert.Equal(t, "run-1", got.RunID)
		assert.Equal(t, "wf-1", got.WorkflowID)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestWatermillEventBus_NodeEventsOnSeparateTopic(t *testing.T) {
	bus := newTestBus(t)

	nodeEvents := make(chan *events.NodeExecutionFinished, 1)

	err := bus.Handle(events.NodeExecutionFinishedEvent, func(_ context.Context, event any) error {
		nodeEvents <- event.(*events.NodeExecutionFinished)

		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	event := events.NodeExecutionFinished{
		BaseEvent: events.BaseEvent{
			ID:        bus.GenerateID(),
			Type:      events.NodeExecutionFinishedEvent,
			Timestamp: time.Now().UTC(),
		},
		RunID:  "run-1",
		NodeID: "fetch",
		Kind:   models.NodeKindHTTPRequest,
		Status: models.ResultStatusSuccess,
	}

	require.NoError(t, bus.Publish(ctx, "run-1", event))

	select {
	case got := <-nodeEvents:
		assert.Equal(t, "fetch", got.NodeID)
		assert.Equal(t, models.ResultStatusSuccess, got.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("node event was not delivered")
	}
}

func TestWatermillEventBus_UnhandledEventIsDropped(t *testing.T) {
	bus := newTestBus(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	event := events.RunCancelled{
		BaseEvent: events.BaseEvent{ID: bus.GenerateID(), Type: events.RunCancelledEvent},
		RunID:     "run-1",
	}

	assert.NoError(t, bus.Publish(ctx, "run-1", event))
}
