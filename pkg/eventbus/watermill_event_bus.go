package eventbus

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/probeflow/probeflow/pkg/events"
)

// WatermillEventBus routes run events and node events onto separate topics
// over any watermill publisher/subscriber pair.
type WatermillEventBus struct {
	publisher     message.Publisher
	subscriber    message.Subscriber
	subscriptions map[events.EventType]EventHandler
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber) EventBus {
	return &WatermillEventBus{
		publisher:     pub,
		subscriber:    sub,
		subscriptions: make(map[events.EventType]EventHandler),
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

func topicFor(eventType events.EventType) string {
	if eventType == events.NodeExecutionFinishedEvent {
		return events.NodeTopic
	}

	return events.RunTopic
}

func (eb *WatermillEventBus) Publish(ctx context.Context, key string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	return eb.publisher.Publish(topicFor(event.GetType()), msg)
}

// Subscribe consumes both topics and dispatches to registered handlers.
// Messages without a handler are acked and dropped; decode and handler
// failures nack for redelivery.
func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	for _, topic := range []string{events.RunTopic, events.NodeTopic} {
		messages, err := eb.subscriber.Subscribe(ctx, topic)
		if err != nil {
			return err
		}

		go eb.consume(ctx, messages)
	}

	return nil
}

func (eb *WatermillEventBus) consume(ctx context.Context, messages <-chan *message.Message) {
	for msg := range messages {
		eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

		handler, exists := eb.subscriptions[eventType]
		if !exists {
			msg.Ack()

			continue
		}

		event := newEvent(eventType)
		if event == nil {
			msg.Nack()

			continue
		}

		if err := json.Unmarshal(msg.Payload, event); err != nil {
			msg.Nack()

			continue
		}

		if err := handler(ctx, event); err != nil {
			msg.Nack()

			continue
		}

		msg.Ack()
	}
}

func newEvent(eventType events.EventType) any {
	switch eventType {
	case events.RunCreatedEvent:
		return &events.RunCreated{}
	case events.RunStartedEvent:
		return &events.RunStarted{}
	case events.RunCompletedEvent:
		return &events.RunCompleted{}
	case events.RunFailedEvent:
		return &events.RunFailed{}
	case events.RunCancelledEvent:
		return &events.RunCancelled{}
	case events.NodeExecutionFinishedEvent:
		return &events.NodeExecutionFinished{}
	default:
		return nil
	}
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	eb.subscriptions[eventType] = handler

	return nil
}

func (eb *WatermillEventBus) Close() error {
	if err := eb.publisher.Close(); err != nil {
		return err
	}

	return eb.subscriber.Close()
}
