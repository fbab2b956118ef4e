package interfaces

import (
	"context"

	"github.com/customeros/mailmirror/dto"
)

// Notifier broadcasts to foreground contexts. Delivery is at-most-once and
// Notify never blocks the caller.
type Notifier interface {
	Notify(ctx context.Context, notification dto.Notification)
}

// NotificationSink receives every notification after local subscribers.
type NotificationSink interface {
	Publish(ctx context.Context, notification dto.Notification) error
}

type EventPublisher interface {
	NotificationSink
	PublishFanoutEvent(ctx context.Context, entityId string, eventType string, message interface{}) error
	PublishDirectEvent(ctx context.Context, routingKey string, message interface{}, correlationId string) error
	Close() error
}

type EventListener interface {
	Handle(ctx context.Context, event any) error
	GetEventType() string
	GetQueueName() string
}

type EventSubscriber interface {
	RegisterListener(listener EventListener)
	ListenQueue(queueName string) error
	Close() error
}
