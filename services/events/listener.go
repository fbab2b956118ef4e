package events

import (
	"context"
	"encoding/json"
	"reflect"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailmirror/dto"
	"github.com/customeros/mailmirror/interfaces"
	"github.com/customeros/mailmirror/internal/logger"
	"github.com/customeros/mailmirror/internal/tracing"
)

type deliveryKey struct{}

// DeliveryInfo carries the RPC properties of the message being handled.
type DeliveryInfo struct {
	ReplyTo       string
	CorrelationId string
}

func WithDelivery(ctx context.Context, info DeliveryInfo) context.Context {
	return context.WithValue(ctx, deliveryKey{}, info)
}

func DeliveryFromContext(ctx context.Context) (DeliveryInfo, bool) {
	info, ok := ctx.Value(deliveryKey{}).(DeliveryInfo)
	return info, ok && info.ReplyTo != ""
}

// BaseEventListener holds what every listener reports to the subscriber.
type BaseEventListener struct {
	logger    logger.Logger
	eventType string
	queueName string
}

func NewBaseEventListener(logger logger.Logger, eventType, queueName string) BaseEventListener {
	return BaseEventListener{logger: logger, eventType: eventType, queueName: queueName}
}

func (b BaseEventListener) GetEventType() string { return b.eventType }

func (b BaseEventListener) GetQueueName() string { return b.queueName }

// ValidateBaseEvent checks the envelope before any listener-specific decoding.
func (b BaseEventListener) ValidateBaseEvent(ctx context.Context, input any) (*dto.Event, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "Events.ValidateEvent")
	defer span.Finish()
	tracing.SetDefaultListenerSpanTags(ctx, span)

	var event dto.Event
	switch v := input.(type) {
	case dto.Event:
		event = v
	case *dto.Event:
		if v == nil {
			return nil, traceErr(span, errors.New("event is nil"))
		}
		event = *v
	default:
		return nil, traceErr(span, errors.Errorf("unexpected event payload %T", input))
	}

	switch {
	case event.Event.Data == nil:
		return nil, traceErr(span, errors.New("event data is nil"))
	case event.Event.EventType == "":
		return nil, traceErr(span, errors.New("event type is empty"))
	}
	return &event, nil
}

func traceErr(span opentracing.Span, err error) error {
	tracing.TraceErr(span, err)
	return err
}

// DecodeEventData re-encodes the generic event data into T. Data arrives as
// whatever encoding/json produced for an interface{} field.
func DecodeEventData[T any](ctx context.Context, event *dto.Event) (T, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "Listener.DecodeEventData")
	defer span.Finish()
	tracing.SetDefaultListenerSpanTags(ctx, span)

	var decoded T
	raw, err := json.Marshal(event.Event.Data)
	if err != nil {
		return decoded, traceErr(span, errors.Wrap(err, "failed to encode event data"))
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return decoded, traceErr(span, errors.Wrapf(err, "event data is not a %s", GetEventType[T]()))
	}
	return decoded, nil
}

// GetEventType names events after their Go type, pointer or not.
func GetEventType[T any]() string {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// CommandListener accepts foreground commands from the command queue and
// answers on the delivery's ReplyTo when one is set.
type CommandListener struct {
	BaseEventListener
	handler   interfaces.CommandHandler
	publisher interfaces.EventPublisher
}

func NewCommandListener(logger logger.Logger, handler interfaces.CommandHandler, publisher interfaces.EventPublisher) *CommandListener {
	return &CommandListener{
		BaseEventListener: NewBaseEventListener(logger, GetEventType[dto.Command](), QueueCommands),
		handler:           handler,
		publisher:         publisher,
	}
}

// Handle returns an error only for malformed events so they are dead-lettered.
// A rejected command is an answer, not a failure.
func (l *CommandListener) Handle(ctx context.Context, input any) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "CommandListener.Handle")
	defer span.Finish()
	tracing.SetDefaultListenerSpanTags(ctx, span)

	event, err := l.ValidateBaseEvent(ctx, input)
	if err != nil {
		return err
	}

	command, err := DecodeEventData[dto.Command](ctx, event)
	if err != nil {
		return errors.Wrap(err, "failed to decode command")
	}
	tracing.TagAccount(span, command.AccountID)

	reply, err := l.handler.Handle(ctx, command)
	if err != nil {
		tracing.TraceErr(span, err)
		l.logger.Warnf("command %s rejected: %v", command.Type, err)
		if reply == nil {
			reply = &dto.CommandReply{Type: command.Type, Error: err.Error()}
		}
	}

	if delivery, ok := DeliveryFromContext(ctx); ok && reply != nil && l.publisher != nil {
		if err := l.publisher.PublishDirectEvent(ctx, delivery.ReplyTo, reply, delivery.CorrelationId); err != nil {
			tracing.TraceErr(span, err)
			l.logger.Errorf("failed to reply to command %s: %v", command.Type, err)
		}
	}

	return nil
}
