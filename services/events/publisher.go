package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"github.com/rabbitmq/amqp091-go"

	"github.com/customeros/mailmirror/dto"
	"github.com/customeros/mailmirror/internal/logger"
	"github.com/customeros/mailmirror/internal/tracing"
	"github.com/customeros/mailmirror/internal/utils"
)

const (
	DefaultMessageTTL          = 24 * time.Hour
	DefaultPublishAttempts     = 3
	DefaultPublishTimeout      = 5 * time.Second
	DefaultReconnectBackoff    = time.Second
	DefaultMaxReconnectBackoff = 30 * time.Second
)

type PublisherConfig struct {
	MessageTTL          time.Duration
	PublishAttempts     int
	PublishTimeout      time.Duration
	ReconnectBackoff    time.Duration
	MaxReconnectBackoff time.Duration
}

func DefaultPublisherConfig() *PublisherConfig {
	return &PublisherConfig{
		MessageTTL:          DefaultMessageTTL,
		PublishAttempts:     DefaultPublishAttempts,
		PublishTimeout:      DefaultPublishTimeout,
		ReconnectBackoff:    DefaultReconnectBackoff,
		MaxReconnectBackoff: DefaultMaxReconnectBackoff,
	}
}

// RabbitMQPublisher is the broker sink of the notification bus. Notifications
// go to a fanout exchange so any number of foreground processes can bind
// their own queue; command replies go straight to the caller's reply queue.
type RabbitMQPublisher struct {
	url    string
	log    logger.Logger
	config PublisherConfig

	connMu   sync.Mutex
	conn     *amqp091.Connection
	pubMu    sync.Mutex
	channel  *amqp091.Channel
	confirms chan amqp091.Confirmation
	closed   bool
}

func NewRabbitMQPublisher(rabbitmqURL string, log logger.Logger, config *PublisherConfig) (*RabbitMQPublisher, error) {
	if config == nil {
		config = DefaultPublisherConfig()
	}
	if config.PublishAttempts <= 0 {
		config.PublishAttempts = 1
	}

	publisher := &RabbitMQPublisher{
		url:    rabbitmqURL,
		log:    log,
		config: *config,
	}
	if err := publisher.connect(); err != nil {
		return nil, err
	}
	return publisher, nil
}

// Publish forwards a bus notification to the notifications exchange. Sync
// notifications are keyed by account/folder so consumers can partition them.
func (r *RabbitMQPublisher) Publish(ctx context.Context, notification dto.Notification) error {
	entityId := notification.ID
	if notification.SyncProgress != nil {
		entityId = notification.SyncProgress.AccountID + "/" + notification.SyncProgress.FolderID
	}
	return r.PublishFanoutEvent(ctx, entityId, notification.Type.String(), notification)
}

func (r *RabbitMQPublisher) PublishFanoutEvent(ctx context.Context, entityId string, eventType string, message interface{}) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "RabbitMQPublisher.PublishFanoutEvent")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, entityId)

	event := r.newEvent(span, entityId, eventType, message)
	if err := r.publish(ctx, ExchangeNotifications, "", "", event); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

// PublishDirectEvent sends message to one queue through the default exchange.
// It is how a command's ReplyTo gets answered.
func (r *RabbitMQPublisher) PublishDirectEvent(ctx context.Context, routingKey string, message interface{}, correlationId string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "RabbitMQPublisher.PublishDirectEvent")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("routingKey", routingKey, "correlationId", correlationId)

	if err := r.publish(ctx, "", routingKey, correlationId, message); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *RabbitMQPublisher) newEvent(span opentracing.Span, entityId, eventType string, message interface{}) dto.Event {
	carrier := tracing.ExtractTextMapCarrier(span.Context())
	return dto.Event{
		Event: dto.EventDetails{
			Id:        utils.GenerateNanoIDWithPrefix("event", 21),
			AccountId: entityId,
			EventType: eventType,
			Data:      message,
		},
		Metadata: dto.EventMetadata{
			UberTraceId: carrier["uber-trace-id"],
			AppSource:   AppSource,
			Timestamp:   utils.Now().Format(time.RFC3339),
		},
	}
}

func (r *RabbitMQPublisher) publish(ctx context.Context, exchange, routingKey, correlationId string, message interface{}) error {
	body, err := json.Marshal(message)
	if err != nil {
		return errors.Wrap(err, "failed to marshal message")
	}

	retry := &backoff.Backoff{Min: 100 * time.Millisecond, Max: time.Second, Factor: 2}
	for {
		err = r.publishWithConfirm(ctx, exchange, routingKey, correlationId, body)
		if err == nil {
			return nil
		}
		attempt := int(retry.Attempt()) + 1
		if attempt >= r.config.PublishAttempts || ctx.Err() != nil {
			return errors.Wrapf(err, "failed to publish after %d attempts", attempt)
		}
		r.log.Warnf("publish attempt %d to %q failed: %v", attempt, exchange, err)

		select {
		case <-time.After(retry.Duration()):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *RabbitMQPublisher) publishWithConfirm(ctx context.Context, exchange, routingKey, correlationId string, body []byte) error {
	r.pubMu.Lock()
	defer r.pubMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.ensureChannel(); err != nil {
		return err
	}

	err := r.channel.PublishWithContext(ctx, exchange, routingKey,
		false, // notifications may have no consumer bound
		false,
		amqp091.Publishing{
			DeliveryMode:  amqp091.Transient,
			ContentType:   "application/json",
			CorrelationId: correlationId,
			AppId:         AppSource,
			Body:          body,
			Timestamp:     utils.Now(),
		})
	if err != nil {
		return errors.Wrap(err, "failed to publish message")
	}

	select {
	case confirm, ok := <-r.confirms:
		if !ok {
			return errors.New("publish channel closed before confirmation")
		}
		if !confirm.Ack {
			return errors.New("message was nacked by the broker")
		}
		return nil
	case <-time.After(r.config.PublishTimeout):
		return errors.New("publish confirmation timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *RabbitMQPublisher) connect() error {
	r.connMu.Lock()
	defer r.connMu.Unlock()

	if r.closed {
		return errors.New("publisher closed")
	}

	conn, err := amqp091.Dial(r.url)
	if err != nil {
		return errors.Wrap(err, "failed to connect to RabbitMQ")
	}

	setup, err := conn.Channel()
	if err != nil {
		conn.Close()
		return errors.Wrap(err, "failed to open setup channel")
	}
	err = DeclareTopology(setup, r.config.MessageTTL)
	setup.Close()
	if err != nil {
		conn.Close()
		return err
	}

	r.conn = conn
	if err := r.openChannel(); err != nil {
		conn.Close()
		return err
	}

	go r.watchConnection(conn)
	return nil
}

// openChannel requires connMu or pubMu to be held by the caller.
func (r *RabbitMQPublisher) openChannel() error {
	channel, err := r.conn.Channel()
	if err != nil {
		return errors.Wrap(err, "failed to open publish channel")
	}
	if err := channel.Confirm(false); err != nil {
		channel.Close()
		return errors.Wrap(err, "failed to enable publisher confirms")
	}
	r.confirms = channel.NotifyPublish(make(chan amqp091.Confirmation, 1))
	r.channel = channel
	return nil
}

func (r *RabbitMQPublisher) ensureChannel() error {
	if r.conn == nil || r.conn.IsClosed() {
		if err := r.connect(); err != nil {
			return err
		}
	}
	if r.channel == nil || r.channel.IsClosed() {
		return r.openChannel()
	}
	return nil
}

// watchConnection reconnects after the broker drops the connection. A close
// initiated by Close delivers no error and ends the watch.
func (r *RabbitMQPublisher) watchConnection(conn *amqp091.Connection) {
	amqpErr, ok := <-conn.NotifyClose(make(chan *amqp091.Error, 1))
	if !ok || amqpErr == nil {
		return
	}
	r.log.Warnf("RabbitMQ publisher connection lost: %v", amqpErr)

	retry := &backoff.Backoff{Min: r.config.ReconnectBackoff, Max: r.config.MaxReconnectBackoff, Factor: 2}
	for {
		err := r.connect()
		if err == nil {
			r.log.Info("RabbitMQ publisher reconnected")
			return
		}
		r.connMu.Lock()
		closed := r.closed
		r.connMu.Unlock()
		if closed {
			return
		}
		wait := retry.Duration()
		r.log.Errorf("RabbitMQ publisher reconnect failed, next attempt in %s: %v", wait, err)
		time.Sleep(wait)
	}
}

func (r *RabbitMQPublisher) Close() error {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	r.closed = true

	var err error
	if r.channel != nil {
		if chErr := r.channel.Close(); chErr != nil && !errors.Is(chErr, amqp091.ErrClosed) {
			r.log.Errorf("error closing publish channel: %v", chErr)
			err = chErr
		}
	}
	if r.conn != nil && !r.conn.IsClosed() {
		if connErr := r.conn.Close(); connErr != nil {
			r.log.Errorf("error closing RabbitMQ connection: %v", connErr)
			if err == nil {
				err = connErr
			}
		}
	}
	return err
}
