package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/pkg/errors"
	"github.com/rabbitmq/amqp091-go"

	"github.com/customeros/mailmirror/dto"
	"github.com/customeros/mailmirror/interfaces"
	"github.com/customeros/mailmirror/internal/logger"
	"github.com/customeros/mailmirror/internal/tracing"
	"github.com/customeros/mailmirror/internal/utils"
)

const settleAttempts = 5

type SubscriberConfig struct {
	MessageTTL          time.Duration
	ReconnectBackoff    time.Duration
	MaxReconnectBackoff time.Duration
}

func DefaultSubscriberConfig() *SubscriberConfig {
	return &SubscriberConfig{
		MessageTTL:          DefaultMessageTTL,
		ReconnectBackoff:    DefaultReconnectBackoff,
		MaxReconnectBackoff: DefaultMaxReconnectBackoff,
	}
}

// RabbitMQSubscriber feeds broker deliveries to the listener registered for
// their event type. Deliveries are handled one at a time per queue.
type RabbitMQSubscriber struct {
	url    string
	log    logger.Logger
	config SubscriberConfig

	connMu sync.Mutex
	conn   *amqp091.Connection

	listenersMu sync.RWMutex
	listeners   map[string]interfaces.EventListener

	done      chan struct{}
	closeOnce sync.Once
}

func NewRabbitMQSubscriber(rabbitmqURL string, log logger.Logger, config *SubscriberConfig) (*RabbitMQSubscriber, error) {
	if config == nil {
		config = DefaultSubscriberConfig()
	}

	subscriber := &RabbitMQSubscriber{
		url:       rabbitmqURL,
		log:       log,
		config:    *config,
		listeners: make(map[string]interfaces.EventListener),
		done:      make(chan struct{}),
	}
	if _, err := subscriber.connection(); err != nil {
		return nil, err
	}
	return subscriber, nil
}

func (r *RabbitMQSubscriber) RegisterListener(listener interfaces.EventListener) {
	r.listenersMu.Lock()
	defer r.listenersMu.Unlock()

	r.listeners[listener.GetEventType()] = listener
	r.log.Infof("registered listener for %s on queue %s", listener.GetEventType(), listener.GetQueueName())
}

func (r *RabbitMQSubscriber) listenerFor(eventType string) (interfaces.EventListener, bool) {
	r.listenersMu.RLock()
	defer r.listenersMu.RUnlock()
	listener, ok := r.listeners[eventType]
	return listener, ok
}

// ListenQueue consumes queueName in the background until Close, reconnecting
// with backoff whenever the delivery channel ends.
func (r *RabbitMQSubscriber) ListenQueue(queueName string) error {
	go func() {
		retry := &backoff.Backoff{Min: r.config.ReconnectBackoff, Max: r.config.MaxReconnectBackoff, Factor: 2}
		for {
			if err := r.consume(queueName); err != nil {
				r.log.Errorf("consumer on %s failed: %v", queueName, err)
			} else {
				retry.Reset()
			}

			wait := retry.Duration()
			select {
			case <-r.done:
				return
			case <-time.After(wait):
			}
		}
	}()
	return nil
}

func (r *RabbitMQSubscriber) consume(queueName string) error {
	conn, err := r.connection()
	if err != nil {
		return err
	}

	channel, err := conn.Channel()
	if err != nil {
		return errors.Wrap(err, "failed to open channel")
	}
	defer channel.Close()

	if err := DeclareTopology(channel, r.config.MessageTTL); err != nil {
		return err
	}
	if err := channel.Qos(1, 0, false); err != nil {
		return errors.Wrap(err, "failed to set qos")
	}

	deliveries, err := channel.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return errors.Wrapf(err, "failed to consume %s", queueName)
	}

	r.log.Infof("consuming queue %s", queueName)
	for {
		select {
		case <-r.done:
			return nil
		case d, ok := <-deliveries:
			if !ok {
				r.log.Warnf("delivery channel for %s closed", queueName)
				return nil
			}
			r.handleDelivery(d, queueName)
		}
	}
}

func (r *RabbitMQSubscriber) handleDelivery(d amqp091.Delivery, queueName string) {
	defer tracing.RecoverAndLogToJaeger(r.log)

	if err := r.dispatch(d, queueName); err != nil {
		r.log.Errorf("rejecting delivery on %s: %v", queueName, err)
		r.settle(d, false)
		return
	}
	r.settle(d, true)
}

func (r *RabbitMQSubscriber) dispatch(d amqp091.Delivery, queueName string) error {
	var event dto.Event
	if err := json.Unmarshal(d.Body, &event); err != nil {
		return errors.Wrap(err, "failed to unmarshal delivery")
	}

	ctx := utils.WithCustomContext(context.Background(), &utils.CustomContext{
		AppSource: event.Metadata.AppSource,
		AccountID: event.Event.AccountId,
		RequestID: d.CorrelationId,
	})
	ctx = WithDelivery(ctx, DeliveryInfo{ReplyTo: d.ReplyTo, CorrelationId: d.CorrelationId})

	ctx, span := tracing.StartRabbitMQMessageTracerSpanWithHeader(ctx, "RabbitMQSubscriber.Dispatch", event.Metadata.UberTraceId)
	defer span.Finish()
	span.LogKV("event_type", event.Event.EventType, "queue_name", queueName)

	listener, ok := r.listenerFor(event.Event.EventType)
	if !ok {
		r.log.Infof("no listener for %s on %s, dropping", event.Event.EventType, queueName)
		return nil
	}
	if listener.GetQueueName() != queueName {
		r.log.Warnf("%s arrived on %s, listener expects %s", event.Event.EventType, queueName, listener.GetQueueName())
		return nil
	}
	return listener.Handle(ctx, event)
}

// settle acks or rejects a delivery. Rejected deliveries are not requeued and
// end up in the dead-letter queue.
func (r *RabbitMQSubscriber) settle(d amqp091.Delivery, ack bool) {
	retry := &backoff.Backoff{Min: 50 * time.Millisecond, Max: 500 * time.Millisecond, Factor: 2}
	var err error
	for attempt := 0; attempt < settleAttempts; attempt++ {
		if ack {
			err = d.Ack(false)
		} else {
			err = d.Nack(false, false)
		}
		if err == nil {
			return
		}
		time.Sleep(retry.Duration())
	}
	r.log.Errorf("failed to settle delivery %d (ack=%t): %v", d.DeliveryTag, ack, err)
}

func (r *RabbitMQSubscriber) connection() (*amqp091.Connection, error) {
	r.connMu.Lock()
	defer r.connMu.Unlock()

	if r.conn != nil && !r.conn.IsClosed() {
		return r.conn, nil
	}
	conn, err := amqp091.Dial(r.url)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to RabbitMQ")
	}
	r.conn = conn
	return conn, nil
}

func (r *RabbitMQSubscriber) Close() error {
	r.closeOnce.Do(func() { close(r.done) })

	r.connMu.Lock()
	defer r.connMu.Unlock()
	if r.conn != nil && !r.conn.IsClosed() {
		return r.conn.Close()
	}
	return nil
}
