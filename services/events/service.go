package events

import (
	"fmt"

	"github.com/customeros/mailmirror/interfaces"
	"github.com/customeros/mailmirror/internal/logger"
)

// EventsService owns the bus and, when a broker is configured, the RabbitMQ
// publisher and command subscriber.
type EventsService struct {
	Bus        *Bus
	Publisher  *RabbitMQPublisher
	Subscriber *RabbitMQSubscriber
}

func NewEventsService(rabbitmqURL string, log logger.Logger, publisherConfig *PublisherConfig, subscriberConfig *SubscriberConfig) (*EventsService, error) {
	service := &EventsService{Bus: NewBus(log)}
	if rabbitmqURL == "" {
		log.Info("no RabbitMQ url configured, notifications stay in process")
		return service, nil
	}

	publisher, err := NewRabbitMQPublisher(rabbitmqURL, log, publisherConfig)
	if err != nil {
		return nil, err
	}
	service.Publisher = publisher
	service.Bus.AddSink(publisher, DefaultSinkBuffer)

	subscriber, err := NewRabbitMQSubscriber(rabbitmqURL, log, subscriberConfig)
	if err != nil {
		publisher.Close()
		return nil, err
	}
	service.Subscriber = subscriber

	return service, nil
}

// ListenForCommands wires the command queue to handler.
func (s *EventsService) ListenForCommands(log logger.Logger, handler interfaces.CommandHandler) error {
	if s.Subscriber == nil {
		return nil
	}
	s.Subscriber.RegisterListener(NewCommandListener(log, handler, s.Publisher))
	return s.Subscriber.ListenQueue(QueueCommands)
}

func (s *EventsService) Close() error {
	var errs []error

	if s.Subscriber != nil {
		if err := s.Subscriber.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	s.Bus.Close()

	if s.Publisher != nil {
		if err := s.Publisher.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing events service: %v", errs)
	}

	return nil
}
