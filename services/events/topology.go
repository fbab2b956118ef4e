package events

import (
	"time"

	"github.com/pkg/errors"
	"github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeNotifications = "mailmirror-notifications"
	ExchangeCommands      = "mailmirror-commands"
	ExchangeDeadLetter    = "mailmirror-dead-letter"

	QueueCommands = "mailmirror-commands"
	DLQCommands   = QueueCommands + "-dlq"

	RoutingKeyDeadLetter = "dead-letter"
	RoutingKeyCommand    = "command"

	AppSource = "mailmirror"
)

type exchangeSpec struct {
	name string
	kind string
}

type queueSpec struct {
	name     string
	exchange string
	key      string
	// deadLetter is set on queues whose rejected or expired deliveries move
	// to the dead-letter exchange.
	deadLetter bool
}

var topologyExchanges = []exchangeSpec{
	{name: ExchangeDeadLetter, kind: amqp091.ExchangeDirect},
	{name: ExchangeNotifications, kind: amqp091.ExchangeFanout},
	{name: ExchangeCommands, kind: amqp091.ExchangeDirect},
}

// dead-letter queues first, the queues referencing them afterwards
var topologyQueues = []queueSpec{
	{name: DLQCommands, exchange: ExchangeDeadLetter, key: RoutingKeyDeadLetter},
	{name: QueueCommands, exchange: ExchangeCommands, key: RoutingKeyCommand, deadLetter: true},
}

// DeclareTopology declares every exchange and queue the service uses. Both
// the publisher and the subscriber call it; declarations are idempotent.
func DeclareTopology(channel *amqp091.Channel, messageTTL time.Duration) error {
	for _, exchange := range topologyExchanges {
		if err := channel.ExchangeDeclare(exchange.name, exchange.kind, true, false, false, false, nil); err != nil {
			return errors.Wrapf(err, "failed to declare exchange %s", exchange.name)
		}
	}

	for _, queue := range topologyQueues {
		var args amqp091.Table
		if queue.deadLetter {
			args = amqp091.Table{
				"x-dead-letter-exchange":    ExchangeDeadLetter,
				"x-dead-letter-routing-key": RoutingKeyDeadLetter,
				"x-message-ttl":             messageTTL.Milliseconds(),
			}
		}
		if _, err := channel.QueueDeclare(queue.name, true, false, false, false, args); err != nil {
			return errors.Wrapf(err, "failed to declare queue %s", queue.name)
		}
		if err := channel.QueueBind(queue.name, queue.key, queue.exchange, false, nil); err != nil {
			return errors.Wrapf(err, "failed to bind queue %s to %s", queue.name, queue.exchange)
		}
	}
	return nil
}
