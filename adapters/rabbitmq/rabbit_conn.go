package rabbitmq

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Connection is the subset of *amqp.Connection used by the transport.
type Connection interface {
	Channel() (Channel, error)
	Close() error
}

// Channel is the subset of *amqp.Channel used by the transport.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// Dialer opens a new broker connection.
type Dialer func(cfg Config) (Connection, error)

// Config configures the RabbitMQ transport.
type Config struct {
	URL         string
	ConnTimeout time.Duration
	// ContentType is set on every published message. Defaults to application/json.
	ContentType string
	// Durable declares queues that survive a broker restart. The default
	// matches peers that declare non-durable queues; both sides must agree.
	Durable bool
}

type amqpConn struct{ conn *amqp.Connection }

func (c amqpConn) Channel() (Channel, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, err
	}

	return ch, nil
}

func (c amqpConn) Close() error { return c.conn.Close() }

// DialAMQP dials cfg.URL with amqp091-go.
func DialAMQP(cfg Config) (Connection, error) {
	conn, err := amqp.DialConfig(cfg.URL, amqp.Config{
		Locale:     "en_US",
		Properties: amqp.Table{"product": "scg-event-bus"},
		Dial:       amqp.DefaultDial(cfg.ConnTimeout),
	})
	if err != nil {
		return nil, err
	}

	return amqpConn{conn: conn}, nil
}
