package bus

import "context"

// Delivery is one inbound broker message. RoutingKey is the event name the
// message was addressed to; Body is the encoded event.
type Delivery struct {
	RoutingKey string
	Body       []byte
}

// Publisher writes an encoded event to the queue named after the event.
// Delivery is fire-and-forget: no confirmation, no retry.
type Publisher interface {
	Publish(ctx context.Context, name string, body []byte) error
}

// Consumer opens a long-lived stream for one queue.
//
// Messages are acknowledged by the broker when they are handed to the stream,
// so a message whose processing fails is lost. The stream is closed when ctx is
// done or the underlying connection is lost; it is never restarted.
type Consumer interface {
	DeclareQueue(ctx context.Context, name string) error
	Consume(ctx context.Context, name string) (<-chan Delivery, error)
}

// Transport is implemented by every broker adapter (RabbitMQ, NATS, Kafka, in-memory).
type Transport interface {
	Publisher
	Consumer
	Close() error
}
