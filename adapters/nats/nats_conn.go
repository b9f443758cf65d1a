package nats

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Config configures a NATS connection.
type Config struct {
	URL           string
	Name          string
	ConnTimeout   time.Duration
	MaxReconnects int
}

// Client is the subset of a NATS connection used by the transport.
type Client interface {
	Publish(ctx context.Context, subject string, data []byte) error
	QueueSubscribe(subject, queue string, ch chan *nats.Msg) (Subscription, error)
	// Closed is closed once the connection is permanently closed, either by
	// Close or after reconnect attempts are exhausted.
	Closed() <-chan struct{}
	Close()
}

// Subscription is satisfied by *nats.Subscription.
type Subscription interface {
	Unsubscribe() error
}

type natsClient struct {
	nc     *nats.Conn
	closed chan struct{}
}

func (c natsClient) Publish(ctx context.Context, subject string, data []byte) error {
	if err := c.nc.PublishMsg(&nats.Msg{Subject: subject, Data: data}); err != nil {
		return err
	}

	// FlushWithContext insists on a deadline.
	if _, ok := ctx.Deadline(); ok {
		return c.nc.FlushWithContext(ctx)
	}

	return c.nc.Flush()
}

func (c natsClient) QueueSubscribe(subject, queue string, ch chan *nats.Msg) (Subscription, error) {
	sub, err := c.nc.ChanQueueSubscribe(subject, queue, ch)
	if err != nil {
		return nil, err
	}

	return sub, nil
}

func (c natsClient) Closed() <-chan struct{} { return c.closed }

func (c natsClient) Close() {
	if c.nc != nil && !c.nc.IsClosed() {
		_ = c.nc.Drain() //nolint:errcheck // Close has no error return
		c.nc.Close()
	}
}

func connect(cfg Config) (Client, error) {
	name := cfg.Name
	if name == "" {
		name = "scg-event-bus-" + uuid.NewString()
	}

	closed := make(chan struct{})

	var once sync.Once

	opts := []nats.Option{
		nats.Name(name),
		nats.ClosedHandler(func(*nats.Conn) { once.Do(func() { close(closed) }) }),
	}

	if cfg.ConnTimeout > 0 {
		opts = append(opts, nats.Timeout(cfg.ConnTimeout))
	}

	if cfg.MaxReconnects != 0 {
		opts = append(opts, nats.MaxReconnects(cfg.MaxReconnects))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, err
	}

	return natsClient{nc: nc, closed: closed}, nil
}
