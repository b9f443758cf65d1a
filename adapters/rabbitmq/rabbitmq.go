package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	cbus "github.com/next-trace/scg-event-bus/contract/bus"
	berr "github.com/next-trace/scg-event-bus/contract/errors"
)

const defaultContentType = "application/json"

// Transport implements cbus.Transport over AMQP 0-9-1.
type Transport struct {
	cfg  Config
	dial Dialer

	mu        sync.Mutex
	consumers map[Connection]struct{}
	closed    bool
}

var _ cbus.Transport = (*Transport)(nil)

// New validates cfg and returns a transport that dials with amqp091-go.
// No connection is opened until the first publish or consume.
func New(cfg Config) (*Transport, error) {
	return NewWithDialer(cfg, DialAMQP)
}

// NewWithDialer is New with a custom Dialer.
func NewWithDialer(cfg Config, dial Dialer) (*Transport, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: rabbitmq url required", berr.ErrTransportNotConfigured)
	}

	if cfg.ContentType == "" {
		cfg.ContentType = defaultContentType
	}

	return &Transport{cfg: cfg, dial: dial, consumers: make(map[Connection]struct{})}, nil
}

// DeclareQueue declares the queue for name on a short-lived connection.
// Declaring an existing queue with the same properties is a no-op.
func (t *Transport) DeclareQueue(ctx context.Context, name string) error {
	if err := t.ready(ctx); err != nil {
		return err
	}

	conn, ch, err := t.open(name)
	if err != nil {
		return wrap("declare", name, berr.ErrSubscribeFailed, err)
	}
	defer closeAll(ch, conn)

	return wrap("declare", name, berr.ErrSubscribeFailed, t.declare(ch, name))
}

// Publish opens a connection, declares the queue, writes body with the event
// name as routing key and closes the connection again. There is no publisher
// confirm and no retry.
func (t *Transport) Publish(ctx context.Context, name string, body []byte) error {
	if err := t.ready(ctx); err != nil {
		return err
	}

	conn, ch, err := t.open(name)
	if err != nil {
		return wrap("publish", name, berr.ErrPublishFailed, err)
	}
	defer closeAll(ch, conn)

	if err := t.declare(ch, name); err != nil {
		return wrap("publish", name, berr.ErrPublishFailed, err)
	}

	err = ch.PublishWithContext(ctx, "", name, false, false, amqp.Publishing{
		ContentType:  t.cfg.ContentType,
		DeliveryMode: amqp.Transient,
		Body:         body,
	})

	return wrap("publish", name, berr.ErrPublishFailed, err)
}

// Consume opens a dedicated connection, declares the queue and starts an
// auto-ack consumer on it. The stream ends when ctx is done, the transport is
// closed, or the broker drops the connection.
func (t *Transport) Consume(ctx context.Context, name string) (<-chan cbus.Delivery, error) {
	if err := t.ready(ctx); err != nil {
		return nil, err
	}

	conn, ch, err := t.open(name)
	if err != nil {
		return nil, wrap("consume", name, berr.ErrSubscribeFailed, err)
	}

	if err := t.declare(ch, name); err != nil {
		closeAll(ch, conn)
		return nil, wrap("consume", name, berr.ErrSubscribeFailed, err)
	}

	tag := "scg-event-bus." + name + "." + uuid.NewString()

	msgs, err := ch.Consume(name, tag, true, false, false, false, nil)
	if err != nil {
		closeAll(ch, conn)
		return nil, wrap("consume", name, berr.ErrSubscribeFailed, err)
	}

	if !t.track(conn) {
		closeAll(ch, conn)
		return nil, wrap("consume", name, berr.ErrSubscribeFailed, berr.ErrBusClosed)
	}

	out := make(chan cbus.Delivery)

	go func() {
		defer close(out)
		defer t.untrack(conn)
		defer closeAll(ch, conn)

		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-msgs:
				if !ok {
					return
				}

				select {
				case out <- cbus.Delivery{RoutingKey: d.RoutingKey, Body: d.Body}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close closes every consumer connection, which ends their streams.
func (t *Transport) Close() error {
	t.mu.Lock()
	t.closed = true
	conns := make([]Connection, 0, len(t.consumers))
	for c := range t.consumers {
		conns = append(conns, c)
	}
	t.mu.Unlock()

	var errs []error

	for _, c := range conns {
		if err := c.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (t *Transport) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return fmt.Errorf("rabbitmq: %w", berr.ErrBusClosed)
	}

	return nil
}

func (t *Transport) open(name string) (Connection, Channel, error) {
	conn, err := t.dial(t.cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("dial for %q: %w", name, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel for %q: %w", name, err)
	}

	return conn, ch, nil
}

func (t *Transport) declare(ch Channel, name string) error {
	_, err := ch.QueueDeclare(name, t.cfg.Durable, false, false, false, nil)
	return err
}

func (t *Transport) track(conn Connection) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return false
	}

	t.consumers[conn] = struct{}{}

	return true
}

func (t *Transport) untrack(conn Connection) {
	t.mu.Lock()
	delete(t.consumers, conn)
	t.mu.Unlock()
}

func closeAll(ch Channel, conn Connection) {
	_ = ch.Close()
	_ = conn.Close()
}

func wrap(label, name string, base, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return fmt.Errorf("rabbitmq %s %q: %w", label, name, errors.Join(base, err))
}
