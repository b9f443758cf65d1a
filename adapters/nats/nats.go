// Package nats provides a core NATS transport for the event bus.
//
// Each event name is a subject, and every consumer joins the queue group of the
// same name so that one member of the group receives each message, like
// consumers sharing a broker queue. Core NATS does not persist messages:
// publishing with no subscriber loses the message, and delivery is at-most-once.
package nats

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"

	cbus "github.com/next-trace/scg-event-bus/contract/bus"
	berr "github.com/next-trace/scg-event-bus/contract/errors"
)

// pendingMsgs bounds messages buffered between the NATS client and a consumer stream.
const pendingMsgs = 256

// Transport implements cbus.Transport over one NATS connection.
type Transport struct {
	client Client

	mu     sync.Mutex
	done   chan struct{}
	closed bool
}

var _ cbus.Transport = (*Transport)(nil)

// New connects to cfg.URL.
func New(cfg Config) (*Transport, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: nats url required", berr.ErrTransportNotConfigured)
	}

	c, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: nats connect: %w", berr.ErrTransportNotConfigured, err)
	}

	return NewWithClient(c), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(c Client) *Transport {
	return &Transport{client: c, done: make(chan struct{})}
}

// DeclareQueue only checks that the transport is usable: subjects and queue
// groups need no declaration.
func (t *Transport) DeclareQueue(ctx context.Context, name string) error {
	_ = name
	return t.ready(ctx, "declare", berr.ErrSubscribeFailed)
}

func (t *Transport) Publish(ctx context.Context, name string, body []byte) error {
	if err := t.ready(ctx, "publish", berr.ErrPublishFailed); err != nil {
		return err
	}

	if err := t.client.Publish(ctx, name, body); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("nats publish %q: %w", name, errors.Join(berr.ErrPublishFailed, err))
	}

	return nil
}

// Consume joins the queue group name on subject name. The stream ends when
// ctx is done, the transport is closed, or the connection is lost for good.
func (t *Transport) Consume(ctx context.Context, name string) (<-chan cbus.Delivery, error) {
	if err := t.ready(ctx, "consume", berr.ErrSubscribeFailed); err != nil {
		return nil, err
	}

	msgs := make(chan *nats.Msg, pendingMsgs)

	sub, err := t.client.QueueSubscribe(name, name, msgs)
	if err != nil {
		return nil, fmt.Errorf("nats consume %q: %w", name, errors.Join(berr.ErrSubscribeFailed, err))
	}

	out := make(chan cbus.Delivery)
	lost := t.client.Closed()

	go func() {
		defer close(out)
		defer func() { _ = sub.Unsubscribe() }()

		for {
			select {
			case <-ctx.Done():
				return
			case <-t.done:
				return
			case <-lost:
				return
			case m := <-msgs:
				select {
				case out <- cbus.Delivery{RoutingKey: m.Subject, Body: m.Data}:
				case <-ctx.Done():
					return
				case <-t.done:
					return
				case <-lost:
					return
				}
			}
		}
	}()

	return out, nil
}

// Close ends all consumer streams and drains the connection.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.done)
	t.mu.Unlock()

	if t.client != nil {
		t.client.Close()
	}

	return nil
}

func (t *Transport) ready(ctx context.Context, label string, base error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client == nil {
		return fmt.Errorf("nats %s: %w", label, base)
	}

	if t.closed {
		return fmt.Errorf("nats %s: %w", label, berr.ErrBusClosed)
	}

	return nil
}
