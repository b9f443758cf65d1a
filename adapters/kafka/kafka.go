// Package kafka provides a Kafka transport for the event bus on franz-go.
//
// Each event name is a topic. Every consumer joins the consumer group of the
// same name, so the group shares the topic like consumers of one broker queue.
// Offsets are committed as soon as records are fetched, which keeps delivery
// at-most-once.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/twmb/franz-go/pkg/kgo"

	cbus "github.com/next-trace/scg-event-bus/contract/bus"
	berr "github.com/next-trace/scg-event-bus/contract/errors"
)

// Transport implements cbus.Transport with one producer client and one
// consumer client per consumed topic.
type Transport struct {
	cfg      Config
	factory  ClientFactory
	producer Client

	mu        sync.Mutex
	consumers map[Client]struct{}
	closed    bool
}

var _ cbus.Transport = (*Transport)(nil)

// New builds a transport using kgo.NewClient.
func New(cfg Config) (*Transport, error) {
	return NewWithFactory(cfg, NewKgoFactory())
}

// NewWithFactory builds a transport whose clients come from factory.
func NewWithFactory(cfg Config, factory ClientFactory) (*Transport, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("%w: kafka brokers required", berr.ErrTransportNotConfigured)
	}

	if factory == nil {
		return nil, fmt.Errorf("%w: kafka client factory required", berr.ErrTransportNotConfigured)
	}

	p, err := factory(cfg.producerOpts()...)
	if err != nil {
		return nil, fmt.Errorf("%w: kafka client init: %w", berr.ErrTransportNotConfigured, err)
	}

	return &Transport{
		cfg:       cfg,
		factory:   factory,
		producer:  p,
		consumers: make(map[Client]struct{}),
	}, nil
}

// DeclareQueue is a no-op beyond a usability check: topics are created on
// first use since clients allow auto topic creation.
func (t *Transport) DeclareQueue(ctx context.Context, name string) error {
	_ = name
	return t.ready(ctx, "declare", berr.ErrSubscribeFailed)
}

func (t *Transport) Publish(ctx context.Context, name string, body []byte) error {
	if err := t.ready(ctx, "publish", berr.ErrPublishFailed); err != nil {
		return err
	}

	rec := &kgo.Record{Topic: name, Value: body}
	if err := t.producer.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return wrap(fmt.Sprintf("kafka publish to %q", name), berr.ErrPublishFailed, err)
	}

	return nil
}

// Consume starts a dedicated group consumer for topic name.
func (t *Transport) Consume(ctx context.Context, name string) (<-chan cbus.Delivery, error) {
	if err := t.ready(ctx, "consume", berr.ErrSubscribeFailed); err != nil {
		return nil, err
	}

	cl, err := t.factory(t.cfg.consumerOpts(name)...)
	if err != nil {
		return nil, wrap(fmt.Sprintf("kafka consume %q", name), berr.ErrSubscribeFailed, err)
	}

	if !t.track(cl) {
		cl.Close()
		return nil, fmt.Errorf("kafka consume: %w", berr.ErrBusClosed)
	}

	out := make(chan cbus.Delivery)

	go func() {
		defer close(out)
		defer t.untrack(cl)

		for {
			fetches := cl.PollFetches(ctx)
			if fetches.IsClientClosed() || ctx.Err() != nil {
				return
			}

			var recs []*kgo.Record

			fetches.EachRecord(func(r *kgo.Record) { recs = append(recs, r) })

			if len(recs) == 0 {
				continue
			}

			// Commit failures are not retried; the records are still delivered once.
			_ = cl.CommitRecords(ctx, recs...)

			for _, r := range recs {
				select {
				case out <- cbus.Delivery{RoutingKey: r.Topic, Body: r.Value}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close closes every consumer client, then the producer.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}

	t.closed = true
	consumers := t.consumers
	t.consumers = nil
	t.mu.Unlock()

	for cl := range consumers {
		cl.Close()
	}

	if t.producer != nil {
		t.producer.Close()
	}

	return nil
}

func (t *Transport) ready(ctx context.Context, label string, base error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.producer == nil {
		return fmt.Errorf("kafka %s: %w", label, base)
	}

	if t.closed {
		return fmt.Errorf("kafka %s: %w", label, berr.ErrBusClosed)
	}

	return nil
}

func (t *Transport) track(cl Client) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return false
	}

	t.consumers[cl] = struct{}{}

	return true
}

func (t *Transport) untrack(cl Client) {
	t.mu.Lock()
	closed := t.closed
	delete(t.consumers, cl)
	t.mu.Unlock()

	// Close owns the client once the transport is closed.
	if !closed {
		cl.Close()
	}
}

func wrap(label string, base, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return fmt.Errorf("%s: %w", label, errors.Join(base, err))
}
