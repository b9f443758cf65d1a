// Package inmemory provides an in-process cbus.Transport. Each event name gets
// a bounded queue; consumers of the same queue compete for its messages, as
// they would on a broker.
package inmemory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	cbus "github.com/next-trace/scg-event-bus/contract/bus"
	berr "github.com/next-trace/scg-event-bus/contract/errors"
)

// DefaultBuffer is the per-queue capacity used by New.
const DefaultBuffer = 1024

// Transport is a thread-safe in-memory implementation of cbus.Transport.
type Transport struct {
	mu        sync.Mutex
	buffer    int
	queues    map[string]chan cbus.Delivery
	record    bool
	published []cbus.Delivery
	dropped   atomic.Int64
	logger    *slog.Logger
	done      chan struct{}
	closeOnce sync.Once
}

var _ cbus.Transport = (*Transport)(nil)

// Option configures a Transport.
type Option func(*Transport)

// WithRecording keeps every accepted message for Published. Meant for tests
// and examples: the record is never trimmed.
func WithRecording() Option { return func(t *Transport) { t.record = true } }

// WithLogger sets the logger used to report dropped messages.
func WithLogger(l *slog.Logger) Option { return func(t *Transport) { t.logger = l } }

// New creates a transport with DefaultBuffer slots per queue.
func New(opts ...Option) *Transport { return NewWithBuffer(DefaultBuffer, opts...) }

// NewWithBuffer creates a transport with the given per-queue capacity.
func NewWithBuffer(buffer int, opts ...Option) *Transport {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	t := &Transport{
		buffer: buffer,
		queues: make(map[string]chan cbus.Delivery),
		logger: slog.Default(),
		done:   make(chan struct{}),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// DeclareQueue creates the queue if it does not exist yet.
func (t *Transport) DeclareQueue(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := t.queue(name)

	return err
}

// Publish enqueues a copy of body. When the queue is full the message is
// dropped and counted, never blocking or failing the caller.
func (t *Transport) Publish(ctx context.Context, name string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q, err := t.queue(name)
	if err != nil {
		return fmt.Errorf("inmemory publish: %w", berr.ErrPublishFailed)
	}

	d := cbus.Delivery{RoutingKey: name, Body: append([]byte(nil), body...)}

	select {
	case q <- d:
	default:
		t.dropped.Add(1)
		t.logger.DebugContext(ctx, "inmemory queue full, message dropped", "queue", name)

		return nil
	}

	if t.record {
		t.mu.Lock()
		t.published = append(t.published, d)
		t.mu.Unlock()
	}

	return nil
}

// Consume streams the queue until ctx is done or the transport is closed.
func (t *Transport) Consume(ctx context.Context, name string) (<-chan cbus.Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q, err := t.queue(name)
	if err != nil {
		return nil, err
	}

	out := make(chan cbus.Delivery)

	go func() {
		defer close(out)

		for {
			select {
			case <-ctx.Done():
				return
			case <-t.done:
				return
			case d := <-q:
				select {
				case out <- d:
				case <-ctx.Done():
					return
				case <-t.done:
					return
				}
			}
		}
	}()

	return out, nil
}

// Published returns a copy of every message accepted by Publish. It is empty
// unless the transport was built WithRecording.
func (t *Transport) Published() []cbus.Delivery {
	t.mu.Lock()
	defer t.mu.Unlock()

	return append([]cbus.Delivery(nil), t.published...)
}

// Dropped reports how many messages Publish discarded because a queue was full.
func (t *Transport) Dropped() int64 { return t.dropped.Load() }

// Close ends every consumer stream. Publish and Consume fail afterwards.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() { close(t.done) })
	return nil
}

func (t *Transport) queue(name string) (chan cbus.Delivery, error) {
	select {
	case <-t.done:
		return nil, fmt.Errorf("inmemory queue %q: %w", name, berr.ErrBusClosed)
	default:
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	q, ok := t.queues[name]
	if !ok {
		q = make(chan cbus.Delivery, t.buffer)
		t.queues[name] = q
	}

	return q, nil
}
