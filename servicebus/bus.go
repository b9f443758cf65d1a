package servicebus

import (
	"context"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/next-trace/scg-event-bus/codec"
	cbus "github.com/next-trace/scg-event-bus/contract/bus"
	"github.com/next-trace/scg-event-bus/observability"
	"github.com/next-trace/scg-event-bus/registry"
)

// Bus sends commands in process and publishes/consumes events through a
// broker Transport.
//
// Bus is concurrency-safe and contains no global state. Each subscribed event
// name gets one consumer goroutine that lives until Close.
type Bus struct {
	mu sync.RWMutex

	cmd map[reflect.Type]func(ctx context.Context, cmd any) error

	// global command middleware executed in registration order
	cmdMW []CommandMiddleware

	// subMu serializes subscriptions against Close.
	subMu  sync.Mutex
	events *registry.Registry
	closed atomic.Bool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	transport cbus.Transport
	codec     cbus.Codec
	logger    *slog.Logger
	metrics   observability.MetricsRecorder
	spans     observability.SpanManager
	onError   ErrorHandler
}

// BusOption configures a Bus instance.
type BusOption func(*Bus)

// WithCodec replaces the JSON codec.
func WithCodec(c cbus.Codec) BusOption { return func(b *Bus) { b.codec = c } }

// WithMetrics records publish, delivery and command metrics.
func WithMetrics(m observability.MetricsRecorder) BusOption {
	return func(b *Bus) { b.metrics = m }
}

// WithTracing starts a span per publish and per inbound message.
func WithTracing(s observability.SpanManager) BusOption {
	return func(b *Bus) { b.spans = s }
}

// WithErrorHandler receives every message that failed to decode or whose
// handler returned an error or panicked.
func WithErrorHandler(fn ErrorHandler) BusOption {
	return func(b *Bus) { b.onError = fn }
}

// WithCommandMiddleware registers global command middleware via an option.
func WithCommandMiddleware(mw ...CommandMiddleware) BusOption {
	return func(b *Bus) { b.cmdMW = append(b.cmdMW, mw...) }
}

// New constructs a Bus. A nil transport leaves only commands usable; a nil
// logger means slog.Default().
func New(t cbus.Transport, logger *slog.Logger, opts ...BusOption) *Bus {
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	b := &Bus{
		cmd:       make(map[reflect.Type]func(context.Context, any) error),
		events:    registry.New(),
		ctx:       ctx,
		cancel:    cancel,
		transport: t,
		codec:     codec.JSON{},
		logger:    logger,
		metrics:   observability.NoopMetrics{},
		spans:     observability.NoopSpanManager{},
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Subscriptions returns the event names that have a consumer loop, sorted.
func (b *Bus) Subscriptions() []string { return b.events.Names() }

// Close stops every consumer loop, waits for in-flight messages to finish and
// closes the transport. Close is idempotent.
func (b *Bus) Close() error {
	b.subMu.Lock()
	if b.closed.Swap(true) {
		b.subMu.Unlock()
		return nil
	}
	b.subMu.Unlock()

	b.cancel()
	b.wg.Wait()

	if b.transport == nil {
		return nil
	}

	return b.transport.Close()
}

var _ cbus.Bus = (*Bus)(nil)
