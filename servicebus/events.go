package servicebus

import (
	"context"
	"errors"
	"fmt"

	cbus "github.com/next-trace/scg-event-bus/contract/bus"
	berr "github.com/next-trace/scg-event-bus/contract/errors"
	"github.com/next-trace/scg-event-bus/registry"
)

// Publish encodes the event and writes it to the queue named after it.
// Nobody needs to be subscribed. Transport failures are returned to the
// caller and the event is not retried.
func (b *Bus) Publish(ctx context.Context, e cbus.Event) error {
	if b.closed.Load() {
		return fmt.Errorf("publish %T: %w", e, berr.ErrBusClosed)
	}

	if b.transport == nil {
		return fmt.Errorf("publish %T: %w", e, berr.ErrTransportNotConfigured)
	}

	name := b.codec.Name(e)

	ctx, span := b.spans.StartPublishSpan(ctx, name)

	body, err := b.codec.Encode(e)
	if err != nil {
		err = fmt.Errorf("publish %s serialize: %w", name, errors.Join(berr.ErrSerializationFailed, err))
	} else {
		err = b.transport.Publish(ctx, name, body)
	}

	b.spans.EndSpanWithError(span, err)
	b.metrics.RecordPublish(ctx, name, len(body), err)

	return err
}

// Subscribe binds handler type H to event type E. newHandler builds a fresh
// handler for every delivered message.
//
// The first subscription for an event name declares its queue and starts the
// consumer loop; later handlers for the same name join that loop. Subscribing
// the same handler type twice fails with ErrHandlerExists.
func Subscribe[E cbus.Event, H cbus.EventHandler[E]](b *Bus, newHandler func() H) error {
	return b.subscribe(registry.EventTypeOf[E](b.codec), registry.DescriptorOf[E](newHandler))
}

// SubscribeOf registers an untyped handler under a caller-chosen name for the
// event type of sample.
func (b *Bus) SubscribeOf(sample cbus.Event, handler string, call func(ctx context.Context, e any) error) error {
	return b.subscribe(registry.EventTypeFor(sample, b.codec), registry.Descriptor{Handler: handler, Invoke: call})
}

func (b *Bus) subscribe(ev registry.EventType, desc registry.Descriptor) error {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	if b.closed.Load() {
		return fmt.Errorf("subscribe %s: %w", ev.Name, berr.ErrBusClosed)
	}

	if b.transport == nil {
		return fmt.Errorf("subscribe %s: %w", ev.Name, berr.ErrTransportNotConfigured)
	}

	first, err := b.events.Register(ev, desc)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", ev.Name, err)
	}

	if !first {
		b.logger.Info("handler added", "event", ev.Name, "handler", desc.Handler)
		return nil
	}

	deliveries, err := b.transport.Consume(b.ctx, ev.Name)
	if err != nil {
		b.events.Forget(ev.Name)
		return fmt.Errorf("subscribe %s: %w", ev.Name, errors.Join(berr.ErrSubscribeFailed, err))
	}

	b.wg.Add(1)

	go b.consume(ev.Name, deliveries)

	b.logger.Info("subscribed", "event", ev.Name, "handler", desc.Handler)

	return nil
}
