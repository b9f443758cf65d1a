package servicebus

import (
	"context"
	"errors"
	"fmt"
	"time"

	cbus "github.com/next-trace/scg-event-bus/contract/bus"
	berr "github.com/next-trace/scg-event-bus/contract/errors"
	"github.com/next-trace/scg-event-bus/observability"
)

// DispatchError describes one inbound message that was not fully processed.
// The message is gone: it was acknowledged on receipt.
type DispatchError struct {
	Event string
	// Handler is empty when the failure happened before any handler ran.
	Handler string
	Err     error
}

func (e *DispatchError) Error() string {
	if e.Handler == "" {
		return fmt.Sprintf("dispatch %s: %v", e.Event, e.Err)
	}

	return fmt.Sprintf("dispatch %s to %s: %v", e.Event, e.Handler, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// ErrorHandler is the bus failure channel for inbound messages. It is called
// on the consumer goroutine of the failing event name.
type ErrorHandler func(ctx context.Context, err *DispatchError)

// consume runs the dispatch loop for one queue until Close or until the
// transport closes the stream.
func (b *Bus) consume(queue string, deliveries <-chan cbus.Delivery) {
	defer b.wg.Done()

	for {
		select {
		case <-b.ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				if b.ctx.Err() == nil {
					b.logger.Warn("consumer stream closed", "queue", queue)
					b.report(b.ctx, &DispatchError{Event: queue, Err: fmt.Errorf("consumer stream closed: %w", berr.ErrSubscribeFailed)})
				}

				return
			}

			if d.RoutingKey == "" {
				d.RoutingKey = queue
			}

			b.handleDelivery(d)
		}
	}
}

func (b *Bus) handleDelivery(d cbus.Delivery) {
	start := time.Now()
	ctx, span := b.spans.StartDispatchSpan(b.ctx, d.RoutingKey)

	outcome, derr := b.dispatch(ctx, d)

	var err error
	if derr != nil {
		err = derr
	}

	b.spans.EndSpanWithError(span, err)
	b.metrics.RecordDelivery(ctx, d.RoutingKey, outcome, time.Since(start))

	if derr != nil {
		b.report(ctx, derr)
	}
}

// dispatch decodes one message and runs its handlers in registration order.
// The first failing handler stops the remaining ones. Panics are recovered
// here so a single message can never end the consumer loop.
func (b *Bus) dispatch(ctx context.Context, d cbus.Delivery) (outcome observability.Outcome, derr *DispatchError) {
	var current string

	defer func() {
		if r := recover(); r != nil {
			outcome = observability.OutcomeFailed
			derr = &DispatchError{
				Event:   d.RoutingKey,
				Handler: current,
				Err:     errors.Join(berr.ErrHandlerFailed, fmt.Errorf("panic: %v", r)),
			}
		}
	}()

	route, ok := b.events.Lookup(d.RoutingKey)
	if !ok {
		b.logger.Debug("dropping message for unregistered event", "event", d.RoutingKey)
		return observability.OutcomeDropped, nil
	}

	evt, err := route.Event.Decode(d.Body)
	if err != nil {
		return observability.OutcomeFailed, &DispatchError{
			Event: d.RoutingKey,
			Err:   errors.Join(berr.ErrSerializationFailed, err),
		}
	}

	for _, h := range route.Handlers {
		current = h.Handler

		if err := h.Invoke(ctx, evt); err != nil {
			return observability.OutcomeFailed, &DispatchError{
				Event:   d.RoutingKey,
				Handler: h.Handler,
				Err:     errors.Join(berr.ErrHandlerFailed, err),
			}
		}
	}

	return observability.OutcomeHandled, nil
}

func (b *Bus) report(ctx context.Context, err *DispatchError) {
	b.logger.Error("event dispatch failed", "event", err.Event, "handler", err.Handler, "err", err.Err)

	if b.onError != nil {
		b.onError(ctx, err)
	}
}
