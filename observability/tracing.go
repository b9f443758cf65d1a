package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SpanManager handles trace span lifecycle.
// Spans are process-local: no trace context is written to broker messages.
type SpanManager interface {
	// StartPublishSpan starts a producer span for one publish.
	StartPublishSpan(ctx context.Context, event string) (context.Context, trace.Span)

	// StartDispatchSpan starts a consumer span for one inbound message.
	StartDispatchSpan(ctx context.Context, event string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)
}

type otelSpanManager struct{}

// NewSpanManager returns a SpanManager using the global tracer provider.
func NewSpanManager() SpanManager { return otelSpanManager{} }

func (otelSpanManager) StartPublishSpan(ctx context.Context, event string) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, "eventbus.publish "+event,
		trace.WithAttributes(
			attribute.String("messaging.destination.name", event),
			attribute.String("messaging.operation.type", "publish"),
		),
		trace.WithSpanKind(trace.SpanKindProducer),
	)
}

func (otelSpanManager) StartDispatchSpan(ctx context.Context, event string) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, "eventbus.process "+event,
		trace.WithAttributes(
			attribute.String("messaging.destination.name", event),
			attribute.String("messaging.operation.type", "process"),
		),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
}

func (otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}
