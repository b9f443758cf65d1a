package observability

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/next-trace/scg-event-bus"

// Outcome labels a processed message.
type Outcome string

const (
	OutcomeHandled Outcome = "handled"
	OutcomeFailed  Outcome = "failed"
	OutcomeDropped Outcome = "dropped"
)

// MetricsRecorder records event bus metrics.
type MetricsRecorder interface {
	// RecordPublish records one publish attempt.
	RecordPublish(ctx context.Context, event string, sizeBytes int, err error)

	// RecordDelivery records one inbound message and how it ended.
	RecordDelivery(ctx context.Context, event string, outcome Outcome, duration time.Duration)

	// RecordCommand records one in-process command dispatch.
	RecordCommand(ctx context.Context, command string, duration time.Duration, err error)
}

type otelMetrics struct {
	published       metric.Int64Counter
	publishErrors   metric.Int64Counter
	payloadSize     metric.Int64Histogram
	delivered       metric.Int64Counter
	dispatchLatency metric.Float64Histogram
	commands        metric.Int64Counter
	commandLatency  metric.Float64Histogram
}

func newOtelMetrics(mp metric.MeterProvider) (*otelMetrics, error) {
	meter := mp.Meter(instrumentationName)

	published, err := meter.Int64Counter("eventbus.publish.count",
		metric.WithDescription("Number of publish attempts"),
	)
	if err != nil {
		return nil, err
	}

	publishErrors, err := meter.Int64Counter("eventbus.publish.errors",
		metric.WithDescription("Number of failed publish attempts"),
	)
	if err != nil {
		return nil, err
	}

	payloadSize, err := meter.Int64Histogram("eventbus.publish.size_bytes",
		metric.WithDescription("Encoded event size in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	delivered, err := meter.Int64Counter("eventbus.delivery.count",
		metric.WithDescription("Number of inbound messages by outcome"),
	)
	if err != nil {
		return nil, err
	}

	dispatchLatency, err := meter.Float64Histogram("eventbus.delivery.latency_ms",
		metric.WithDescription("Time spent dispatching one inbound message"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	commands, err := meter.Int64Counter("eventbus.command.count",
		metric.WithDescription("Number of dispatched commands"),
	)
	if err != nil {
		return nil, err
	}

	commandLatency, err := meter.Float64Histogram("eventbus.command.latency_ms",
		metric.WithDescription("Command handler latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		published:       published,
		publishErrors:   publishErrors,
		payloadSize:     payloadSize,
		delivered:       delivered,
		dispatchLatency: dispatchLatency,
		commands:        commands,
		commandLatency:  commandLatency,
	}, nil
}

// NewMetricsRecorder returns an OpenTelemetry MetricsRecorder built on the
// global meter provider. If instrument creation fails it logs and returns
// NoopMetrics.
func NewMetricsRecorder() MetricsRecorder {
	m, err := newOtelMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}

	return m
}

func (m *otelMetrics) RecordPublish(ctx context.Context, event string, sizeBytes int, err error) {
	attrs := metric.WithAttributes(attribute.String("event", event))

	m.published.Add(ctx, 1, attrs)
	m.payloadSize.Record(ctx, int64(sizeBytes), attrs)

	if err != nil {
		m.publishErrors.Add(ctx, 1, attrs)
	}
}

func (m *otelMetrics) RecordDelivery(ctx context.Context, event string, outcome Outcome, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("event", event),
		attribute.String("outcome", string(outcome)),
	)

	m.delivered.Add(ctx, 1, attrs)
	m.dispatchLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
}

func (m *otelMetrics) RecordCommand(ctx context.Context, command string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("command", command),
		attribute.Bool("success", err == nil),
	)

	m.commands.Add(ctx, 1, attrs)
	m.commandLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
}
