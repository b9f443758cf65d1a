/*
Package observability records event bus metrics and trace spans through
OpenTelemetry. The recorders use the global providers; configure them with
otel.SetMeterProvider and otel.SetTracerProvider before building a bus.
NoopMetrics and NoopSpanManager are used when nothing is configured.
*/
package observability
