// Package observability wires OpenTelemetry tracing and the transcription
// metrics registry.
//
// Metrics are recorded through OpenTelemetry instruments and exposed in the
// Prometheus text format:
//
//	reg, err := observability.NewRegistry(ctx, observability.MetricsConfig{})
//	reg.IncRequests(ctx, "base", "int8")
//	reg.ObserveDuration(ctx, "base", "int8", 1.7)
//	text, _ := reg.Snapshot()
//
// Tracing:
//
//	tp, err := observability.InitTracer(ctx, observability.TracerConfig{Endpoint: "localhost:4318", SampleRate: 1})
//	defer tp.Shutdown(ctx)
//
//	ctx, span := observability.StartSpan(ctx, observability.SpanTranscribe)
//	defer span.End()
package observability
