package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/whisperd/logger"
)

const instrumentationName = "github.com/kbukum/whisperd/observability"

// DefaultTraceEndpoint is the OTLP/HTTP collector address used when tracing
// is enabled without an endpoint.
const DefaultTraceEndpoint = "localhost:4318"

// Span names.
const (
	SpanTranscribe = "transcription.handle"
	SpanGateWait   = "transcription.gate"
	SpanInference  = "transcription.inference"
)

// Span attribute keys.
const (
	AttrFilename    = attribute.Key("transcription.filename")
	AttrBytes       = attribute.Key("transcription.bytes")
	AttrModelSize   = attribute.Key("transcription.model_size")
	AttrComputeType = attribute.Key("transcription.compute_type")
	AttrLanguage    = attribute.Key("transcription.language")
	AttrErrorKind   = attribute.Key("transcription.error_kind")
	AttrCacheHit    = attribute.Key("transcription.cache_hit")
	AttrRequestID   = attribute.Key("request.id")
)

// TracerConfig configures span export. The service identity fields are
// filled from the service config, not from the tracing section.
type TracerConfig struct {
	ServiceName    string `mapstructure:"-" json:"-" yaml:"-"`
	ServiceVersion string `mapstructure:"-" json:"-" yaml:"-"`
	Environment    string `mapstructure:"-" json:"-" yaml:"-"`

	Enabled bool `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	// Endpoint is the OTLP/HTTP collector host:port.
	Endpoint string `mapstructure:"endpoint" json:"endpoint" yaml:"endpoint"`
	Insecure bool   `mapstructure:"insecure" json:"insecure" yaml:"insecure"`
	// SampleRate is the fraction of new traces recorded. Zero means 1 when
	// tracing is enabled; disable tracing to record nothing.
	SampleRate float64 `mapstructure:"sample_rate" json:"sample_rate" yaml:"sample_rate"`
}

// ApplyDefaults stamps the service identity and fills endpoint and rate
// when tracing is enabled.
func (c *TracerConfig) ApplyDefaults(service, version, environment string) {
	c.ServiceName, c.ServiceVersion, c.Environment = service, version, environment
	if !c.Enabled {
		return
	}
	if c.Endpoint == "" {
		c.Endpoint = DefaultTraceEndpoint
	}
	if c.SampleRate == 0 {
		c.SampleRate = 1
	}
}

// InitTracer builds a batching OTLP/HTTP tracer provider and installs it,
// with W3C trace-context and baggage propagation, as the global provider.
// The caller owns shutdown.
func InitTracer(ctx context.Context, cfg TracerConfig) (*sdktrace.TracerProvider, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}
	res, err := newResource(cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRate)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("tracer initialized", logger.Fields(
		"endpoint", cfg.Endpoint,
		"sample_rate", cfg.SampleRate,
	))
	return tp, nil
}

// sampler follows the caller's sampling decision and applies rate to new traces.
func sampler(rate float64) sdktrace.Sampler {
	var root sdktrace.Sampler
	switch {
	case rate >= 1:
		root = sdktrace.AlwaysSample()
	case rate <= 0:
		root = sdktrace.NeverSample()
	default:
		root = sdktrace.TraceIDRatioBased(rate)
	}
	return sdktrace.ParentBased(root)
}

func newResource(service, version, environment string) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceName(service),
			semconv.ServiceVersion(version),
			attribute.String("environment", environment),
		),
	)
}

// StartSpan starts a span from the global provider.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name, opts...)
}

// Annotate adds attributes to the span in ctx, if it is recording.
func Annotate(ctx context.Context, attrs ...attribute.KeyValue) {
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.SetAttributes(attrs...)
	}
}

// RecordError marks the span in ctx as failed.
func RecordError(ctx context.Context, err error) {
	if span := trace.SpanFromContext(ctx); err != nil && span.IsRecording() {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
