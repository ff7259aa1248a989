package observability

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/whisperd/logger"
)

// Instrument names. The Prometheus exporter appends _total to counters and
// the unit suffix to the histogram.
const (
	MetricRequests = "transcription_requests"
	MetricDuration = "transcription_duration"
	MetricErrors   = "transcription_errors"
	MetricWorkers  = "transcription_workers"
	MetricInFlight = "transcription_in_flight"
)

// Label keys.
const (
	LabelModelSize   = "model_size"
	LabelComputeType = "compute_type"
	LabelErrorType   = "error_type"
	LabelStatus      = "status"
)

// DefaultDurationBuckets covers short clips up to long recordings, in seconds.
var DefaultDurationBuckets = []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600}

// MetricsConfig configures a Registry.
type MetricsConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// Buckets overrides DefaultDurationBuckets.
	Buckets []float64
	// RuntimeMetrics adds Go runtime and process collectors.
	RuntimeMetrics bool
	// OTLP pushes the same instruments to a collector when Endpoint is set.
	OTLP MeterConfig
	// SetGlobal installs the provider as the otel global meter provider.
	SetGlobal bool
}

// Registry holds the transcription metrics. Every update is a counter
// increment or a histogram observation; nothing is ever decremented except
// the in-flight gauge. Snapshot and Handler read a pull exporter and never
// block writers.
type Registry struct {
	provider *sdkmetric.MeterProvider
	prom     *prometheus.Registry
	meter    metric.Meter

	requests metric.Int64Counter
	duration metric.Float64Histogram
	errors   metric.Int64Counter
	inFlight metric.Int64UpDownCounter
}

// NewRegistry creates the meter provider, a dedicated Prometheus registry
// and the transcription instruments.
func NewRegistry(ctx context.Context, cfg MetricsConfig) (*Registry, error) {
	reg := prometheus.NewRegistry()
	if cfg.RuntimeMetrics {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	exporter, err := otelprom.New(
		otelprom.WithRegisterer(reg),
		otelprom.WithoutScopeInfo(),
		otelprom.WithoutTargetInfo(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}

	opts := []sdkmetric.Option{sdkmetric.WithReader(exporter)}
	if cfg.ServiceName != "" {
		res, err := newResource(cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
		if err != nil {
			return nil, fmt.Errorf("creating resource: %w", err)
		}
		opts = append(opts, sdkmetric.WithResource(res))
	}
	if cfg.OTLP.Endpoint != "" {
		reader, err := newOTLPReader(ctx, cfg.OTLP)
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdkmetric.WithReader(reader))
	}

	provider := sdkmetric.NewMeterProvider(opts...)
	if cfg.SetGlobal {
		otel.SetMeterProvider(provider)
	}

	r := &Registry{
		provider: provider,
		prom:     reg,
		meter:    provider.Meter("github.com/kbukum/whisperd/observability"),
	}
	if err := r.initInstruments(cfg.Buckets); err != nil {
		_ = provider.Shutdown(ctx)
		return nil, err
	}

	if cfg.OTLP.Endpoint != "" {
		logger.Info("metrics push enabled", logger.Fields(
			"endpoint", cfg.OTLP.Endpoint,
			"interval", cfg.OTLP.Interval.String(),
		))
	}
	return r, nil
}

func (r *Registry) initInstruments(buckets []float64) error {
	if len(buckets) == 0 {
		buckets = DefaultDurationBuckets
	}

	var err error
	r.requests, err = r.meter.Int64Counter(MetricRequests,
		metric.WithDescription("Transcription requests that passed validation"),
	)
	if err != nil {
		return fmt.Errorf("creating %s counter: %w", MetricRequests, err)
	}

	r.duration, err = r.meter.Float64Histogram(MetricDuration,
		metric.WithDescription("Transcription request duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(buckets...),
	)
	if err != nil {
		return fmt.Errorf("creating %s histogram: %w", MetricDuration, err)
	}

	r.errors, err = r.meter.Int64Counter(MetricErrors,
		metric.WithDescription("Transcription errors by kind"),
	)
	if err != nil {
		return fmt.Errorf("creating %s counter: %w", MetricErrors, err)
	}

	r.inFlight, err = r.meter.Int64UpDownCounter(MetricInFlight,
		metric.WithDescription("Requests holding a gate ticket"),
	)
	if err != nil {
		return fmt.Errorf("creating %s gauge: %w", MetricInFlight, err)
	}
	return nil
}

// IncRequests counts one request.
func (r *Registry) IncRequests(ctx context.Context, modelSize, computeType string) {
	r.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String(LabelModelSize, modelSize),
		attribute.String(LabelComputeType, computeType),
	))
}

// ObserveDuration records one request duration in seconds.
func (r *Registry) ObserveDuration(ctx context.Context, modelSize, computeType string, seconds float64) {
	r.duration.Record(ctx, seconds, metric.WithAttributes(
		attribute.String(LabelModelSize, modelSize),
		attribute.String(LabelComputeType, computeType),
	))
}

// IncErrors counts one error of the given kind.
func (r *Registry) IncErrors(ctx context.Context, errorType string) {
	r.errors.Add(ctx, 1, metric.WithAttributes(attribute.String(LabelErrorType, errorType)))
}

// AddInFlight moves the in-flight gauge by delta.
func (r *Registry) AddInFlight(ctx context.Context, delta int64) {
	r.inFlight.Add(ctx, delta)
}

// ObserveWorkers registers a gauge reporting worker counts by status.
// counts is called on every collection.
func (r *Registry) ObserveWorkers(counts func() map[string]int) error {
	_, err := r.meter.Int64ObservableGauge(MetricWorkers,
		metric.WithDescription("Workers by status"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			for status, n := range counts() {
				o.Observe(int64(n), metric.WithAttributes(attribute.String(LabelStatus, status)))
			}
			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("creating %s gauge: %w", MetricWorkers, err)
	}
	return nil
}

// Meter returns the meter backing the registry.
func (r *Registry) Meter() metric.Meter { return r.meter }

// Snapshot renders every metric in the Prometheus text exposition format.
func (r *Registry) Snapshot() (string, error) {
	families, err := r.prom.Gather()
	if err != nil {
		return "", fmt.Errorf("gathering metrics: %w", err)
	}
	var buf bytes.Buffer
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return "", fmt.Errorf("encoding %s: %w", mf.GetName(), err)
		}
	}
	return buf.String(), nil
}

// Handler serves the registry over HTTP.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prom, promhttp.HandlerOpts{})
}

// Shutdown flushes push readers and stops the provider.
func (r *Registry) Shutdown(ctx context.Context) error {
	if err := r.provider.Shutdown(ctx); err != nil && !errors.Is(err, sdkmetric.ErrReaderShutdown) {
		return err
	}
	return nil
}
