package observability

import (
	"context"
	"errors"
	"fmt"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/kbukum/whisperd/component"
)

// Telemetry owns the metrics registry and the optional tracer provider for
// the component registry. Register it first so it stops last and flushes
// whatever the other components recorded while draining.
type Telemetry struct {
	metrics *Registry
	tracer  *sdktrace.TracerProvider
}

var _ component.Component = (*Telemetry)(nil)

// NewTelemetry wraps metrics and tracer. tracer may be nil.
func NewTelemetry(metrics *Registry, tracer *sdktrace.TracerProvider) *Telemetry {
	return &Telemetry{metrics: metrics, tracer: tracer}
}

// Name returns the component name.
func (t *Telemetry) Name() string { return "telemetry" }

// Start is a no-op; the providers are live once built.
func (t *Telemetry) Start(context.Context) error { return nil }

// Stop flushes and shuts down both providers.
func (t *Telemetry) Stop(ctx context.Context) error {
	var errs []error
	if t.tracer != nil {
		if err := t.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
		}
	}
	if t.metrics != nil {
		if err := t.metrics.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Health always reports healthy; export failures are retried by the SDK.
func (t *Telemetry) Health(context.Context) component.Health {
	return component.Health{Name: t.Name(), Status: component.StatusHealthy}
}

// Describe returns infrastructure summary info for the bootstrap display.
func (t *Telemetry) Describe() component.Description {
	details := "prometheus"
	if t.tracer != nil {
		details += " + otlp traces"
	}
	return component.Description{Name: "Telemetry", Type: "otel", Details: details}
}
