package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MeterConfig configures the optional OTLP metric push.
type MeterConfig struct {
	// Endpoint is the OTLP HTTP endpoint host:port (e.g., "localhost:4318").
	// Empty disables the push reader.
	Endpoint string `mapstructure:"endpoint" json:"endpoint" yaml:"endpoint"`
	// Insecure allows insecure connections (for development).
	Insecure bool `mapstructure:"insecure" json:"insecure" yaml:"insecure"`
	// Interval is the metric export interval.
	Interval time.Duration `mapstructure:"interval" json:"interval" yaml:"interval"`
}

// DefaultPushInterval is the OTLP export interval when none is configured.
const DefaultPushInterval = 15 * time.Second

// ApplyDefaults sets the push interval when a collector is configured.
func (c *MeterConfig) ApplyDefaults() {
	if c.Endpoint != "" && c.Interval <= 0 {
		c.Interval = DefaultPushInterval
	}
}

// newOTLPReader builds a periodic reader pushing to an OTLP HTTP collector.
func newOTLPReader(ctx context.Context, config MeterConfig) (sdkmetric.Reader, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	config.ApplyDefaults()
	return sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(config.Interval)), nil
}
