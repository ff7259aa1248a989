package app

import (
	"fmt"
	"time"

	"github.com/kbukum/whisperd/cache"
	"github.com/kbukum/whisperd/config"
	"github.com/kbukum/whisperd/modelstore"
	"github.com/kbukum/whisperd/observability"
	"github.com/kbukum/whisperd/redis"
	"github.com/kbukum/whisperd/server"
	"github.com/kbukum/whisperd/service"
	"github.com/kbukum/whisperd/transcription"
	"github.com/kbukum/whisperd/transcription/openai"
	"github.com/kbukum/whisperd/transcription/whisper"
	"github.com/kbukum/whisperd/transcription/whispercli"
	"github.com/kbukum/whisperd/util"
	"github.com/kbukum/whisperd/validation"
	"github.com/kbukum/whisperd/version"
)

// ServiceName is the default service name.
const ServiceName = "whisperd"

// EnvAliases maps the flat environment variable names onto nested keys.
var EnvAliases = map[string]string{
	"model_size":         "model.size",
	"compute":            "model.compute",
	"num_workers":        "model.workers",
	"beam_size":          "model.beam_size",
	"host":               "server.host",
	"port":               "server.port",
	"max_file_size":      "transcription.max_file_size",
	"allowed_extensions": "transcription.allowed_extensions",
	"log_level":          "logging.level",
}

// EnvPrefixes restricts environment binding to variables for known sections.
var EnvPrefixes = []string{
	"SERVICE_", "MODEL_", "SERVER_", "TRANSCRIPTION_", "ENGINE_",
	"CACHE_", "REDIS_", "METRICS_", "TRACING_", "LOGGING_",
}

// Config is the whisperd application configuration.
type Config struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Server        server.Config              `yaml:"server" mapstructure:"server"`
	Model         ModelConfig                `yaml:"model" mapstructure:"model"`
	Transcription TranscriptionConfig        `yaml:"transcription" mapstructure:"transcription"`
	Engine        EngineConfig               `yaml:"engine" mapstructure:"engine"`
	Cache         cache.Config               `yaml:"cache" mapstructure:"cache"`
	Redis         redis.Config               `yaml:"redis" mapstructure:"redis"`
	Metrics       MetricsConfig              `yaml:"metrics" mapstructure:"metrics"`
	Tracing       observability.TracerConfig `yaml:"tracing" mapstructure:"tracing"`
}

// ModelConfig selects the model every worker loads.
type ModelConfig struct {
	Size     string `yaml:"size" mapstructure:"size" validate:"required"`
	Compute  string `yaml:"compute" mapstructure:"compute" validate:"oneof=cpu gpu"`
	Workers  int    `yaml:"workers" mapstructure:"workers" validate:"min=1,max=4"`
	BeamSize int    `yaml:"beam_size" mapstructure:"beam_size" validate:"min=1,max=20"`
	// LoadTimeout bounds each worker's model load.
	LoadTimeout  time.Duration `yaml:"load_timeout" mapstructure:"load_timeout"`
	ParallelLoad bool          `yaml:"parallel_load" mapstructure:"parallel_load"`
}

// Options converts the section into transcription options.
func (m ModelConfig) Options() transcription.Options {
	return transcription.Options{
		ModelSize: m.Size,
		Compute:   transcription.ComputeMode(m.Compute),
		BeamSize:  m.BeamSize,
		Workers:   m.Workers,
	}
}

// TranscriptionConfig holds request-level limits.
type TranscriptionConfig struct {
	MaxFileSize       string        `yaml:"max_file_size" mapstructure:"max_file_size"`
	AllowedExtensions []string      `yaml:"allowed_extensions" mapstructure:"allowed_extensions"`
	RequestTimeout    time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`
	GateMode          string        `yaml:"gate_mode" mapstructure:"gate_mode" validate:"oneof=wait reject"`
}

// EngineConfig selects and configures the inference backend.
type EngineConfig struct {
	Kind    string            `yaml:"kind" mapstructure:"kind" validate:"oneof=sidecar openai cli"`
	Sidecar whisper.Config    `yaml:"sidecar" mapstructure:"sidecar"`
	OpenAI  openai.Config     `yaml:"openai" mapstructure:"openai"`
	CLI     whispercli.Config `yaml:"cli" mapstructure:"cli"`
	Models  modelstore.Config `yaml:"models" mapstructure:"models"`
}

// MetricsConfig configures the metrics registry.
type MetricsConfig struct {
	// NoRuntime drops the Go runtime and process collectors from /metrics.
	NoRuntime bool                      `yaml:"no_runtime" mapstructure:"no_runtime"`
	Buckets   []float64                 `yaml:"buckets" mapstructure:"buckets"`
	OTLP      observability.MeterConfig `yaml:"otlp" mapstructure:"otlp"`
}

// ApplyDefaults fills every section.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = ServiceName
	}
	if c.Version == "" {
		c.Version = version.Get().Short()
	}
	c.ServiceConfig.ApplyDefaults()
	c.Server.ApplyDefaults()

	if c.Model.Size == "" {
		c.Model.Size = transcription.ModelMedium
	}
	if c.Model.Compute == "" {
		c.Model.Compute = string(transcription.ComputeCPU)
	}
	if c.Model.Workers == 0 {
		c.Model.Workers = 1
	}
	if c.Model.BeamSize == 0 {
		c.Model.BeamSize = 5
	}

	if c.Transcription.MaxFileSize == "" {
		c.Transcription.MaxFileSize = "100MB"
	}
	if c.Transcription.GateMode == "" {
		c.Transcription.GateMode = service.GateWait
	}

	if c.Engine.Kind == "" {
		c.Engine.Kind = whisper.ProviderName
	}
	c.Engine.Sidecar.ApplyDefaults()
	c.Engine.OpenAI.ApplyDefaults()
	c.Engine.CLI.ApplyDefaults()

	c.Cache.ApplyDefaults()
	if c.Cache.Enabled {
		c.Redis.Enabled = true
	}
	c.Redis.ApplyDefaults()

	c.Metrics.OTLP.ApplyDefaults()
	c.Tracing.ApplyDefaults(c.Name, c.Version, c.Environment)
}

// Validate checks every section. The first call site is process startup,
// so an error here keeps any worker from being created.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return err
	}

	v := validation.New()
	v.Merge("service", c.ServiceConfig.Validate())
	v.Merge("config", validation.Validate(c))
	if _, err := util.ParseSizeStrict(c.Transcription.MaxFileSize); err != nil {
		v.AddError("transcription.max_file_size", err.Error())
	}
	v.Custom(c.Transcription.RequestTimeout >= 0, "transcription.request_timeout", "must be non-negative").
		Custom(c.Tracing.SampleRate >= 0 && c.Tracing.SampleRate <= 1, "tracing.sample_rate", "must be between 0 and 1")
	if c.Redis.Enabled {
		v.Merge("redis", c.Redis.Validate())
	}
	v.Merge("model", c.Model.Options().Validate())
	if err := v.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// GracefulTimeout bounds the whole shutdown: the server drain plus time
// for the workers to close their engines.
func (c *Config) GracefulTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeout)*time.Second + 10*time.Second
}

// ServiceOptions derives the service configuration.
func (c *Config) ServiceOptions() service.Config {
	return service.Config{
		Options:           c.Model.Options(),
		MaxFileSize:       util.ParseSize(c.Transcription.MaxFileSize, 0),
		AllowedExtensions: c.Transcription.AllowedExtensions,
		RequestTimeout:    c.Transcription.RequestTimeout,
		GateMode:          c.Transcription.GateMode,
	}
}

// Load reads configuration from the config file, the .env file and the
// environment, then applies defaults and validates.
func Load(opts ...config.LoaderOption) (*Config, error) {
	var cfg Config
	opts = append([]config.LoaderOption{
		config.WithAliases(EnvAliases),
		config.WithEnvPrefixes(EnvPrefixes...),
	}, opts...)
	if err := config.LoadConfig(ServiceName, &cfg, opts...); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
