package app

import (
	"context"
	"fmt"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/kbukum/whisperd/api"
	"github.com/kbukum/whisperd/bootstrap"
	"github.com/kbukum/whisperd/cache"
	"github.com/kbukum/whisperd/logger"
	"github.com/kbukum/whisperd/modelstore"
	"github.com/kbukum/whisperd/observability"
	"github.com/kbukum/whisperd/redis"
	"github.com/kbukum/whisperd/server"
	"github.com/kbukum/whisperd/service"
	"github.com/kbukum/whisperd/transcription"
	"github.com/kbukum/whisperd/transcription/openai"
	"github.com/kbukum/whisperd/transcription/whisper"
	"github.com/kbukum/whisperd/transcription/whispercli"
	"github.com/kbukum/whisperd/workerpool"
)

// Option customizes Build.
type Option func(*buildOptions)

type buildOptions struct {
	engines  map[string]transcription.Factory
	noServer bool
}

// WithEngine registers factory under kind, replacing a built-in engine
// of the same name.
func WithEngine(kind string, factory transcription.Factory) Option {
	return func(o *buildOptions) {
		if o.engines == nil {
			o.engines = map[string]transcription.Factory{}
		}
		o.engines[kind] = factory
	}
}

// WithoutServer skips the HTTP server, for in-process use.
func WithoutServer() Option {
	return func(o *buildOptions) { o.noServer = true }
}

// Stack is the wired service graph.
type Stack struct {
	Store   *modelstore.Store
	Pool    *workerpool.Pool
	Metrics *observability.Registry
	Service *service.Service
	// Server is nil when built WithoutServer.
	Server *server.Server
	// Redis is nil unless the result cache is enabled.
	Redis *redis.Component
}

// New creates the bootstrap application for cfg.
func New(cfg *Config, opts ...bootstrap.Option) (*bootstrap.App[*Config], error) {
	return bootstrap.NewApp(cfg, opts...)
}

// Build wires every component into a and registers them in start order:
// telemetry, redis, workers, HTTP server. Shutdown runs in reverse, so
// the server drains before the workers close.
func Build(ctx context.Context, a *bootstrap.App[*Config], opts ...Option) (*Stack, error) {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}
	cfg := a.Cfg
	log := a.Logger

	st := &Stack{Store: modelstore.New(cfg.Engine.Models, log)}

	engines := transcription.NewRegistry()
	engines.RegisterFactory(whisper.ProviderName, whisper.Factory(cfg.Engine.Sidecar))
	engines.RegisterFactory(openai.ProviderName, openai.Factory(cfg.Engine.OpenAI))
	engines.RegisterFactory(whispercli.ProviderName, whispercli.Factory(cfg.Engine.CLI, st.Store))
	for kind, f := range o.engines {
		engines.RegisterFactory(kind, f)
	}
	kind := cfg.Engine.Kind
	if !engines.Has(kind) {
		return nil, fmt.Errorf("unknown engine %q (have %v)", kind, engines.List())
	}

	st.Pool = workerpool.New(workerpool.Config{
		Options:      cfg.Model.Options(),
		LoadTimeout:  cfg.Model.LoadTimeout,
		ParallelLoad: cfg.Model.ParallelLoad,
		OnStateChange: func(s workerpool.WorkerState) {
			log.Debug("worker state changed", logger.Fields(
				logger.FieldWorkerID, s.ID,
				"status", s.Status.String(),
			))
		},
	}, func(spec transcription.WorkerSpec) (transcription.Engine, error) {
		return engines.Create(kind, spec)
	}, log)

	metrics, err := observability.NewRegistry(ctx, observability.MetricsConfig{
		ServiceName:    cfg.Name,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Environment,
		Buckets:        cfg.Metrics.Buckets,
		RuntimeMetrics: !cfg.Metrics.NoRuntime,
		OTLP:           cfg.Metrics.OTLP,
		SetGlobal:      cfg.Metrics.OTLP.Endpoint != "",
	})
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	st.Metrics = metrics
	if err := metrics.ObserveWorkers(func() map[string]int { return st.Pool.Counts().ByStatus() }); err != nil {
		_ = metrics.Shutdown(ctx)
		return nil, err
	}

	var tracer *sdktrace.TracerProvider
	if cfg.Tracing.Enabled {
		tracer, err = observability.InitTracer(ctx, cfg.Tracing)
		if err != nil {
			_ = metrics.Shutdown(ctx)
			return nil, fmt.Errorf("tracing: %w", err)
		}
	}

	var resultCache service.Cache
	if cfg.Cache.Enabled {
		st.Redis = redis.NewComponent(cfg.Redis, log)
		resultCache = cache.NewLazy(st.Redis, cfg.Cache, log)
	}

	st.Service, err = service.New(cfg.ServiceOptions(), service.Deps{
		Pool:      st.Pool,
		Readiness: st.Pool.Readiness(),
		Metrics:   metrics,
		Cache:     resultCache,
		Logger:    log,
	})
	if err != nil {
		_ = metrics.Shutdown(ctx)
		return nil, err
	}

	if err := a.RegisterComponent(observability.NewTelemetry(metrics, tracer)); err != nil {
		return nil, err
	}
	if st.Redis != nil {
		if err := a.RegisterComponent(st.Redis); err != nil {
			return nil, err
		}
	}
	if err := a.RegisterComponent(st.Pool); err != nil {
		return nil, err
	}

	a.OnReady(func(context.Context) error {
		log.Info("serving", logger.Fields(
			logger.FieldEngine, kind,
			"model", cfg.Model.Size,
			"workers", st.Pool.Size(),
			"max_in_flight", st.Service.Gate().Capacity(),
		))
		return nil
	})
	a.OnStop(func(context.Context) error {
		if n := st.Service.Gate().InFlight(); n > 0 {
			log.Info("draining in-flight requests", logger.Fields("in_flight", n))
		}
		return nil
	})

	if o.noServer {
		return st, nil
	}

	st.Server = server.New(cfg.Server, log)
	st.Server.ApplyDefaults(cfg.Name, server.Probes{
		Ready:   st.Pool.Readiness().IsReady,
		Health:  a.Components.HealthAll,
		Metrics: metrics.Handler(),
	})
	api.NewHandler(st.Service, api.Info{
		ServiceName: cfg.Name,
		Options:     cfg.Model.Options(),
	}, log).Register(st.Server.GinEngine())

	if err := a.RegisterComponent(server.NewComponent(st.Server)); err != nil {
		return nil, err
	}
	return st, nil
}
