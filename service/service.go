package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	apperrors "github.com/kbukum/whisperd/errors"
	"github.com/kbukum/whisperd/logger"
	"github.com/kbukum/whisperd/observability"
	"github.com/kbukum/whisperd/resilience"
	"github.com/kbukum/whisperd/transcription"
	"github.com/kbukum/whisperd/validation"
	"github.com/kbukum/whisperd/workerpool"
)

// Dispatcher runs a job on some worker.
type Dispatcher interface {
	Submit(ctx context.Context, job transcription.Job) (*transcription.Result, error)
}

// Readiness reports whether any worker can serve.
type Readiness interface {
	IsReady() bool
}

// Metrics receives request outcomes.
type Metrics interface {
	IncRequests(ctx context.Context, modelSize, computeType string)
	ObserveDuration(ctx context.Context, modelSize, computeType string, seconds float64)
	IncErrors(ctx context.Context, errorType string)
	AddInFlight(ctx context.Context, delta int64)
}

// Cache short-circuits repeated requests. Implementations swallow their
// own failures.
type Cache interface {
	Lookup(ctx context.Context, job transcription.Job) (*transcription.Result, bool)
	Store(ctx context.Context, job transcription.Job, res *transcription.Result)
}

// Deps are the collaborators a Service is built from.
type Deps struct {
	Pool      Dispatcher
	Readiness Readiness
	Metrics   Metrics
	// Cache is optional.
	Cache  Cache
	Logger *logger.Logger
}

// Service is the transcription façade: validate, admit, dispatch,
// normalize, record.
type Service struct {
	cfg       Config
	pool      Dispatcher
	readiness Readiness
	metrics   Metrics
	cache     Cache
	gate      *resilience.Gate
	log       *logger.Logger

	computeType string
}

// New validates cfg and builds a service. The gate admits at most
// Options.Workers requests at once.
func New(cfg Config, deps Deps) (*Service, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("service config: %w", err)
	}
	if deps.Pool == nil {
		return nil, fmt.Errorf("service requires a pool")
	}
	if deps.Readiness == nil {
		return nil, fmt.Errorf("service requires a readiness tracker")
	}
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}

	maxWait := cfg.RequestTimeout
	if cfg.GateMode == GateReject {
		maxWait = 0
	}
	return &Service{
		cfg:       cfg,
		pool:      deps.Pool,
		readiness: deps.Readiness,
		metrics:   deps.Metrics,
		cache:     deps.Cache,
		gate: resilience.NewGate(resilience.GateConfig{
			Name:        "transcription",
			MaxInFlight: cfg.Options.Workers,
			MaxWait:     maxWait,
		}),
		log:         deps.Logger.WithComponent("service"),
		computeType: cfg.Options.Compute.ComputeType(),
	}, nil
}

// Config returns the resolved configuration.
func (s *Service) Config() Config { return s.cfg }

// Gate exposes the admission gate for introspection.
func (s *Service) Gate() *resilience.Gate { return s.gate }

// HandleTranscribe runs one request through the pipeline. Every returned
// error is an *errors.AppError.
func (s *Service) HandleTranscribe(ctx context.Context, req transcription.Request) (res *transcription.Result, err error) {
	ctx, span := observability.StartSpan(ctx, observability.SpanTranscribe)
	defer span.End()
	observability.Annotate(ctx,
		observability.AttrFilename.String(req.Filename),
		observability.AttrBytes.Int(len(req.Audio)),
	)
	if id := logger.RequestIDFromContext(ctx); id != "" {
		observability.Annotate(ctx, observability.AttrRequestID.String(id))
	}

	log := s.log.WithContext(ctx)
	if err := s.validate(req); err != nil {
		s.recordError(ctx, err)
		log.Info("transcription rejected", logger.Fields(
			logger.FieldFilename, req.Filename,
			logger.FieldBytes, len(req.Audio),
			logger.FieldErrorKind, kindOf(err),
		))
		return nil, err
	}

	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		s.metrics.IncRequests(ctx, s.cfg.Options.ModelSize, s.computeType)
		s.metrics.ObserveDuration(ctx, s.cfg.Options.ModelSize, s.computeType, elapsed.Seconds())

		fields := logger.Fields(
			logger.FieldFilename, req.Filename,
			logger.FieldBytes, len(req.Audio),
			logger.FieldDuration, elapsed.Milliseconds(),
		)
		if err != nil {
			s.recordError(ctx, err)
			fields[logger.FieldErrorKind] = kindOf(err)
			log.Warn("transcription failed", fields)
			return
		}
		fields["language"] = res.Language
		fields["segments"] = len(res.Transcription.Segments)
		log.Info("transcription completed", fields)
	}()

	if !s.readiness.IsReady() {
		return nil, apperrors.NotReady()
	}

	job := transcription.NewJob(req, s.cfg.Options)
	observability.Annotate(ctx,
		observability.AttrModelSize.String(job.Options.ModelSize),
		observability.AttrComputeType.String(s.computeType),
	)

	if s.cache != nil {
		if hit, ok := s.cache.Lookup(ctx, job); ok {
			observability.Annotate(ctx, observability.AttrCacheHit.Bool(true))
			return hit, nil
		}
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	ticket, err := s.admit(waitCtx)
	if err != nil {
		return nil, err
	}
	defer ticket.Release()
	s.metrics.AddInFlight(ctx, 1)
	defer s.metrics.AddInFlight(context.WithoutCancel(ctx), -1)

	infCtx, infSpan := observability.StartSpan(waitCtx, observability.SpanInference)
	raw, err := s.pool.Submit(infCtx, job)
	if err != nil {
		observability.RecordError(infCtx, err)
		infSpan.End()
		return nil, classify(err)
	}
	infSpan.End()

	res = finalize(raw, job)
	observability.Annotate(ctx, observability.AttrLanguage.String(res.Language))
	if s.cache != nil {
		s.cache.Store(ctx, job, res)
	}
	return res, nil
}

// Reject records a request refused before it could be decoded into a
// transcription.Request, such as an oversized or malformed upload, and
// returns it as an AppError.
func (s *Service) Reject(ctx context.Context, err error) *apperrors.AppError {
	appErr := apperrors.From(err)
	s.recordError(ctx, appErr)
	s.log.WithContext(ctx).Info("transcription rejected", logger.Fields(
		logger.FieldErrorKind, appErr.Code.Label(),
		logger.FieldError, appErr.Message,
	))
	return appErr
}

func (s *Service) admit(ctx context.Context) (*resilience.Ticket, error) {
	ctx, span := observability.StartSpan(ctx, observability.SpanGateWait)
	defer span.End()

	ticket, err := s.gate.Acquire(ctx)
	switch {
	case errors.Is(err, context.Canceled):
		return nil, apperrors.Canceled(err)
	case err != nil:
		observability.RecordError(ctx, err)
		return nil, apperrors.Overloaded(s.gate.InFlight()).WithCause(err)
	}
	return ticket, nil
}

type params struct {
	Language string `json:"language" validate:"omitempty,alpha,min=2,max=3"`
	Task     string `json:"task" validate:"omitempty,oneof=transcribe translate"`
	BeamSize int    `json:"beam_size" validate:"omitempty,min=1,max=20"`
}

func (s *Service) validate(req transcription.Request) error {
	ext := req.Extension()
	if !slices.Contains(s.cfg.AllowedExtensions, ext) {
		return apperrors.InvalidFormat(ext, s.cfg.AllowedExtensions)
	}
	if len(req.Audio) == 0 {
		return apperrors.EmptyPayload()
	}
	if size := int64(len(req.Audio)); size > s.cfg.MaxFileSize {
		return apperrors.PayloadTooLarge(size, s.cfg.MaxFileSize)
	}
	return validation.Validate(params{
		Language: req.Language,
		Task:     string(req.Task),
		BeamSize: req.BeamSize,
	})
}

func (s *Service) recordError(ctx context.Context, err error) {
	kind := kindOf(err)
	s.metrics.IncErrors(ctx, kind)
	observability.Annotate(ctx, observability.AttrErrorKind.String(kind))
	observability.RecordError(ctx, err)
}

// finalize normalizes an engine result and stamps request metadata.
func finalize(raw *transcription.Result, job transcription.Job) *transcription.Result {
	if raw == nil {
		raw = &transcription.Result{}
	}
	transcription.Normalize(raw)
	raw.Filename = job.Filename
	info := job.Options.ModelInfo()
	info.BeamSize = job.BeamSize
	raw.ModelInfo = info
	return raw
}

// classify maps pool and engine failures to application errors.
func classify(err error) *apperrors.AppError {
	switch {
	case errors.Is(err, context.Canceled):
		return apperrors.Canceled(err)
	case errors.Is(err, workerpool.ErrPoolExhausted):
		return apperrors.PoolExhausted().WithCause(err)
	case errors.Is(err, workerpool.ErrNoWorkers), errors.Is(err, workerpool.ErrPoolClosed):
		return apperrors.NotReady().WithCause(err)
	case errors.Is(err, transcription.ErrDecodeFailed):
		return apperrors.DecodeFailed(err)
	case errors.Is(err, transcription.ErrLoadFailed):
		return apperrors.LoadFailed(err)
	case errors.Is(err, transcription.ErrInferenceFailed):
		return apperrors.InferenceFailed(err)
	default:
		return apperrors.Internal(err)
	}
}

func kindOf(err error) string {
	return apperrors.From(err).Code.Label()
}

type nopMetrics struct{}

func (nopMetrics) IncRequests(context.Context, string, string)              {}
func (nopMetrics) ObserveDuration(context.Context, string, string, float64) {}
func (nopMetrics) IncErrors(context.Context, string)                        {}
func (nopMetrics) AddInFlight(context.Context, int64)                       {}
