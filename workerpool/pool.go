package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kbukum/whisperd/component"
	"github.com/kbukum/whisperd/logger"
	"github.com/kbukum/whisperd/transcription"
)

// Pool errors.
var (
	// ErrPoolExhausted is returned when no worker became idle before the
	// caller's deadline.
	ErrPoolExhausted = errors.New("no idle worker available")
	// ErrNoWorkers is returned when every worker has failed.
	ErrNoWorkers = errors.New("all workers failed")
	// ErrPoolClosed is returned after Stop.
	ErrPoolClosed = errors.New("worker pool closed")
)

const defaultLoadTimeout = 10 * time.Minute

// EngineFactory builds the engine for one worker.
type EngineFactory func(spec transcription.WorkerSpec) (transcription.Engine, error)

// Config configures a Pool.
type Config struct {
	// Options are the resolved model options. Options.Workers sets the pool size.
	Options transcription.Options
	// LoadTimeout bounds each worker's Load call.
	LoadTimeout time.Duration
	// ParallelLoad loads all workers at once instead of one after another.
	ParallelLoad bool
	// OnStateChange is called after every worker transition, outside the pool lock.
	OnStateChange func(WorkerState)
}

type worker struct {
	id       int
	engine   transcription.Engine
	status   Status
	lastErr  error
	jobs     int64
	released bool // engine already handed to Close
}

func (w *worker) state() WorkerState {
	s := WorkerState{ID: w.id, Status: w.status, Jobs: w.jobs}
	if w.lastErr != nil {
		s.LastError = w.lastErr.Error()
	}
	return s
}

// Pool owns a fixed set of workers and hands each job to exactly one idle
// worker. A worker never runs two jobs at once.
type Pool struct {
	cfg       Config
	factory   EngineFactory
	log       *logger.Logger
	readiness *ReadinessTracker

	mu      sync.Mutex
	workers []*worker
	// changed is closed and replaced whenever a worker becomes idle or
	// failed, waking every blocked Submit.
	changed chan struct{}
	started bool
	closed  bool

	loadCancel context.CancelFunc
	loads      sync.WaitGroup
	running    sync.WaitGroup
}

// New creates a pool with Options.Workers workers in the Loading state.
// Engines are built and loaded by Start.
func New(cfg Config, factory EngineFactory, log *logger.Logger) *Pool {
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = defaultLoadTimeout
	}
	if cfg.Options.Workers < 1 {
		cfg.Options.Workers = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	log = log.WithComponent("workerpool")

	p := &Pool{
		cfg:       cfg,
		factory:   factory,
		log:       log,
		readiness: NewReadinessTracker(log),
		workers:   make([]*worker, cfg.Options.Workers),
		changed:   make(chan struct{}),
	}
	for i := range p.workers {
		p.workers[i] = &worker{id: i, status: StatusLoading}
	}
	return p
}

// Readiness returns the tracker fed by this pool.
func (p *Pool) Readiness() *ReadinessTracker { return p.readiness }

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// States returns a snapshot of every worker, ordered by id.
func (p *Pool) States() []WorkerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statesLocked()
}

// Counts tallies workers by status.
func (p *Pool) Counts() Counts {
	return countStates(p.States())
}

// Start builds every engine and loads them in the background. It returns
// once loading has been scheduled; readiness flips when the first load ends.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return fmt.Errorf("worker pool already started")
	}
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.started = true
	loadCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.loadCancel = cancel
	p.mu.Unlock()

	p.log.Info("starting workers", logger.Fields(
		"workers", len(p.workers),
		"model_size", p.cfg.Options.ModelSize,
		"compute_type", p.cfg.Options.Compute.ComputeType(),
		"parallel", p.cfg.ParallelLoad,
	))

	if p.cfg.ParallelLoad {
		for _, w := range p.workers {
			p.loads.Add(1)
			go func() {
				defer p.loads.Done()
				p.load(loadCtx, w)
			}()
		}
		return nil
	}

	p.loads.Add(1)
	go func() {
		defer p.loads.Done()
		for _, w := range p.workers {
			if loadCtx.Err() != nil {
				return
			}
			p.load(loadCtx, w)
		}
	}()
	return nil
}

func (p *Pool) load(ctx context.Context, w *worker) {
	log := p.log.WithFields(logger.Fields(logger.FieldWorkerID, w.id))
	log.Info("loading model")
	start := time.Now()

	engine, err := p.factory(transcription.WorkerSpec{ID: w.id, Options: p.cfg.Options})
	if err == nil {
		err = safeLoad(ctx, engine, p.cfg.LoadTimeout)
	} else {
		err = fmt.Errorf("%w: create engine: %v", transcription.ErrLoadFailed, err)
	}

	p.mu.Lock()
	w.engine = engine
	if err != nil {
		w.status = StatusFailed
		w.lastErr = err
	} else {
		w.status = StatusIdle
	}
	st := p.transitionLocked(w)
	late := p.releaseLocked(w)
	p.mu.Unlock()
	p.notify(st)
	p.closeLate(w.id, late)

	fields := logger.DurationFields("load", time.Since(start))
	if err != nil {
		log.Error("model load failed", fields, logger.Fields(logger.FieldError, err.Error()))
		return
	}
	log.Info("model loaded", fields)
}

func safeLoad(ctx context.Context, engine transcription.Engine, timeout time.Duration) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic during load: %v", transcription.ErrLoadFailed, r)
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := engine.Load(ctx); err != nil {
		if !errors.Is(err, transcription.ErrLoadFailed) {
			err = fmt.Errorf("%w: %v", transcription.ErrLoadFailed, err)
		}
		return err
	}
	return nil
}

// Submit runs job on the lowest-numbered idle worker, blocking until one is
// free. ctx bounds only the wait: once a worker is assigned the job runs to
// completion even if ctx ends. A wait that outlives ctx fails with
// ErrPoolExhausted.
func (p *Pool) Submit(ctx context.Context, job transcription.Job) (*transcription.Result, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}
		if w := p.idleLocked(); w != nil {
			w.status = StatusBusy
			st := p.transitionLocked(w)
			p.running.Add(1)
			p.mu.Unlock()
			p.notify(st)
			return p.run(ctx, w, job)
		}
		if p.allFailedLocked() {
			p.mu.Unlock()
			return nil, ErrNoWorkers
		}
		changed := p.changed
		p.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrPoolExhausted, ctx.Err())
		}
	}
}

func (p *Pool) run(ctx context.Context, w *worker, job transcription.Job) (res *transcription.Result, err error) {
	defer p.running.Done()
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("%w: worker %d panicked: %v", transcription.ErrInferenceFailed, w.id, r)
			p.log.Error("inference panic recovered", logger.Fields(logger.FieldWorkerID, w.id, logger.FieldError, fmt.Sprint(r)))
		}
		p.finish(w, err)
	}()
	return w.engine.Transcribe(context.WithoutCancel(ctx), job)
}

func (p *Pool) finish(w *worker, err error) {
	p.mu.Lock()
	w.jobs++
	if errors.Is(err, transcription.ErrLoadFailed) {
		w.status = StatusFailed
		w.lastErr = err
	} else {
		w.status = StatusIdle
	}
	st := p.transitionLocked(w)
	late := p.releaseLocked(w)
	p.mu.Unlock()
	p.notify(st)
	p.closeLate(w.id, late)

	if st.Status == StatusFailed {
		p.log.Error("worker failed", logger.Fields(logger.FieldWorkerID, w.id, logger.FieldError, err.Error()))
	}
}

// WaitReady blocks until the pool is ready, every worker has failed, or ctx ends.
func (p *Pool) WaitReady(ctx context.Context) error {
	for {
		p.mu.Lock()
		c := countStates(p.statesLocked())
		closed := p.closed
		changed := p.changed
		p.mu.Unlock()

		switch {
		case closed:
			return ErrPoolClosed
		case c.Serving():
			return nil
		case c.Failed == c.Total():
			return ErrNoWorkers
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stop rejects new jobs, cancels pending loads, waits for running jobs up to
// ctx, then closes every engine. Engines still busy when ctx ends are closed
// as soon as their job returns.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.broadcastLocked()
	cancel := p.loadCancel
	p.mu.Unlock()

	p.readiness.shutdown()
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		p.loads.Wait()
		p.running.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		p.log.Warn("stopping with jobs still running", logger.Fields(logger.FieldError, ctx.Err().Error()))
	}

	p.mu.Lock()
	var idle []*worker
	var busy []int
	for _, w := range p.workers {
		switch {
		case w.status == StatusBusy:
			busy = append(busy, w.id)
		case w.engine != nil && !w.released:
			w.released = true
			idle = append(idle, w)
		}
	}
	p.mu.Unlock()

	var errs []error
	for _, w := range idle {
		if err := w.engine.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close worker %d: %w", w.id, err))
		}
	}
	if len(busy) > 0 {
		p.log.Warn("workers still busy, closing when their jobs finish", logger.Fields("workers", busy))
	}
	p.log.Info("workers stopped")
	return errors.Join(errs...)
}

// releaseLocked hands back w's engine for closing when the pool stopped
// while w was busy or loading.
func (p *Pool) releaseLocked(w *worker) transcription.Engine {
	if !p.closed || w.released || w.engine == nil || w.status == StatusBusy {
		return nil
	}
	w.released = true
	return w.engine
}

func (p *Pool) closeLate(id int, engine transcription.Engine) {
	if engine == nil {
		return
	}
	if err := engine.Close(); err != nil {
		p.log.Error("close worker after stop", logger.Fields(logger.FieldWorkerID, id, logger.FieldError, err.Error()))
		return
	}
	p.log.Info("closed worker after its job finished", logger.Fields(logger.FieldWorkerID, id))
}

// Name implements component.Component.
func (p *Pool) Name() string { return "workerpool" }

// Health implements component.Component.
func (p *Pool) Health(_ context.Context) component.Health {
	c := p.Counts()
	h := component.Health{Name: p.Name()}
	switch {
	case !c.Serving():
		h.Status = component.StatusUnhealthy
		h.Message = fmt.Sprintf("no worker serving (loading=%d failed=%d)", c.Loading, c.Failed)
	case c.Failed > 0:
		h.Status = component.StatusDegraded
		h.Message = fmt.Sprintf("%d of %d workers failed", c.Failed, c.Total())
	default:
		h.Status = component.StatusHealthy
	}
	return h
}

// Describe implements component.Describable.
func (p *Pool) Describe() component.Description {
	return component.Description{
		Name: "Worker Pool",
		Type: "workers",
		Details: fmt.Sprintf("%d x %s (%s, beam=%d)",
			len(p.workers), p.cfg.Options.ModelSize, p.cfg.Options.Compute.ComputeType(), p.cfg.Options.BeamSize),
	}
}

func (p *Pool) idleLocked() *worker {
	for _, w := range p.workers {
		if w.status == StatusIdle {
			return w
		}
	}
	return nil
}

func (p *Pool) allFailedLocked() bool {
	for _, w := range p.workers {
		if w.status != StatusFailed {
			return false
		}
	}
	return true
}

func (p *Pool) statesLocked() []WorkerState {
	out := make([]WorkerState, len(p.workers))
	for i, w := range p.workers {
		out[i] = w.state()
	}
	return out
}

// transitionLocked records w's new status: waiters are woken when a worker
// leaves Busy or Loading, and readiness is recomputed until the pool closes.
// Readiness callbacks run under the pool lock and must not call back into it.
func (p *Pool) transitionLocked(w *worker) WorkerState {
	if w.status != StatusBusy {
		p.broadcastLocked()
	}
	if !p.closed {
		p.readiness.observe(countStates(p.statesLocked()))
	}
	return w.state()
}

func (p *Pool) broadcastLocked() {
	close(p.changed)
	p.changed = make(chan struct{})
}

func (p *Pool) notify(st WorkerState) {
	if p.cfg.OnStateChange != nil {
		p.cfg.OnStateChange(st)
	}
}
