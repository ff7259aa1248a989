package component

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/kbukum/whisperd/logger"
)

// DefaultStopTimeout bounds each component's Stop call.
const DefaultStopTimeout = 30 * time.Second

// Registry owns component lifecycle. Components start in registration order
// and stop in reverse, so the HTTP server registered last drains before the
// worker pool closes.
//
// StartAll and StopAll are serialized with each other. Health and lookups
// never wait on them: they read a snapshot of the registered components.
type Registry struct {
	lifecycle sync.Mutex

	mu          sync.RWMutex
	order       []Component
	byName      map[string]Component
	started     []Component
	stopTimeout time.Duration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:      make(map[string]Component),
		stopTimeout: DefaultStopTimeout,
	}
}

// SetStopTimeout changes the per-component stop bound. Non-positive values are ignored.
func (r *Registry) SetStopTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	r.mu.Lock()
	r.stopTimeout = d
	r.mu.Unlock()
}

// Register adds c. Names must be unique.
func (r *Registry) Register(c Component) error {
	name := c.Name()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byName[name]; dup {
		return fmt.Errorf("component %s already registered", name)
	}
	r.order = append(r.order, c)
	r.byName[name] = c
	logger.Debug("component registered", logger.Fields(logger.FieldComponent, name))
	return nil
}

// StartAll starts every component that is not running yet, in registration
// order, and stops at the first failure. Components started before the
// failure stay running; StopAll releases them.
func (r *Registry) StartAll(ctx context.Context) error {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	pending := r.All()
	logger.Info("starting components", logger.Fields("count", len(pending)))
	for _, c := range pending {
		if r.isStarted(c) {
			continue
		}
		name := c.Name()
		begin := time.Now()
		if err := c.Start(ctx); err != nil {
			logger.Error("component start failed", logger.Fields(logger.FieldComponent, name, logger.FieldError, err.Error()))
			return fmt.Errorf("failed to start %s: %w", name, err)
		}
		r.mu.Lock()
		r.started = append(r.started, c)
		r.mu.Unlock()
		logger.Debug("component started", logger.Fields(
			logger.FieldComponent, name,
			logger.FieldDuration, time.Since(begin).Milliseconds(),
		))
	}
	logger.Info("components started")
	return nil
}

// StopAll stops started components in reverse start order. Each Stop gets
// its own timeout derived from ctx. Every component is stopped even when
// an earlier one fails; the failures are joined.
func (r *Registry) StopAll(ctx context.Context) error {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	r.mu.Lock()
	running := r.started
	r.started = nil
	timeout := r.stopTimeout
	r.mu.Unlock()

	logger.Info("stopping components", logger.Fields("count", len(running)))
	var errs []error
	for _, c := range slices.Backward(running) {
		name := c.Name()
		stopCtx, cancel := context.WithTimeout(ctx, timeout)
		err := c.Stop(stopCtx)
		cancel()
		if err != nil {
			logger.Error("component stop failed", logger.Fields(logger.FieldComponent, name, logger.FieldError, err.Error()))
			errs = append(errs, fmt.Errorf("failed to stop %s: %w", name, err))
			continue
		}
		logger.Info("component stopped", logger.Fields(logger.FieldComponent, name))
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}

// HealthAll reports every registered component, in registration order.
func (r *Registry) HealthAll(ctx context.Context) []Health {
	all := r.All()
	out := make([]Health, 0, len(all))
	for _, c := range all {
		h := c.Health(ctx)
		if h.Name == "" {
			h.Name = c.Name()
		}
		out = append(out, h)
	}
	return out
}

// Get returns the component registered under name, or nil.
func (r *Registry) Get(name string) Component {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[name]
}

// All returns the registered components in registration order.
func (r *Registry) All() []Component {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

func (r *Registry) isStarted(c Component) bool {
	name := c.Name()
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.ContainsFunc(r.started, func(s Component) bool { return s.Name() == name })
}
