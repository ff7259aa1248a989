package workerpool

import (
	"sync"
	"sync/atomic"

	"github.com/kbukum/whisperd/logger"
)

// ReadinessTracker is the NotReady/Ready state machine behind the probes.
// The pool feeds it worker counts after every transition; probes read it
// without touching the pool lock.
type ReadinessTracker struct {
	ready atomic.Bool

	mu       sync.Mutex
	onChange func(ready bool)
	log      *logger.Logger
}

// NewReadinessTracker creates a tracker in the NotReady state.
func NewReadinessTracker(log *logger.Logger) *ReadinessTracker {
	if log == nil {
		log = logger.Nop()
	}
	return &ReadinessTracker{log: log}
}

// OnChange registers a callback fired on every Ready/NotReady transition.
func (r *ReadinessTracker) OnChange(fn func(ready bool)) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

// IsHealthy reports process liveness. It does not depend on model state.
func (r *ReadinessTracker) IsHealthy() bool { return true }

// IsReady reports whether a worker has loaded and the pool has not since
// suffered a total outage.
func (r *ReadinessTracker) IsReady() bool { return r.ready.Load() }

// observe latches Ready on the first serving worker. Only a pool whose
// workers have all failed clears it; a partial failure while others are
// still loading leaves it set.
func (r *ReadinessTracker) observe(c Counts) {
	switch {
	case c.Serving():
		r.set(true, c)
	case c.Total() > 0 && c.Failed == c.Total():
		r.set(false, c)
	}
}

// shutdown forces NotReady while the pool drains.
func (r *ReadinessTracker) shutdown() {
	r.set(false, Counts{})
}

func (r *ReadinessTracker) set(ready bool, c Counts) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ready.Load() == ready {
		return
	}
	r.ready.Store(ready)

	fields := logger.Fields("idle", c.Idle, "busy", c.Busy, "loading", c.Loading, "failed", c.Failed)
	if ready {
		r.log.Info("service ready", fields)
	} else {
		r.log.Warn("service not ready", fields)
	}
	if r.onChange != nil {
		r.onChange(ready)
	}
}
