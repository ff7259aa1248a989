package resilience

import (
	"errors"
	"sync"
	"time"
)

// State is a breaker position.
type State int

const (
	// StateClosed passes every call to the backend.
	StateClosed State = iota
	// StateOpen rejects calls until the cooldown elapses.
	StateOpen
	// StateHalfOpen lets a limited number of probe calls through.
	StateHalfOpen
)

var stateNames = [...]string{
	StateClosed:   "closed",
	StateOpen:     "open",
	StateHalfOpen: "half-open",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// ErrCircuitOpen is returned without calling the backend while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig configures a CircuitBreaker. Zero values fall back to
// five failures, a 30s cooldown and one half-open probe.
type CircuitBreakerConfig struct {
	// Name is passed to OnStateChange.
	Name string
	// MaxFailures is the number of consecutive failures that open the breaker.
	MaxFailures int
	// Timeout is the cooldown before an open breaker admits a probe.
	Timeout time.Duration
	// HalfOpenMaxCalls is the number of probes admitted, and the number of
	// probe successes needed to close again.
	HalfOpenMaxCalls int
	// IsFailure decides whether an error counts against the backend. Errors
	// it rejects count as successes. Defaults to every non-nil error.
	IsFailure func(error) bool
	// OnStateChange runs under the breaker lock on every transition.
	OnStateChange func(name string, from, to State)
	// Now replaces time.Now.
	Now func() time.Time
}

// BreakerStats is a point-in-time view of a breaker.
type BreakerStats struct {
	State    State
	Failures int
	// OpenedAt is zero unless the breaker has ever opened.
	OpenedAt time.Time
}

// CircuitBreaker fails fast while a backend keeps failing. Closed counts
// consecutive failures; reaching MaxFailures opens it. After Timeout the
// next caller finds it half-open and probes the backend: enough probe
// successes close it, any probe failure reopens it.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	admitted  int
	succeeded int
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 1
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool { return err != nil }
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{cfg: cfg}
}

// Execute calls fn unless the breaker rejects it with ErrCircuitOpen.
// fn's error is returned unchanged.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.admit() {
		return ErrCircuitOpen
	}
	err := fn()
	cb.record(err != nil && cb.cfg.IsFailure(err))
	return err
}

// State returns the current position, moving an expired open breaker to half-open.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.expire()
	return cb.state
}

// Stats returns the current position and failure count.
func (cb *CircuitBreaker) Stats() BreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.expire()
	return BreakerStats{State: cb.state, Failures: cb.failures, OpenedAt: cb.openedAt}
}

// Reset closes the breaker and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.moveTo(StateClosed)
	cb.failures = 0
}

// Failures returns the consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

func (cb *CircuitBreaker) admit() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.expire()

	switch cb.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		if cb.admitted >= cb.cfg.HalfOpenMaxCalls {
			return false
		}
		cb.admitted++
		return true
	default:
		return false
	}
}

func (cb *CircuitBreaker) record(failed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !failed {
		switch cb.state {
		case StateClosed:
			cb.failures = 0
		case StateHalfOpen:
			cb.succeeded++
			if cb.succeeded >= cb.cfg.HalfOpenMaxCalls {
				cb.moveTo(StateClosed)
			}
		}
		return
	}

	cb.failures++
	if cb.state == StateHalfOpen || cb.failures >= cb.cfg.MaxFailures {
		cb.openedAt = cb.cfg.Now()
		cb.moveTo(StateOpen)
	}
}

// expire must be called with mu held.
func (cb *CircuitBreaker) expire() {
	if cb.state == StateOpen && cb.cfg.Now().Sub(cb.openedAt) >= cb.cfg.Timeout {
		cb.moveTo(StateHalfOpen)
	}
}

// moveTo must be called with mu held. Probe counters restart on every move.
func (cb *CircuitBreaker) moveTo(to State) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	cb.admitted, cb.succeeded = 0, 0
	if to == StateClosed {
		cb.failures = 0
	}
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, from, to)
	}
}
