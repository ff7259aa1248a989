package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Gate errors.
var (
	ErrGateFull    = errors.New("request gate is full")
	ErrGateTimeout = errors.New("request gate wait timeout")
)

// GateConfig configures a Gate.
type GateConfig struct {
	// Name identifies this gate for metrics/logging.
	Name string
	// MaxInFlight is the maximum number of admitted requests.
	MaxInFlight int
	// MaxWait is how long Acquire waits for a slot. 0 means reject immediately.
	MaxWait time.Duration
	// OnReject is called when a request is rejected.
	OnReject func(name string, err error)
}

// Gate is a counting semaphore that bounds in-flight work.
type Gate struct {
	config GateConfig
	sem    chan struct{}
}

// Ticket is proof of admission. Release returns the slot; calling it more
// than once has no further effect.
type Ticket struct {
	gate *Gate
	once sync.Once
}

// Release returns the ticket's slot to the gate.
func (t *Ticket) Release() {
	if t == nil {
		return
	}
	t.once.Do(func() { <-t.gate.sem })
}

// NewGate creates a new gate.
func NewGate(config GateConfig) *Gate {
	if config.MaxInFlight <= 0 {
		config.MaxInFlight = 1
	}
	return &Gate{
		config: config,
		sem:    make(chan struct{}, config.MaxInFlight),
	}
}

// Acquire admits the caller or fails with ErrGateFull (no wait configured),
// ErrGateTimeout (MaxWait elapsed) or the context error.
func (g *Gate) Acquire(ctx context.Context) (*Ticket, error) {
	if err := g.acquire(ctx); err != nil {
		if g.config.OnReject != nil {
			g.config.OnReject(g.config.Name, err)
		}
		return nil, err
	}
	return &Ticket{gate: g}, nil
}

// Release returns t's slot. It is equivalent to t.Release().
func (g *Gate) Release(t *Ticket) {
	t.Release()
}

func (g *Gate) acquire(ctx context.Context) error {
	select {
	case g.sem <- struct{}{}:
		return nil
	default:
	}

	if g.config.MaxWait <= 0 {
		return ErrGateFull
	}

	timer := time.NewTimer(g.config.MaxWait)
	defer timer.Stop()

	select {
	case g.sem <- struct{}{}:
		return nil
	case <-timer.C:
		return ErrGateTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InFlight returns the number of tickets currently held.
func (g *Gate) InFlight() int {
	return len(g.sem)
}

// Capacity returns the maximum number of in-flight requests.
func (g *Gate) Capacity() int {
	return g.config.MaxInFlight
}
