package process

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kbukum/whisperd/resilience"
)

// Config configures a Runner.
type Config struct {
	// Name identifies the runner in breaker callbacks.
	Name string `yaml:"name,omitempty" mapstructure:"name"`
	// GracePeriod is the default grace period for SIGTERM→SIGKILL.
	GracePeriod time.Duration `yaml:"grace_period,omitempty" mapstructure:"grace_period"`
	// Timeout is the default execution timeout. Zero means no timeout.
	Timeout time.Duration `yaml:"timeout,omitempty" mapstructure:"timeout"`
	// MaxFailures opens a circuit breaker after that many consecutive
	// failures. Zero disables the breaker.
	MaxFailures int `yaml:"max_failures,omitempty" mapstructure:"max_failures"`
	// Cooldown is how long the breaker stays open.
	Cooldown time.Duration `yaml:"cooldown,omitempty" mapstructure:"cooldown"`
	// IsFailure decides which errors count against the breaker.
	IsFailure func(error) bool `yaml:"-" mapstructure:"-"`
}

// Runner executes commands with shared defaults. The breaker state persists
// across calls, so repeated crashes fail fast with resilience.ErrCircuitOpen.
type Runner struct {
	config  Config
	breaker *resilience.CircuitBreaker
}

// NewRunner creates a Runner.
func NewRunner(cfg Config) *Runner {
	r := &Runner{config: cfg}
	if cfg.MaxFailures > 0 {
		r.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:        cfg.Name,
			MaxFailures: cfg.MaxFailures,
			Timeout:     cfg.Cooldown,
			IsFailure:   cfg.IsFailure,
		})
	}
	return r
}

// Name returns the runner name.
func (r *Runner) Name() string { return r.config.Name }

// Run executes cmd, applying runner-level defaults.
func (r *Runner) Run(ctx context.Context, cmd Command) (*Result, error) {
	if cmd.GracePeriod == 0 && r.config.GracePeriod > 0 {
		cmd.GracePeriod = r.config.GracePeriod
	}
	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}
	if r.breaker == nil {
		return Run(ctx, cmd)
	}

	var result *Result
	err := r.breaker.Execute(func() error {
		res, err := Run(ctx, cmd)
		result = res
		return err
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return nil, fmt.Errorf("process %s: %w", cmd.Binary, err)
	}
	return result, err
}

// BreakerState reports the breaker state, or closed when no breaker is configured.
func (r *Runner) BreakerState() resilience.State {
	if r.breaker == nil {
		return resilience.StateClosed
	}
	return r.breaker.State()
}
