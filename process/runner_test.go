package process_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kbukum/whisperd/process"
	"github.com/kbukum/whisperd/resilience"
)

func TestRunner_NoBreaker(t *testing.T) {
	runner := process.NewRunner(process.Config{Name: "echo"})
	result, err := runner.Run(context.Background(), process.Command{
		Binary: "echo",
		Args:   []string{"hello"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(result.Stdout) != "hello\n" {
		t.Fatalf("expected 'hello\\n', got %q", string(result.Stdout))
	}
	if runner.BreakerState() != resilience.StateClosed {
		t.Fatalf("expected closed breaker, got %s", runner.BreakerState())
	}
}

func TestRunner_TimeoutKillsProcess(t *testing.T) {
	runner := process.NewRunner(process.Config{Timeout: 100 * time.Millisecond, GracePeriod: 200 * time.Millisecond})
	start := time.Now()
	_, err := runner.Run(context.Background(), process.Command{Binary: "sleep", Args: []string{"10"}})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("runner timeout not applied: %v", time.Since(start))
	}
}

func TestRunner_CircuitBreakerTrips(t *testing.T) {
	runner := process.NewRunner(process.Config{
		Name:        "test-proc-cb",
		MaxFailures: 2,
		Cooldown:    time.Minute,
	})

	for i := 0; i < 2; i++ {
		if _, err := runner.Run(context.Background(), process.Command{Binary: "false"}); err == nil {
			t.Fatalf("call %d: expected error", i)
		}
	}

	_, err := runner.Run(context.Background(), process.Command{Binary: "false"})
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if runner.BreakerState() != resilience.StateOpen {
		t.Fatalf("expected open breaker, got %s", runner.BreakerState())
	}
}

func TestRunner_IsFailureFiltersErrors(t *testing.T) {
	runner := process.NewRunner(process.Config{
		Name:        "filtered",
		MaxFailures: 1,
		Cooldown:    time.Minute,
		IsFailure:   func(err error) bool { return errors.Is(err, process.ErrNotFound) },
	})

	for i := 0; i < 3; i++ {
		if _, err := runner.Run(context.Background(), process.Command{Binary: "false"}); errors.Is(err, resilience.ErrCircuitOpen) {
			t.Fatalf("call %d: breaker opened on an ordinary exit failure", i)
		}
	}
}

func TestRunner_DefaultGracePeriod(t *testing.T) {
	runner := process.NewRunner(process.Config{Timeout: 50 * time.Millisecond, GracePeriod: 100 * time.Millisecond})
	res, err := runner.Run(context.Background(), process.Command{Binary: "sh", Args: []string{"-c", "trap '' TERM; sleep 10"}})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if res.Duration > 5*time.Second {
		t.Fatalf("runner grace period not applied: %v", res.Duration)
	}
}

func TestRunner_ExitErrorPassesThrough(t *testing.T) {
	runner := process.NewRunner(process.Config{Name: "whisper-cli-0", MaxFailures: 3, Cooldown: time.Minute})
	_, err := runner.Run(context.Background(), process.Command{Binary: "sh", Args: []string{"-c", "exit 7"}})

	var exitErr *process.ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 7 {
		t.Fatalf("expected exit code 7, got %v", err)
	}
	if runner.Name() != "whisper-cli-0" {
		t.Errorf("Name() = %q", runner.Name())
	}
}
