package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

// recordSleeps returns a Sleep hook that records waits instead of blocking.
func recordSleeps(waits *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return ctx.Err()
	}
}

func flaky(failures int, err error) (func() (string, error), *int) {
	calls := 0
	return func() (string, error) {
		calls++
		if calls <= failures {
			return "", err
		}
		return "ggml-base.bin", nil
	}, &calls
}

func TestRetry_FirstAttempt(t *testing.T) {
	var waits []time.Duration
	fn, calls := flaky(0, nil)
	got, err := Retry(context.Background(), RetryConfig{Sleep: recordSleeps(&waits)}, fn)
	if err != nil || got != "ggml-base.bin" {
		t.Fatalf("got %q, %v", got, err)
	}
	if *calls != 1 || len(waits) != 0 {
		t.Errorf("expected one call and no waits, got %d calls, waits %v", *calls, waits)
	}
}

func TestRetry_BacksOffBetweenAttempts(t *testing.T) {
	var waits []time.Duration
	cfg := RetryConfig{
		MaxAttempts:    4,
		InitialBackoff: 100 * time.Millisecond,
		BackoffFactor:  3,
		Sleep:          recordSleeps(&waits),
	}
	fn, calls := flaky(3, errors.New("connection reset"))

	got, err := Retry(context.Background(), cfg, fn)
	if err != nil || got != "ggml-base.bin" {
		t.Fatalf("got %q, %v", got, err)
	}
	if *calls != 4 {
		t.Errorf("expected 4 calls, got %d", *calls)
	}
	want := []time.Duration{100 * time.Millisecond, 300 * time.Millisecond, 900 * time.Millisecond}
	if len(waits) != len(want) {
		t.Fatalf("expected waits %v, got %v", want, waits)
	}
	for i := range want {
		if waits[i] != want[i] {
			t.Errorf("wait %d: got %v, want %v", i, waits[i], want[i])
		}
	}
}

func TestRetry_ReturnsLastError(t *testing.T) {
	var waits []time.Duration
	last := errors.New("503 from mirror")
	fn, calls := flaky(10, last)

	_, err := Retry(context.Background(), RetryConfig{MaxAttempts: 3, Sleep: recordSleeps(&waits)}, fn)
	if !errors.Is(err, last) {
		t.Fatalf("expected last error, got %v", err)
	}
	if *calls != 3 || len(waits) != 2 {
		t.Errorf("expected 3 calls and 2 waits, got %d and %d", *calls, len(waits))
	}
}

func TestRetry_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	cfg := RetryConfig{
		MaxAttempts: 10,
		Sleep: func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		},
	}

	_, err := Retry(ctx, cfg, func() (int, error) {
		calls++
		return 0, errors.New("timeout")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetry_RealTimerHonoursDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := RetryFunc(ctx, RetryConfig{MaxAttempts: 5, InitialBackoff: time.Hour}, func() error {
		return errors.New("unreachable")
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("wait ignored the deadline: %v", time.Since(start))
	}
}

func TestRetry_RetryIfFilter(t *testing.T) {
	transient := errors.New("transient")
	fatal := errors.New("checksum mismatch")
	var waits []time.Duration
	cfg := RetryConfig{
		MaxAttempts: 3,
		RetryIf:     func(err error) bool { return errors.Is(err, transient) },
		Sleep:       recordSleeps(&waits),
	}

	fn, calls := flaky(10, transient)
	_, _ = Retry(context.Background(), cfg, fn)
	if *calls != 3 {
		t.Errorf("retryable error should use every attempt, got %d calls", *calls)
	}

	fatalCalls := 0
	_, err := Retry(context.Background(), cfg, func() (int, error) {
		fatalCalls++
		return 0, fatal
	})
	if fatalCalls != 1 || !errors.Is(err, fatal) {
		t.Errorf("rejected error should stop after one call, got %d calls, %v", fatalCalls, err)
	}
	if len(waits) != 2 {
		t.Errorf("retryable error should wait twice, got %v", waits)
	}
}

func TestRetry_OnRetryReportsFailedAttempt(t *testing.T) {
	var attempts []int
	var reported, waits []time.Duration
	cfg := RetryConfig{
		MaxAttempts: 3,
		Sleep:       recordSleeps(&waits),
		OnRetry: func(attempt int, _ error, backoff time.Duration) {
			attempts = append(attempts, attempt)
			reported = append(reported, backoff)
		},
	}
	_ = RetryFunc(context.Background(), cfg, func() error { return errors.New("down") })

	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("expected attempts [1 2], got %v", attempts)
	}
	for i := range reported {
		if reported[i] != waits[i] {
			t.Errorf("reported backoff %v differs from wait %v", reported[i], waits[i])
		}
	}
}

func TestRetry_PermanentStopsImmediately(t *testing.T) {
	notFound := errors.New("404 not found")
	calls := 0

	_, err := Retry(context.Background(), RetryConfig{MaxAttempts: 5}, func() (int, error) {
		calls++
		return 0, Permanent(notFound)
	})
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if err != notFound {
		t.Errorf("expected unwrapped error, got %v", err)
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) must be nil")
	}
}

func TestRetryConfig_Backoff(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
		BackoffFactor:  2,
	}
	for attempt, want := range map[int]time.Duration{
		1: 100 * time.Millisecond,
		2: 200 * time.Millisecond,
		3: 400 * time.Millisecond,
		4: 800 * time.Millisecond,
		5: time.Second,
		9: time.Second,
	} {
		if got := cfg.Backoff(attempt); got != want {
			t.Errorf("attempt %d: got %v, want %v", attempt, got, want)
		}
	}

	cfg.Jitter = 0.5
	for i := 0; i < 100; i++ {
		got := cfg.Backoff(2)
		if got < 100*time.Millisecond || got > 300*time.Millisecond {
			t.Fatalf("jittered backoff %v outside [100ms, 300ms]", got)
		}
	}
}
