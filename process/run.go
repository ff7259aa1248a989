package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// ErrNotFound is returned when the binary cannot be located or executed.
var ErrNotFound = errors.New("process: binary not found")

const (
	stderrTail         = 512
	defaultGracePeriod = 5 * time.Second
)

// ExitError reports a process that ran and exited non-zero.
type ExitError struct {
	Binary string
	Code   int
	// Stderr is the trimmed tail of standard error.
	Stderr string
	err    error
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("process: %s exited with code %d", e.Binary, e.Code)
	}
	return fmt.Sprintf("process: %s exited with code %d: %s", e.Binary, e.Code, e.Stderr)
}

func (e *ExitError) Unwrap() error { return e.err }

// Run starts cmd in its own process group and waits for it. Cancelling ctx
// sends SIGTERM to the whole group; anything still running after the grace
// period is killed. Output is captured even when an error is returned.
func Run(ctx context.Context, cmd Command) (*Result, error) {
	if cmd.Binary == "" {
		return nil, errors.New("process: binary is required")
	}
	grace := cmd.GracePeriod
	if grace <= 0 {
		grace = defaultGracePeriod
	}

	var stdout, stderr bytes.Buffer
	c := exec.CommandContext(ctx, cmd.Binary, cmd.Args...) //nolint:gosec // callers build the argv
	c.Dir = cmd.Dir
	c.Env = mergeEnv(cmd.Env)
	c.Stdin = cmd.Stdin
	c.Stdout = &stdout
	c.Stderr = &stderr
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	c.Cancel = func() error { return syscall.Kill(-c.Process.Pid, syscall.SIGTERM) }
	c.WaitDelay = grace

	start := time.Now()
	err := c.Run()
	res := &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: c.ProcessState.ExitCode(),
		Duration: time.Since(start),
	}

	switch {
	case err == nil:
		return res, nil
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, os.ErrNotExist), errors.Is(err, os.ErrPermission):
		return res, fmt.Errorf("%w: %s: %v", ErrNotFound, cmd.Binary, err)
	case ctx.Err() != nil:
		return res, fmt.Errorf("process: %s stopped: %w", cmd.Binary, ctx.Err())
	default:
		return res, &ExitError{
			Binary: cmd.Binary,
			Code:   res.ExitCode,
			Stderr: res.StderrTail(stderrTail),
			err:    err,
		}
	}
}

// LookPath resolves binary against PATH, wrapping failures in ErrNotFound.
func LookPath(binary string) (string, error) {
	path, err := exec.LookPath(binary)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrNotFound, binary, err)
	}
	return path, nil
}

// mergeEnv returns nil, meaning the parent environment, when extra is empty.
func mergeEnv(extra []string) []string {
	if len(extra) == 0 {
		return nil
	}
	return append(os.Environ(), extra...)
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
