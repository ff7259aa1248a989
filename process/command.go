package process

import (
	"io"
	"strconv"
	"strings"
	"time"
)

// Command is one subprocess invocation. Binary is resolved via PATH when
// it has no slash.
type Command struct {
	Binary string
	Args   []string
	// Dir is the working directory; empty means the caller's.
	Dir string
	// Env entries (key=value) are appended to the parent environment.
	Env   []string
	Stdin io.Reader
	// GracePeriod separates SIGTERM from SIGKILL on cancellation.
	GracePeriod time.Duration
}

// String renders the command line for logs, quoting arguments that
// contain whitespace.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, c.Binary)
	for _, a := range c.Args {
		if a == "" || strings.ContainsAny(a, " \t\n") {
			a = strconv.Quote(a)
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

// Result is what a finished process left behind. ExitCode is -1 when the
// process was killed by a signal.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// StderrTail returns the last n bytes of trimmed stderr, prefixed with
// "..." when cut.
func (r *Result) StderrTail(n int) string {
	if r == nil {
		return ""
	}
	return tail(string(r.Stderr), n)
}
