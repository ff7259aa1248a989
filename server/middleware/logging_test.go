package middleware_test

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	"github.com/kbukum/whisperd/logger"
	"github.com/kbukum/whisperd/server/middleware"
)

func TestRequestLogger_RecordsStatusAndBytes(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&logger.Config{Level: "info", Format: "json"}, "test", &buf)

	h := middleware.RequestLogger(log)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("hello"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/transcribe", strings.NewReader("abc")))

	out := buf.String()
	for _, want := range []string{`"status":200`, `"bytes_out":5`, `"bytes_in":3`, `"path":"/transcribe"`, `"level":"info"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log line missing %s: %s", want, out)
		}
	}
}

func TestRequestLogger_LevelFollowsStatus(t *testing.T) {
	for status, level := range map[int]string{
		http.StatusServiceUnavailable: "error",
		http.StatusBadRequest:         "warn",
		http.StatusNoContent:          "info",
	} {
		var buf bytes.Buffer
		log := logger.NewWithWriter(&logger.Config{Level: "debug", Format: "json"}, "test", &buf)
		h := middleware.RequestLogger(log)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
		}))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/transcribe", http.NoBody))

		if !strings.Contains(buf.String(), `"level":"`+level+`"`) {
			t.Errorf("status %d: expected %s, got %s", status, level, buf.String())
		}
	}
}

func TestRequestLogger_SkipsProbes(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&logger.Config{Level: "debug", Format: "json"}, "test", &buf)
	called := 0
	h := middleware.RequestLogger(log)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called++ }))

	for _, path := range []string{"/healthz", "/readyz", "/health", "/metrics"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, http.NoBody))
	}
	if called != 4 {
		t.Errorf("probe handlers must still run, got %d calls", called)
	}
	if buf.Len() != 0 {
		t.Errorf("probe requests should not be logged: %s", buf.String())
	}
}

type flushRecorder struct {
	http.ResponseWriter
	flushed bool
}

func (f *flushRecorder) Flush() { f.flushed = true }

func TestRequestLogger_FlushReachesUnderlyingWriter(t *testing.T) {
	fr := &flushRecorder{ResponseWriter: httptest.NewRecorder()}
	h := middleware.RequestLogger(logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if err := http.NewResponseController(w).Flush(); err != nil {
			t.Errorf("flush: %v", err)
		}
	}))
	h.ServeHTTP(fr, httptest.NewRequest(http.MethodGet, "/transcribe", http.NoBody))

	if !fr.flushed {
		t.Error("expected Flush to reach the underlying writer")
	}
}

func TestBodySizeLimit(t *testing.T) {
	tests := []struct {
		name    string
		limit   int64
		body    string
		wantErr bool
	}{
		{"under limit", 1024, "small", false},
		{"over limit", 4, "too large", true},
		{"disabled", 0, strings.Repeat("a", 4096), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var readErr error
			h := middleware.BodySizeLimit(tt.limit)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				_, readErr = io.ReadAll(r.Body)
			}))
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/transcribe", strings.NewReader(tt.body)))

			var maxErr *http.MaxBytesError
			if got := errors.As(readErr, &maxErr); got != tt.wantErr {
				t.Errorf("MaxBytesError = %v, want %v (err %v)", got, tt.wantErr, readErr)
			}
		})
	}
}

func TestChain_Order(t *testing.T) {
	var order []string
	tag := func(name string) middleware.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name+">")
				next.ServeHTTP(w, r)
				order = append(order, "<"+name)
			})
		}
	}
	h := middleware.Chain(tag("recovery"), tag("request-id"))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	want := []string{"recovery>", "request-id>", "handler", "<request-id", "<recovery"}
	if !slices.Equal(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}
