package middleware

import (
	"net/http"
	"time"

	"github.com/kbukum/whisperd/logger"
)

var quietPaths = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
	"/health":  true,
	"/metrics": true,
}

// RequestLogger logs every request with method, path, status and duration.
// Probe and metrics paths are skipped.
func RequestLogger(log *logger.Logger) Middleware {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if quietPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			aw := &accessWriter{ResponseWriter: w}
			next.ServeHTTP(aw, r)

			status := aw.code()
			fields := logger.Fields(
				"method", r.Method,
				"path", r.URL.Path,
				logger.FieldStatus, status,
				logger.FieldDuration, time.Since(start).Milliseconds(),
				"bytes_in", r.ContentLength,
				"bytes_out", aw.written,
			)
			logByStatus(log.WithContext(r.Context()), fields, status)
		})
	}
}

// logByStatus logs at error for 5xx, warn for 4xx and info otherwise.
func logByStatus(log *logger.Logger, fields map[string]any, status int) {
	switch {
	case status >= 500:
		log.Error("request completed", fields)
	case status >= 400:
		log.Warn("request completed", fields)
	default:
		log.Info("request completed", fields)
	}
}
