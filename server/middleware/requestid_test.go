package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kbukum/whisperd/logger"
	"github.com/kbukum/whisperd/server/middleware"
)

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"generated when absent", "", false},
		{"kept when supplied", "req-7f3a", true},
		{"replaced when oversized", strings.Repeat("x", 200), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen, fromCtx string
			h := middleware.RequestID()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				seen = r.Header.Get(middleware.HeaderRequestID)
				fromCtx = logger.RequestIDFromContext(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
			if tt.incoming != "" {
				req.Header.Set(middleware.HeaderRequestID, tt.incoming)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			echoed := rr.Header().Get(middleware.HeaderRequestID)
			if echoed == "" || echoed != seen || echoed != fromCtx {
				t.Fatalf("ids disagree: response %q, request %q, context %q", echoed, seen, fromCtx)
			}
			if (echoed == tt.incoming) != tt.keep {
				t.Errorf("incoming %q, echoed %q, keep=%v", tt.incoming, echoed, tt.keep)
			}
		})
	}
}
