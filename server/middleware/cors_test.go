package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kbukum/whisperd/server/middleware"
)

func serveCORS(t *testing.T, cfg middleware.CORSConfig, req *http.Request) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	reached := false
	h := middleware.CORS(&cfg)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr, reached
}

func corsRequest(method, origin, requestMethod string) *http.Request {
	req := httptest.NewRequest(method, "/transcribe", http.NoBody)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if requestMethod != "" {
		req.Header.Set("Access-Control-Request-Method", requestMethod)
	}
	return req
}

func TestCORS(t *testing.T) {
	ui := "https://ui.example.com"
	policy := middleware.CORSConfig{
		AllowedOrigins: []string{ui},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         600,
	}

	tests := []struct {
		name        string
		cfg         middleware.CORSConfig
		req         *http.Request
		wantStatus  int
		wantReached bool
		wantHeaders map[string]string
	}{
		{
			name:        "simple request from allowed origin",
			cfg:         policy,
			req:         corsRequest(http.MethodPost, ui, ""),
			wantStatus:  http.StatusOK,
			wantReached: true,
			wantHeaders: map[string]string{
				"Access-Control-Allow-Origin":   ui,
				"Access-Control-Expose-Headers": "X-Request-Id",
				"Access-Control-Allow-Methods":  "",
				"Vary":                          "Origin",
			},
		},
		{
			name:       "preflight answered without the handler",
			cfg:        policy,
			req:        corsRequest(http.MethodOptions, ui, "POST"),
			wantStatus: http.StatusNoContent,
			wantHeaders: map[string]string{
				"Access-Control-Allow-Origin":  ui,
				"Access-Control-Allow-Methods": "GET, POST",
				"Access-Control-Allow-Headers": "Content-Type, X-Request-Id",
				"Access-Control-Max-Age":       "600",
			},
		},
		{
			name:        "plain OPTIONS is not a preflight",
			cfg:         policy,
			req:         corsRequest(http.MethodOptions, ui, ""),
			wantStatus:  http.StatusOK,
			wantReached: true,
		},
		{
			name:        "disallowed origin gets no CORS headers",
			cfg:         policy,
			req:         corsRequest(http.MethodOptions, "https://evil.example.com", "POST"),
			wantStatus:  http.StatusOK,
			wantReached: true,
			wantHeaders: map[string]string{
				"Access-Control-Allow-Origin": "",
				"Vary":                        "Origin",
			},
		},
		{
			name:        "no origin header",
			cfg:         policy,
			req:         corsRequest(http.MethodGet, "", ""),
			wantStatus:  http.StatusOK,
			wantReached: true,
			wantHeaders: map[string]string{"Access-Control-Allow-Origin": ""},
		},
		{
			name:        "wildcard with credentials echoes the origin",
			cfg:         middleware.CORSConfig{AllowedOrigins: []string{"*"}, AllowCredentials: true},
			req:         corsRequest(http.MethodGet, "https://other.example.com", ""),
			wantStatus:  http.StatusOK,
			wantReached: true,
			wantHeaders: map[string]string{
				"Access-Control-Allow-Origin":      "https://other.example.com",
				"Access-Control-Allow-Credentials": "true",
			},
		},
		{
			name:        "empty origin list disables CORS",
			cfg:         middleware.CORSConfig{},
			req:         corsRequest(http.MethodGet, ui, ""),
			wantStatus:  http.StatusOK,
			wantReached: true,
			wantHeaders: map[string]string{"Access-Control-Allow-Origin": ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, reached := serveCORS(t, tt.cfg, tt.req)
			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if reached != tt.wantReached {
				t.Errorf("handler reached = %v, want %v", reached, tt.wantReached)
			}
			for k, want := range tt.wantHeaders {
				if got := rr.Header().Get(k); got != want {
					t.Errorf("%s = %q, want %q", k, got, want)
				}
			}
		})
	}
}
