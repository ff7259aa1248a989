package endpoint

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/whisperd/component"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(t *testing.T, path string, h gin.HandlerFunc) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	r := gin.New()
	r.GET(path, h)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, http.NoBody))

	var body map[string]any
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
	}
	return rr, body
}

func TestLiveness(t *testing.T) {
	rr, body := serve(t, "/healthz", Liveness("whisperd"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if body["status"] != "healthy" || body["service"] != "whisperd" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestReadiness(t *testing.T) {
	ready := false
	h := Readiness(func() bool { return ready })

	rr, body := serve(t, "/readyz", h)
	if rr.Code != http.StatusServiceUnavailable || body["status"] != "not_ready" {
		t.Fatalf("expected 503 not_ready, got %d %v", rr.Code, body)
	}

	ready = true
	rr, body = serve(t, "/readyz", h)
	if rr.Code != http.StatusOK || body["status"] != "ready" {
		t.Fatalf("expected 200 ready, got %d %v", rr.Code, body)
	}
}

func TestReadiness_NilIsReady(t *testing.T) {
	rr, _ := serve(t, "/readyz", Readiness(nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestHealth_Aggregates(t *testing.T) {
	tests := []struct {
		name     string
		statuses []component.HealthStatus
		want     string
		code     int
	}{
		{"all healthy", []component.HealthStatus{component.StatusHealthy}, "healthy", http.StatusOK},
		{"degraded", []component.HealthStatus{component.StatusHealthy, component.StatusDegraded}, "degraded", http.StatusOK},
		{"unhealthy wins", []component.HealthStatus{component.StatusDegraded, component.StatusUnhealthy}, "unhealthy", http.StatusServiceUnavailable},
		{"unknown counts as unhealthy", []component.HealthStatus{"starting"}, "unhealthy", http.StatusServiceUnavailable},
		{"no components", nil, "healthy", http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			checker := func(context.Context) []component.Health {
				out := make([]component.Health, 0, len(tc.statuses))
				for _, s := range tc.statuses {
					out = append(out, component.Health{Name: "c", Status: s})
				}
				return out
			}
			rr, body := serve(t, "/health", Health("whisperd", checker))
			if rr.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, rr.Code)
			}
			if body["status"] != tc.want {
				t.Fatalf("expected %s, got %v", tc.want, body["status"])
			}
		})
	}
}

func TestMetrics_WrapsHandler(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = w.Write([]byte("transcription_requests_total 1\n"))
	})
	rr, _ := serve(t, "/metrics", Metrics(h))
	if !strings.Contains(rr.Body.String(), "transcription_requests_total 1") {
		t.Fatalf("unexpected body: %s", rr.Body.String())
	}
}

func TestInfo_MergesDetails(t *testing.T) {
	rr, body := serve(t, "/", Info("whisperd", func() map[string]any {
		return map[string]any{"model_size": "tiny", "workers": 2}
	}))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if body["service"] != "whisperd" || body["model_size"] != "tiny" || body["workers"] != float64(2) {
		t.Fatalf("unexpected body: %v", body)
	}
	if _, ok := body["version"]; !ok {
		t.Fatal("expected version field")
	}
}

func TestVersion(t *testing.T) {
	rr, body := serve(t, "/version", Version())
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if _, ok := body["version"]; !ok {
		t.Fatal("expected version field")
	}
}
