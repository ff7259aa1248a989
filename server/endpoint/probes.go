package endpoint

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/whisperd/component"
)

// ReadyFunc reports whether the service can take traffic.
type ReadyFunc func() bool

// HealthChecker returns the health of every registered component.
type HealthChecker func(ctx context.Context) []component.Health

type probeResponse struct {
	Status  string `json:"status"`
	Service string `json:"service,omitempty"`
}

type healthResponse struct {
	Status     component.HealthStatus `json:"status"`
	Service    string                 `json:"service"`
	Timestamp  string                 `json:"timestamp"`
	Components []component.Health     `json:"components"`
}

// Liveness answers 200 while the process can serve HTTP, whatever the
// model state.
func Liveness(serviceName string) gin.HandlerFunc {
	body := probeResponse{Status: string(component.StatusHealthy), Service: serviceName}
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, body)
	}
}

// Readiness answers 200 "ready" or 503 "not_ready". A nil ready is always
// ready.
func Readiness(ready ReadyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ready == nil || ready() {
			c.JSON(http.StatusOK, probeResponse{Status: "ready"})
			return
		}
		c.JSON(http.StatusServiceUnavailable, probeResponse{Status: "not_ready"})
	}
}

// Health reports each component and the worst status among them. Only an
// unhealthy component turns the response into a 503.
func Health(serviceName string, checker HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := healthResponse{
			Status:     component.StatusHealthy,
			Service:    serviceName,
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
			Components: []component.Health{},
		}
		if checker != nil {
			resp.Components = checker(c.Request.Context())
		}
		for _, h := range resp.Components {
			resp.Status = worse(resp.Status, h.Status)
		}

		code := http.StatusOK
		if !resp.Status.Serving() {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, resp)
	}
}

// rank orders statuses by severity; unknown ones rank with unhealthy.
func rank(s component.HealthStatus) int {
	switch s {
	case component.StatusHealthy:
		return 0
	case component.StatusDegraded:
		return 1
	default:
		return 2
	}
}

func worse(a, b component.HealthStatus) component.HealthStatus {
	switch {
	case rank(b) <= rank(a):
		return a
	case rank(b) == 2:
		return component.StatusUnhealthy
	default:
		return b
	}
}
