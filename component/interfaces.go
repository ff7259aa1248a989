package component

import "context"

// HealthStatus is the state a component reports to /health and the startup
// summary.
type HealthStatus string

const (
	StatusHealthy HealthStatus = "healthy"
	// StatusDegraded means the component works with reduced capacity, such
	// as a pool with some failed workers or an unreachable result cache.
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
)

// Serving reports whether a component in this state can still take work.
func (s HealthStatus) Serving() bool {
	return s == StatusHealthy || s == StatusDegraded
}

// Health is one component's entry in a health report.
type Health struct {
	Name    string       `json:"name"`
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

// Component is anything with a start/stop lifecycle owned by the Registry:
// the telemetry providers, the Redis client, the worker pool and the HTTP
// server.
type Component interface {
	Name() string
	// Start must return once the component can be used. Long work such
	// as model loading continues in the background.
	Start(ctx context.Context) error
	// Stop releases resources. ctx carries the shutdown deadline.
	Stop(ctx context.Context) error
	Health(ctx context.Context) Health
}

// Description is a component's line in the startup summary.
type Description struct {
	// Name defaults to the component's Name() when empty.
	Name    string
	Type    string
	Details string
	Port    int
}

// Describable is implemented by components that appear in the
// infrastructure section of the startup summary.
type Describable interface {
	Describe() Description
}

// Route is one HTTP route in the startup summary.
type Route struct {
	Method  string
	Path    string
	Handler string
}

// RouteProvider is implemented by the HTTP server component.
type RouteProvider interface {
	Routes() []Route
}
