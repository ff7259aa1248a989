// Package server provides the HTTP server: Gin routes served over h2c,
// with extra http.Handler mounts sharing the root ServeMux.
//
// # Middleware
//
// ApplyMiddleware wraps the whole mux (server/middleware):
//
//   - Recovery: panics become an INTERNAL_ERROR JSON body
//   - RequestID: X-Request-Id propagation into the request context
//   - CORS: cross-origin headers and preflight
//   - BodySizeLimit: caps upload size
//   - RequestLogger: one line per request, probes skipped
//
// # Endpoints
//
// RegisterDefaultEndpoints adds (server/endpoint):
//
//   - /healthz: liveness
//   - /readyz: readiness, 503 until a worker is loaded
//   - /health: component details
//   - /metrics: Prometheus text exposition
//   - /version: build information
package server
