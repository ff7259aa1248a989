// Package component defines the lifecycle contract shared by the worker
// pool, the Redis client and the HTTP server.
//
// Components are registered with a Registry, started in registration order
// and stopped in reverse order. Implementations may also satisfy Describable
// to appear in the startup summary.
package component
