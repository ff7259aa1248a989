package middleware

import (
	"net/http"
	"slices"
)

// Middleware wraps an http.Handler. The server applies one chain around
// the root mux, so Gin routes and mounted handlers share it.
type Middleware func(http.Handler) http.Handler

// Chain composes middlewares; the first one sees the request first.
func Chain(middlewares ...Middleware) Middleware {
	return func(h http.Handler) http.Handler {
		for _, m := range slices.Backward(middlewares) {
			h = m(h)
		}
		return h
	}
}
