package provider

import "context"

// Provider is a named backend that can report whether it is usable.
type Provider interface {
	Name() string
	IsAvailable(ctx context.Context) bool
}

// Factory builds a provider of type T from a per-instance value C. The
// engine registry builds one provider per pool worker.
type Factory[T Provider, C any] func(cfg C) (T, error)
