package provider

import (
	"fmt"
	"maps"
	"slices"
	"sync"
)

// UnknownError is returned by Create for a name with no factory.
type UnknownError struct {
	Name string
	Have []string
}

func (e *UnknownError) Error() string {
	return fmt.Sprintf("provider factory %q not registered (have %v)", e.Name, e.Have)
}

// Registry maps names to factories. It is safe for concurrent use; the
// pool calls Create from its loader goroutines.
type Registry[T Provider, C any] struct {
	mu        sync.RWMutex
	factories map[string]Factory[T, C]
}

func NewRegistry[T Provider, C any]() *Registry[T, C] {
	return &Registry[T, C]{factories: map[string]Factory[T, C]{}}
}

// RegisterFactory binds name to factory, replacing any earlier binding.
func (r *Registry[T, C]) RegisterFactory(name string, factory Factory[T, C]) {
	r.mu.Lock()
	r.factories[name] = factory
	r.mu.Unlock()
}

func (r *Registry[T, C]) lookup(name string) (Factory[T, C], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}

func (r *Registry[T, C]) Has(name string) bool {
	_, ok := r.lookup(name)
	return ok
}

// Create builds a provider with the factory bound to name.
func (r *Registry[T, C]) Create(name string, cfg C) (T, error) {
	f, ok := r.lookup(name)
	if !ok {
		var zero T
		return zero, &UnknownError{Name: name, Have: r.List()}
	}
	return f(cfg)
}

// List returns the registered names, sorted.
func (r *Registry[T, C]) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.factories))
}
