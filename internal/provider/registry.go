package provider

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the registered provider adapters keyed by Kind.
type Registry struct {
	mu       sync.RWMutex
	adapters map[Kind]Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[Kind]Adapter)}
}

// Register adds an adapter. Registering the same kind twice is an error.
func (r *Registry) Register(a Adapter) error {
	if a == nil {
		return fmt.Errorf("nil adapter")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	kind := a.Kind()
	if _, exists := r.adapters[kind]; exists {
		return fmt.Errorf("adapter already registered: %s", kind)
	}
	r.adapters[kind] = a
	return nil
}

// MustRegister is Register that panics on error; for startup wiring.
func (r *Registry) MustRegister(a Adapter) {
	if err := r.Register(a); err != nil {
		panic(err)
	}
}

// Get returns the adapter for kind.
func (r *Registry) Get(kind Kind) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[kind]
	return a, ok
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]Kind, 0, len(r.adapters))
	for k := range r.adapters {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
