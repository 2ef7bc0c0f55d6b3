package hibiki

import (
	"fmt"
	"sort"
	"sync"
)

// Registry binds emitters to stable names so independently wired
// components can share them without holding references to each other.
// Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]any
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]any),
	}
}

// Register binds value to a stable name. Names are single-assignment.
func (r *Registry) Register(name string, value any) error {
	if name == "" {
		return fmt.Errorf("register: %w", ErrBlankName)
	}
	if value == nil {
		return fmt.Errorf("register %s: nil value", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("register %s: %w", name, ErrDuplicateName)
	}
	r.entries[name] = value

	return nil
}

// Resolve returns the value registered under name.
func (r *Registry) Resolve(name string) (any, error) {
	if name == "" {
		return nil, fmt.Errorf("resolve: %w", ErrBlankName)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	value, exists := r.entries[name]
	if !exists {
		return nil, fmt.Errorf("resolve %s: %w", name, ErrNotRegistered)
	}

	return value, nil
}

// Names returns all registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// ResolveEmitter resolves a named value and casts it to the requested
// emitter type.
func ResolveEmitter[E any](r *Registry, name string) (E, error) {
	var zero E

	value, err := r.Resolve(name)
	if err != nil {
		return zero, err
	}

	typed, ok := value.(E)
	if !ok {
		return zero, fmt.Errorf("resolve %s: have %T, want %T: %w", name, value, zero, ErrWrongType)
	}

	return typed, nil
}
