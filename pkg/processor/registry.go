package processor

import (
	"fmt"
	"sync"

	pyerrors "github.com/wehubfusion/Pythia/pkg/errors"
)

// Registry maps processor names to constructors.
// It is safe for concurrent use and remembers registration order.
type Registry struct {
	ctors map[string]Constructor
	order []string
	mu    sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		ctors: make(map[string]Constructor),
	}
}

// Register registers a constructor under name.
// An existing registration is overwritten and keeps its original position.
func (r *Registry) Register(name string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.ctors[name]; !exists {
		r.order = append(r.order, name)
	}
	r.ctors[name] = ctor
}

// RegisterStrict registers a constructor and fails with ErrDuplicateName if
// name is taken.
func (r *Registry) RegisterStrict(name string, ctor Constructor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.ctors[name]; exists {
		return fmt.Errorf("%w: %q", pyerrors.ErrDuplicateName, name)
	}
	r.ctors[name] = ctor
	r.order = append(r.order, name)
	return nil
}

// Resolve returns the constructor for name.
// Returns ErrUnknownProcessor if nothing is registered under name.
func (r *Registry) Resolve(name string) (Constructor, error) {
	r.mu.RLock()
	ctor, exists := r.ctors[name]
	r.mu.RUnlock()

	if !exists {
		return nil, pyerrors.UnknownProcessor(name)
	}
	return ctor, nil
}

// Create resolves name and constructs an instance with cfg.
func (r *Registry) Create(name string, cfg Config) (Processor, error) {
	ctor, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}

	p, err := ctor(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create processor %s: %w", name, err)
	}
	return p, nil
}

// Has checks if a constructor exists for name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.ctors[name]
	return exists
}

// Names returns all registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Unregister removes a constructor.
// Returns true if a constructor was removed, false if none existed.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.ctors[name]; !exists {
		return false
	}
	delete(r.ctors, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Clear removes all registered constructors.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors = make(map[string]Constructor)
	r.order = nil
}

// Len returns the number of registered constructors.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ctors)
}

var (
	defaultMu       sync.RWMutex
	defaultRegistry = NewRegistry()
)

// Default returns the process-wide registry.
func Default() *Registry {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultRegistry
}

// Register registers a constructor in the default registry.
func Register(name string, ctor Constructor) {
	Default().Register(name, ctor)
}

// Resolve resolves a constructor from the default registry.
func Resolve(name string) (Constructor, error) {
	return Default().Resolve(name)
}

// Names returns the default registry's names in registration order.
func Names() []string {
	return Default().Names()
}

// ResetDefault replaces the default registry with an empty one.
func ResetDefault() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultRegistry = NewRegistry()
}
