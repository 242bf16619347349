package usecase

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrDuplicate is returned when a name is registered twice.
var ErrDuplicate = errors.New("already registered")

// Registry maps names to use case factories and rule bundles. It is filled at
// startup and safe for concurrent reads afterwards.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	rules     map[string]*Rules
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		rules:     make(map[string]*Rules),
	}
}

// Register adds a use case factory under name.
func (r *Registry) Register(name string, f Factory) error {
	if name == "" || f == nil {
		return fmt.Errorf("use case name and factory are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("use case %q: %w", name, ErrDuplicate)
	}
	r.factories[name] = f
	return nil
}

// RegisterRules adds a rule bundle under name.
func (r *Registry) RegisterRules(name string, rules Rules) error {
	if name == "" {
		return fmt.Errorf("rules name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rules[name]; ok {
		return fmt.Errorf("validation rules %q: %w", name, ErrDuplicate)
	}
	r.rules[name] = &rules
	return nil
}

// UseCase returns the factory registered under name.
func (r *Registry) UseCase(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}

// Rules returns the rule bundle registered under name.
func (r *Registry) Rules(name string) (*Rules, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rules, ok := r.rules[name]
	return rules, ok
}

// Names returns the registered use case names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Module registers the use cases and rules of one business area.
type Module interface {
	Register(r *Registry) error
}

// Build creates a registry from modules. Any registration error is returned.
func Build(modules ...Module) (*Registry, error) {
	r := NewRegistry()
	for _, m := range modules {
		if err := m.Register(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}
