package engine

import (
	"fmt"
	"slices"
	"sync"
)

// NameSoft is the name of the in-process reference engine (engine/soft).
const NameSoft = "soft"

// Factory creates an engine bound to a renderer and an error handler.
type Factory func(rs RendererServices, eh ErrorHandler) (Engine, error)

// registry holds registered engines.
var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)
	// Priority order for Default (first registered wins).
	enginePriority = []string{NameSoft}
)

// Register registers an engine factory with the given name.
// This is typically called from init() functions in engine packages.
// If an engine with the same name is already registered, it is replaced.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[name] = factory
}

// Unregister removes an engine from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(factories, name)
}

// Available returns the sorted names of registered engines.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// IsRegistered checks if an engine with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := factories[name]
	return ok
}

// Get creates an engine by name.
func Get(name string, rs RendererServices, eh ErrorHandler) (Engine, error) {
	registryMu.RLock()
	factory, ok := factories[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotRegistered, name)
	}
	return factory(rs, eh)
}

// Default creates the best available engine based on priority, falling back
// to the first registered name in sorted order.
func Default(rs RendererServices, eh ErrorHandler) (Engine, error) {
	registryMu.RLock()
	for _, name := range enginePriority {
		if factory, ok := factories[name]; ok {
			registryMu.RUnlock()
			return factory(rs, eh)
		}
	}
	registryMu.RUnlock()

	names := Available()
	if len(names) == 0 {
		return nil, ErrNoEngine
	}
	return Get(names[0], rs, eh)
}
