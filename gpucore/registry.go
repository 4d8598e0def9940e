// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpucore

import (
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
)

// Standard backend priorities. Higher is preferred.
const (
	// PriorityHardware is used by backends driving a real GPU.
	PriorityHardware = 100

	// PriorityReference is used by the software reference device, the
	// fallback when no hardware adapter qualifies.
	PriorityReference = 50
)

// BackendFactory creates a backend instance.
type BackendFactory func() (Backend, error)

// RegistryEntry represents a registered backend.
type RegistryEntry struct {
	// Name is the unique identifier for this backend.
	Name string

	// Priority determines selection order (higher = preferred).
	Priority int

	// Factory creates backend instances.
	Factory BackendFactory

	// Available reports if the backend can run on this system.
	Available func() bool
}

var globalRegistry = &Registry{}

// Registry manages registered backends. Backends register themselves from
// init functions so that importing a backend package is enough to make it
// selectable:
//
//	func init() {
//	    gpucore.Register("soft", gpucore.PriorityReference, newBackend, nil)
//	}
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*RegistryEntry
}

// NewRegistry creates an empty registry. Most code uses the global
// registry through Register and OpenBackend.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*RegistryEntry)}
}

// Register adds a backend to the global registry.
func Register(name string, priority int, factory BackendFactory, available func() bool) {
	globalRegistry.Register(name, priority, factory, available)
}

// Unregister removes a backend from the global registry.
func Unregister(name string) {
	globalRegistry.Unregister(name)
}

// Backends returns the names of all available backends in the global
// registry, highest priority first.
func Backends() []string {
	return globalRegistry.Available()
}

// OpenBackend creates the named backend from the global registry.
func OpenBackend(name string) (Backend, error) {
	return globalRegistry.Open(name)
}

// Register adds a backend. A nil available func means always available.
// Registering an existing name replaces the previous entry.
func (r *Registry) Register(name string, priority int, factory BackendFactory, available func() bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.entries == nil {
		r.entries = make(map[string]*RegistryEntry)
	}
	if available == nil {
		available = func() bool { return true }
	}
	r.entries[name] = &RegistryEntry{
		Name:      name,
		Priority:  priority,
		Factory:   factory,
		Available: available,
	}
}

// Unregister removes a backend.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.entries, name)
}

// Get returns a copy of the entry registered under name.
func (r *Registry) Get(name string) (*RegistryEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	entryCopy := *entry
	return &entryCopy, true
}

// List returns all registered names sorted by priority.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.sortedNames(false)
}

// Available returns the names of available backends sorted by priority.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.sortedNames(true)
}

// Open creates the named backend.
func (r *Registry) Open(name string) (Backend, error) {
	entry, ok := r.Get(name)
	if !ok {
		return nil, errors.Wrapf(ErrNoBackend, "backend %q is not registered", name)
	}
	if !entry.Available() {
		return nil, errors.Wrapf(ErrNoBackend, "backend %q is not available", name)
	}
	b, err := entry.Factory()
	if err != nil {
		return nil, errors.Wrapf(err, "open backend %q", name)
	}
	return b, nil
}

func (r *Registry) sortedNames(onlyAvailable bool) []string {
	entries := make([]*RegistryEntry, 0, len(r.entries))
	for _, e := range r.entries {
		if onlyAvailable && !e.Available() {
			continue
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Priority != entries[j].Priority {
			return entries[i].Priority > entries[j].Priority
		}
		return entries[i].Name < entries[j].Name
	})
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names
}
