// Package registry builds the immutable name-to-adapter lookup table
// Prism Cache resolves provider prefixes against (spec §4.7). Unlike
// hyperengineering-engram's plugin registry, which is a mutable
// package-level global populated by init() side effects, this registry
// is a constructed value: it exists, fully populated, before the first
// request is served, and never changes after that (spec §9: "no other
// singletons besides registry and cache").
package registry

import (
	"fmt"

	"github.com/prismcache/prismcache/internal/adapter"
)

// Descriptor names one configured provider and the adapter kind behind
// it, for startup logging and health reporting.
type Descriptor struct {
	Name string
	Kind string
}

// Registry is an immutable name -> adapter.Adapter map.
type Registry struct {
	descriptors []Descriptor
	adapters    map[string]adapter.Adapter
}

// Builder accumulates providers before Build freezes them into a
// Registry. Using a builder keeps the duplicate-name check and the
// immutability guarantee in one place instead of scattered across
// callers.
type Builder struct {
	descriptors []Descriptor
	adapters    map[string]adapter.Adapter
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{adapters: make(map[string]adapter.Adapter)}
}

// Add registers name as kind backed by a. It panics on a duplicate name,
// matching engram's registry: a duplicate provider name is a
// configuration bug caught at startup, not a runtime condition to
// handle gracefully.
func (b *Builder) Add(name, kind string, a adapter.Adapter) *Builder {
	if _, exists := b.adapters[name]; exists {
		panic(fmt.Sprintf("registry: duplicate provider name %q", name))
	}
	b.adapters[name] = a
	b.descriptors = append(b.descriptors, Descriptor{Name: name, Kind: kind})
	return b
}

// Build freezes the accumulated providers into a Registry.
func (b *Builder) Build() *Registry {
	adapters := make(map[string]adapter.Adapter, len(b.adapters))
	for k, v := range b.adapters {
		adapters[k] = v
	}
	descriptors := make([]Descriptor, len(b.descriptors))
	copy(descriptors, b.descriptors)
	return &Registry{descriptors: descriptors, adapters: adapters}
}

// Resolve returns the adapter registered under name, if any.
func (r *Registry) Resolve(name string) (adapter.Adapter, bool) {
	a, ok := r.adapters[name]
	return a, ok
}

// Providers returns the registry's provider descriptors in registration
// order, for startup logging.
func (r *Registry) Providers() []Descriptor {
	out := make([]Descriptor, len(r.descriptors))
	copy(out, r.descriptors)
	return out
}

// Close closes every registered adapter and returns the first error
// encountered, if any, after attempting to close all of them.
func (r *Registry) Close() error {
	var firstErr error
	for _, d := range r.descriptors {
		a := r.adapters[d.Name]
		if err := a.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("registry: closing provider %q: %w", d.Name, err)
		}
	}
	return firstErr
}
