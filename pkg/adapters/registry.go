// SPDX-FileCopyrightText: Copyright 2026 Dispatch Authors
// SPDX-License-Identifier: Apache-2.0

package adapters

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps session kinds to adapter factories. Registrations
// happen at process start and are static afterwards; the lock exists
// only because registration order is not guaranteed across packages.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register binds a kind label to a factory. Registering the same kind
// twice is a programming error.
func (r *Registry) Register(kind string, factory Factory) error {
	if kind == "" {
		return fmt.Errorf("adapter kind cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("adapter factory for %q cannot be nil", kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[kind]; exists {
		return fmt.Errorf("adapter kind %q already registered", kind)
	}
	r.factories[kind] = factory
	return nil
}

// Factory returns the factory for a kind, if registered.
func (r *Registry) Factory(kind string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[kind]
	return f, ok
}

// Kinds returns the registered kind labels in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.factories))
	for kind := range r.factories {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}
