// Copyright (C) 2025 SEOCHO Project
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package registry is the single source of truth for graph database names.
//
// Downstream components must consult the registry before accepting a
// database name from input. The registry is append-only under lock:
// databases are registered when ingestion provisions them and removed only
// by an explicit operator call.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tteon/seocho/pkg/validation"
)

// systemDatabases are never listed to users. agenttraces is the internal
// trace store; neo4j and system are backend-reserved.
var systemDatabases = map[string]bool{
	"neo4j":       true,
	"system":      true,
	"agenttraces": true,
}

// Registry is a runtime-extensible allowlist of database names.
//
// Safe for concurrent use. Registration is idempotent and names are
// case-sensitive.
type Registry struct {
	mu        sync.RWMutex
	databases map[string]bool
}

// New creates a Registry seeded with the default databases.
func New() *Registry {
	r := &Registry{databases: make(map[string]bool)}
	for _, name := range []string{"neo4j", "system", "kgnormal", "kgfibo", "agenttraces"} {
		r.databases[name] = true
	}
	return r
}

// NewEmpty creates a Registry with no seed entries. Used by tests and by
// deployments that provision every database explicitly.
func NewEmpty() *Registry {
	return &Registry{databases: make(map[string]bool)}
}

// Register adds a database name after validation. Registering an existing
// name is a no-op.
func (r *Registry) Register(name string) error {
	if err := validation.ValidateDatabaseName(name); err != nil {
		return fmt.Errorf("register database: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.databases[name] = true
	return nil
}

// Unregister removes a database name. Reserved for operator tooling.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !systemDatabases[name] {
		delete(r.databases, name)
	}
}

// IsValid reports whether the name is registered.
func (r *Registry) IsValid(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.databases[name]
}

// ListUserDBs returns user-facing database names in sorted order,
// excluding system databases and the trace store.
func (r *Registry) ListUserDBs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.databases))
	for name := range r.databases {
		if !systemDatabases[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
