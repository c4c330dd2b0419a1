// Copyright (C) 2025 SEOCHO Project
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package policy_engine is the runtime authorization gate for the
// orchestrator. It answers two questions: may this role invoke this action,
// and is this workspace id well formed.
//
// The permission matrix is embedded in the binary via the enforcement
// package; there is no runtime mutation surface.
package policy_engine

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/tteon/seocho/pkg/validation"
	"github.com/tteon/seocho/services/policy_engine/enforcement"
)

// PolicyEngine answers authorization queries against the embedded
// permission matrix. Immutable after construction; safe for concurrent use.
type PolicyEngine struct {
	roles       map[string]map[string]bool
	defaultRole string
}

// NewPolicyEngine initializes an engine from the embedded permission file.
//
// It takes no arguments: the role matrix is compiled into the binary. An
// error here means the embedded YAML is malformed and the server must not
// start.
func NewPolicyEngine() (*PolicyEngine, error) {
	var file RolePermissionsFile
	if err := yaml.Unmarshal(enforcement.RolePermissions, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal the embedded permission file: %w", err)
	}
	if err := file.Validate(); err != nil {
		return nil, fmt.Errorf("invalid permission file: %w", err)
	}

	engine := &PolicyEngine{
		roles:       make(map[string]map[string]bool, len(file.Roles)),
		defaultRole: file.DefaultRole,
	}
	for _, role := range file.Roles {
		actions := make(map[string]bool, len(role.Actions))
		for _, action := range role.Actions {
			actions[action] = true
		}
		engine.roles[role.Name] = actions
	}
	return engine, nil
}

// Authorize checks whether the role may invoke the action.
//
// Unknown or empty roles are resolved to the default role before the check,
// so an unauthenticated caller gets viewer visibility rather than a hard
// failure. The returned Decision carries a caller-safe reason on denial.
func (e *PolicyEngine) Authorize(role, action string) Decision {
	effective := role
	if _, ok := e.roles[effective]; !ok {
		effective = e.defaultRole
	}
	actions, ok := e.roles[effective]
	if !ok {
		return Decision{Reason: fmt.Sprintf("unknown role %q", role)}
	}
	if !actions[action] {
		return Decision{Reason: fmt.Sprintf("role %q may not perform %q", effective, action)}
	}
	return Decision{Allowed: true}
}

// AuthorizeWorkspace validates the workspace id format and then the
// role/action pair. Handlers call this once per request before touching any
// database.
func (e *PolicyEngine) AuthorizeWorkspace(workspaceID, role, action string) Decision {
	if err := validation.ValidateWorkspaceID(workspaceID); err != nil {
		return Decision{Reason: err.Error()}
	}
	return e.Authorize(role, action)
}

// Roles returns the declared role names in sorted order.
func (e *PolicyEngine) Roles() []string {
	names := make([]string, 0, len(e.roles))
	for name := range e.roles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Actions returns the sorted action set for a role; nil for unknown roles.
func (e *PolicyEngine) Actions(role string) []string {
	actions, ok := e.roles[role]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(actions))
	for name := range actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
