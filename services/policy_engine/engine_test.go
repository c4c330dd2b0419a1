// Copyright (C) 2025 SEOCHO Project
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package policy_engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T) *PolicyEngine {
	t.Helper()
	engine, err := NewPolicyEngine()
	require.NoError(t, err, "embedded permission file must parse")
	return engine
}

func TestAuthorize(t *testing.T) {
	engine := newEngine(t)

	tests := []struct {
		role    string
		action  string
		allowed bool
	}{
		{"admin", ActionRunDebate, true},
		{"admin", ActionManageIndexes, true},
		{"user", ActionRunAgent, true},
		{"user", ActionRunPlatform, true},
		{"user", ActionIngestRaw, true},
		{"viewer", ActionReadDatabases, true},
		{"viewer", ActionReadAgents, true},
		{"viewer", ActionRunDebate, false},
		{"viewer", ActionManageIndexes, false},
	}
	for _, tt := range tests {
		t.Run(tt.role+"/"+tt.action, func(t *testing.T) {
			decision := engine.Authorize(tt.role, tt.action)
			assert.Equal(t, tt.allowed, decision.Allowed)
			if !tt.allowed {
				assert.NotEmpty(t, decision.Reason)
			}
		})
	}
}

func TestUnknownRoleFallsBackToDefault(t *testing.T) {
	engine := newEngine(t)

	// An unknown role gets viewer visibility, not a hard failure.
	assert.True(t, engine.Authorize("intern", ActionReadDatabases).Allowed)
	assert.False(t, engine.Authorize("intern", ActionRunDebate).Allowed)
	assert.False(t, engine.Authorize("", ActionRunAgent).Allowed)
	assert.True(t, engine.Authorize("", ActionReadAgents).Allowed)
}

func TestAuthorizeWorkspace(t *testing.T) {
	engine := newEngine(t)

	assert.True(t, engine.AuthorizeWorkspace("ws-prod-1", "user", ActionRunDebate).Allowed)

	denied := engine.AuthorizeWorkspace("1bad", "user", ActionRunDebate)
	assert.False(t, denied.Allowed)
	assert.Contains(t, denied.Reason, "workspace_id")

	denied = engine.AuthorizeWorkspace("", "user", ActionRunDebate)
	assert.False(t, denied.Allowed)

	denied = engine.AuthorizeWorkspace("ws-prod-1", "viewer", ActionRunDebate)
	assert.False(t, denied.Allowed)
	assert.Contains(t, denied.Reason, "viewer")
}

func TestRolesAndActions(t *testing.T) {
	engine := newEngine(t)

	assert.Equal(t, []string{"admin", "user", "viewer"}, engine.Roles())
	assert.Equal(t, []string{ActionReadAgents, ActionReadDatabases}, engine.Actions("viewer"))
	assert.Nil(t, engine.Actions("ghost"))
}

func TestPermissionFileValidation(t *testing.T) {
	tests := []struct {
		name string
		file RolePermissionsFile
		ok   bool
	}{
		{"empty", RolePermissionsFile{}, false},
		{"unnamed role", RolePermissionsFile{Roles: []Role{{Actions: []string{"x"}}}}, false},
		{"duplicate role", RolePermissionsFile{Roles: []Role{{Name: "a"}, {Name: "a"}}}, false},
		{"bad default", RolePermissionsFile{DefaultRole: "ghost", Roles: []Role{{Name: "a"}}}, false},
		{"valid", RolePermissionsFile{DefaultRole: "a", Roles: []Role{{Name: "a"}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.file.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
