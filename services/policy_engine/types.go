// Copyright (C) 2025 SEOCHO Project
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package policy_engine

import (
	"fmt"
)

// Action names map one-to-one onto orchestrator operations. Handlers refer
// to these constants instead of bare strings so a typo fails compilation,
// not authorization.
const (
	ActionRunAgent           = "run_agent"
	ActionRunDebate          = "run_debate"
	ActionRunPlatform        = "run_platform"
	ActionReadDatabases      = "read_databases"
	ActionReadAgents         = "read_agents"
	ActionManageIndexes      = "manage_indexes"
	ActionInferRules         = "infer_rules"
	ActionValidateRules      = "validate_rules"
	ActionAssessRules        = "assess_rules"
	ActionManageRuleProfiles = "manage_rule_profiles"
	ActionExportRules        = "export_rules"
	ActionIngestRaw          = "ingest_raw"
)

// RolePermissionsFile is the YAML shape of the embedded permission matrix.
type RolePermissionsFile struct {
	DefaultRole string `yaml:"default_role"`
	Roles       []Role `yaml:"roles"`
}

// Role binds a role name to the set of actions it may invoke.
type Role struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Actions     []string `yaml:"actions"`
}

// Decision is the outcome of an authorization check. Reason is always set
// when Allowed is false and is safe to return to the caller.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Validate rejects permission files that would make authorization
// ambiguous: duplicate roles, empty names, or a default role that does not
// exist.
func (f *RolePermissionsFile) Validate() error {
	if len(f.Roles) == 0 {
		return fmt.Errorf("permission file declares no roles")
	}
	seen := make(map[string]bool, len(f.Roles))
	for _, role := range f.Roles {
		if role.Name == "" {
			return fmt.Errorf("permission file contains a role with no name")
		}
		if seen[role.Name] {
			return fmt.Errorf("duplicate role %q in permission file", role.Name)
		}
		seen[role.Name] = true
	}
	if f.DefaultRole != "" && !seen[f.DefaultRole] {
		return fmt.Errorf("default_role %q is not a declared role", f.DefaultRole)
	}
	return nil
}
