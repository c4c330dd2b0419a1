// Copyright (C) 2025 SEOCHO Project
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided inputs that end up inside
// Cypher text (database names, node labels, index names) or scope request
// routing (workspace ids). Values are bound as parameters wherever the graph
// driver allows it; identifiers cannot be parameterized, so they must pass
// these validators before any I/O happens.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// dbNamePattern matches valid graph database names.
// Must start with a letter; alphanumeric only (Neo4j multi-db naming rules).
var dbNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]*$`)

// labelPattern matches valid Cypher labels, relationship types, index names,
// and property keys interpolated into query text.
var labelPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// workspacePattern matches valid workspace identifiers.
var workspacePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]{1,63}$`)

// ValidateDatabaseName validates a graph database name to prevent Cypher injection.
//
// Valid names start with a letter and contain only letters and digits.
// Names are case-sensitive.
//
// Example:
//
//	if err := validation.ValidateDatabaseName(db); err != nil {
//	    return nil, fmt.Errorf("invalid database: %w", err)
//	}
//	// Safe to use as a session database selector
func ValidateDatabaseName(name string) error {
	if name == "" {
		return fmt.Errorf("database name cannot be empty")
	}
	if !dbNamePattern.MatchString(name) {
		return fmt.Errorf("invalid database name %q (must start with a letter and be alphanumeric)", name)
	}
	return nil
}

// ValidateLabel validates a Cypher label, relationship type, or index name.
//
// Labels are treated as code: they are interpolated into query text and must
// therefore match ^[A-Za-z_][A-Za-z0-9_]*$ exactly.
func ValidateLabel(label string) error {
	if label == "" {
		return fmt.Errorf("label cannot be empty")
	}
	if !labelPattern.MatchString(label) {
		return fmt.Errorf("invalid label %q (use letters, digits, underscore; must not start with a digit)", label)
	}
	return nil
}

// ValidateLabels validates a set of labels, returning every offender at once.
func ValidateLabels(labels []string) error {
	var invalid []string
	for _, l := range labels {
		if err := ValidateLabel(l); err != nil {
			invalid = append(invalid, l)
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("invalid labels: %v", invalid)
	}
	return nil
}

// SanitizeIdentifiers trims, drops empties, and validates a list of label-like
// identifiers. Returns an error when nothing valid remains.
//
// Use this for caller-supplied label/property lists that will be interpolated
// into index DDL:
//
//	labels, err := validation.SanitizeIdentifiers(req.Labels, "labels")
func SanitizeIdentifiers(values []string, fieldName string) ([]string, error) {
	cleaned := make([]string, 0, len(values))
	for _, v := range values {
		ident := strings.TrimSpace(v)
		if ident == "" {
			continue
		}
		if err := ValidateLabel(ident); err != nil {
			return nil, fmt.Errorf("%s: %w", fieldName, err)
		}
		cleaned = append(cleaned, ident)
	}
	if len(cleaned) == 0 {
		return nil, fmt.Errorf("%q must contain at least one valid identifier", fieldName)
	}
	return cleaned, nil
}

// ValidateWorkspaceID validates a workspace identifier.
//
// Workspace ids scope registries and artifact stores; they appear in log
// attributes and trace metadata but never inside query text.
func ValidateWorkspaceID(id string) error {
	if id == "" {
		return fmt.Errorf("workspace_id is required")
	}
	if !workspacePattern.MatchString(id) {
		return fmt.Errorf("invalid workspace_id format: %q", id)
	}
	return nil
}
