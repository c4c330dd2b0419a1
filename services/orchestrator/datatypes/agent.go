// Copyright (C) 2025 SEOCHO Project
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes defines the wire envelopes of the orchestrator HTTP
// surface. Handlers bind and validate against these; flow packages never
// see them.
package datatypes

import (
	"github.com/tteon/seocho/services/orchestrator/semantic"
)

// RunRequest is the payload of the /run_agent family of endpoints.
//
// Databases is optional; an empty list means every registered user
// database. EntityOverrides pin a question entity to a specific node,
// bypassing resolution for that entity.
type RunRequest struct {
	Query           string                       `json:"query" binding:"required"`
	Mode            string                       `json:"mode,omitempty"`
	Databases       []string                     `json:"databases,omitempty"`
	WorkspaceID     string                       `json:"workspace_id,omitempty"`
	EntityOverrides map[string]semantic.Override `json:"entity_overrides,omitempty"`
}

// ErrorResponse is the uniform error envelope. RequestID echoes the
// X-Request-ID header so callers can correlate with server logs.
type ErrorResponse struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// EnsureIndexRequest asks for a fulltext index to be present on each of
// the listed databases.
type EnsureIndexRequest struct {
	Databases       []string `json:"databases" binding:"required,min=1"`
	WorkspaceID     string   `json:"workspace_id,omitempty"`
	IndexName       string   `json:"index_name,omitempty"`
	Labels          []string `json:"labels,omitempty"`
	Properties      []string `json:"properties,omitempty"`
	CreateIfMissing bool     `json:"create_if_missing"`
}
