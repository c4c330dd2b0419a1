// Copyright (C) 2025 SEOCHO Project
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"github.com/tteon/seocho/services/orchestrator/session"
	"github.com/tteon/seocho/services/orchestrator/tracing"
)

// ChatSendRequest is one user turn in a platform chat session. A missing
// SessionID starts a new session.
type ChatSendRequest struct {
	SessionID   string   `json:"session_id,omitempty"`
	Message     string   `json:"message" binding:"required"`
	Mode        string   `json:"mode,omitempty"`
	Databases   []string `json:"databases,omitempty"`
	WorkspaceID string   `json:"workspace_id,omitempty"`
}

// ChatSendResponse carries the assistant turn plus the render-ready UI
// payload built by the frontend specialist.
type ChatSendResponse struct {
	SessionID        string         `json:"session_id"`
	AssistantMessage string         `json:"assistant_message"`
	Mode             string         `json:"mode"`
	UIPayload        UIPayload      `json:"ui_payload"`
	RuntimePayload   map[string]any `json:"runtime_payload,omitempty"`
	RuntimeControl   map[string]any `json:"runtime_control,omitempty"`
	FallbackFrom     map[string]any `json:"fallback_from,omitempty"`
	TraceSteps       []tracing.Step `json:"trace_steps,omitempty"`
}

// ChatHistoryResponse returns a stored session.
type ChatHistoryResponse struct {
	SessionID string         `json:"session_id"`
	Turns     []session.Turn `json:"turns"`
}

// UIPayload is everything the chat frontend renders besides the answer
// text itself.
type UIPayload struct {
	Cards            []UICard               `json:"cards"`
	TraceSummary     map[string]int         `json:"trace_summary"`
	EntityCandidates []EntityCandidateGroup `json:"entity_candidates,omitempty"`
}

// UICard is one summary card shown above the answer.
type UICard struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// EntityCandidateGroup groups resolution candidates under the question
// entity they resolve.
type EntityCandidateGroup struct {
	QuestionEntity string            `json:"question_entity"`
	Candidates     []EntityCandidate `json:"candidates"`
}

// EntityCandidate is one resolved node offered to the user for
// disambiguation.
type EntityCandidate struct {
	Database    string   `json:"database"`
	NodeID      string   `json:"node_id"`
	DisplayName string   `json:"display_name"`
	Labels      []string `json:"labels,omitempty"`
	Score       float64  `json:"score"`
	Source      string   `json:"source"`
}
