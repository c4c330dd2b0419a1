// Copyright (C) 2025 SEOCHO Project
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package platform drives the chat surface on top of the supervisor. One
// user turn becomes: persist the user message, run the supervisor, persist
// the assistant message, and assemble the render-ready UI payload.
package platform

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/tteon/seocho/services/orchestrator/datatypes"
	"github.com/tteon/seocho/services/orchestrator/session"
	"github.com/tteon/seocho/services/orchestrator/supervisor"
)

// Coordinator handles platform chat turns.
type Coordinator struct {
	supervisor *supervisor.Supervisor
	sessions   session.Store
	log        *slog.Logger
}

// NewCoordinator creates a Coordinator over the supervisor and session
// store.
func NewCoordinator(sup *supervisor.Supervisor, sessions session.Store, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{supervisor: sup, sessions: sessions, log: log}
}

// HandleChat runs one chat turn. The default mode is debate; the
// supervisor may downgrade it and the downgrade is surfaced in the
// response envelope.
func (c *Coordinator) HandleChat(ctx context.Context, req datatypes.ChatSendRequest, role string) (*datatypes.ChatSendResponse, error) {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	mode := req.Mode
	if mode == "" {
		mode = supervisor.ModeDebate
	}

	if err := c.sessions.Append(sessionID, session.Turn{Role: "user", Content: req.Message}); err != nil {
		return nil, fmt.Errorf("persist user turn: %w", err)
	}

	resp, err := c.supervisor.Handle(ctx, supervisor.Request{
		Query:       req.Message,
		Mode:        mode,
		Databases:   req.Databases,
		WorkspaceID: req.WorkspaceID,
		Role:        role,
	})
	if err != nil {
		return nil, err
	}

	if err := c.sessions.Append(sessionID, session.Turn{Role: "assistant", Content: resp.Response}); err != nil {
		return nil, fmt.Errorf("persist assistant turn: %w", err)
	}

	out := &datatypes.ChatSendResponse{
		SessionID:        sessionID,
		AssistantMessage: resp.Response,
		Mode:             resp.Mode,
		UIPayload:        BuildUIPayload(resp),
		RuntimePayload:   buildRuntimePayload(resp),
		TraceSteps:       resp.TraceSteps,
	}
	if resp.RuntimeControl != nil {
		out.RuntimeControl = map[string]any{
			"requested_mode": resp.RuntimeControl.RequestedMode,
			"executed_mode":  resp.RuntimeControl.ExecutedMode,
			"reason":         resp.RuntimeControl.Reason,
		}
	}
	if resp.FallbackFrom != nil {
		out.FallbackFrom = map[string]any{
			"mode":           resp.FallbackFrom.Mode,
			"debate_state":   resp.FallbackFrom.DebateState,
			"agent_statuses": resp.FallbackFrom.AgentStatuses,
		}
	}
	return out, nil
}

// buildRuntimePayload captures the execution facts the frontend needs
// beyond the answer: mode, route, readiness, and token usage.
func buildRuntimePayload(resp *supervisor.Response) map[string]any {
	payload := map[string]any{"mode": resp.Mode}
	if resp.Route != "" {
		payload["route"] = resp.Route
	}
	if resp.Readiness != nil {
		payload["readiness"] = resp.Readiness
	}
	if resp.Usage.TotalTokens > 0 {
		payload["usage"] = resp.Usage
	}
	return payload
}

// History returns the stored session turns.
func (c *Coordinator) History(sessionID string) (*datatypes.ChatHistoryResponse, error) {
	turns, err := c.sessions.History(sessionID)
	if err != nil {
		return nil, err
	}
	return &datatypes.ChatHistoryResponse{SessionID: sessionID, Turns: turns}, nil
}

// Clear removes the session.
func (c *Coordinator) Clear(sessionID string) error {
	return c.sessions.Clear(sessionID)
}

// BuildUIPayload assembles the frontend payload from a supervisor
// response: one card for the executed mode, one for the trace size, a
// per-type trace summary, and the resolution candidates grouped by
// question entity.
func BuildUIPayload(resp *supervisor.Response) datatypes.UIPayload {
	payload := datatypes.UIPayload{
		Cards: []datatypes.UICard{
			{Title: "Run", Body: fmt.Sprintf("Mode: %s", resp.Mode)},
			{Title: "Trace", Body: fmt.Sprintf("%d steps", len(resp.TraceSteps))},
		},
		TraceSummary: map[string]int{},
	}
	for _, step := range resp.TraceSteps {
		payload.TraceSummary[step.Type]++
	}

	if resp.SemanticContext == nil {
		return payload
	}
	entities := make([]string, 0, len(resp.SemanticContext.Matches))
	for entity := range resp.SemanticContext.Matches {
		entities = append(entities, entity)
	}
	sort.Strings(entities)
	for _, entity := range entities {
		group := datatypes.EntityCandidateGroup{QuestionEntity: entity}
		for _, cand := range resp.SemanticContext.Matches[entity] {
			group.Candidates = append(group.Candidates, datatypes.EntityCandidate{
				Database:    cand.Database,
				NodeID:      cand.NodeID,
				DisplayName: cand.DisplayName,
				Labels:      cand.Labels,
				Score:       cand.FinalScore,
				Source:      cand.Source,
			})
		}
		payload.EntityCandidates = append(payload.EntityCandidates, group)
	}
	return payload
}
