// Copyright (C) 2025 SEOCHO Project
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package runtime executes model-driven agents with closure-bound tools.
//
// The Runner is the single call site between business logic and the model
// backend: it owns the tool-use loop, span emission, usage accounting, and
// cancellation. Components never talk to an LLM SDK directly, so SDK
// signature churn stays contained here.
package runtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tteon/seocho/services/llm"
	"github.com/tteon/seocho/services/orchestrator/memory"
)

// ToolFunc executes one tool call. Arguments arrive pre-decoded from the
// model's JSON; the return string is fed back to the model verbatim.
type ToolFunc func(ctx context.Context, rc *RunContext, args map[string]any) (string, error)

// Tool is a named callable with a typed argument shape.
//
// Database-bound tools capture their database name by value at creation
// time; the model cannot retarget them.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Fn          ToolFunc
}

// ToolSet is an ordered, name-unique collection of tools.
type ToolSet struct {
	order []string
	tools map[string]Tool
}

// NewToolSet creates an empty ToolSet.
func NewToolSet() *ToolSet {
	return &ToolSet{tools: make(map[string]Tool)}
}

// Register adds a tool. Registering a duplicate name is an error.
func (s *ToolSet) Register(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if t.Fn == nil {
		return fmt.Errorf("tool %q has no function", t.Name)
	}
	if _, exists := s.tools[t.Name]; exists {
		return fmt.Errorf("tool %q already registered", t.Name)
	}
	s.tools[t.Name] = t
	s.order = append(s.order, t.Name)
	return nil
}

// Get returns the named tool.
func (s *ToolSet) Get(name string) (Tool, bool) {
	t, ok := s.tools[name]
	return t, ok
}

// Names returns tool names in registration order.
func (s *ToolSet) Names() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Schemas renders the set in the model backend's JSON-schema shape.
func (s *ToolSet) Schemas() []llm.ToolSchema {
	schemas := make([]llm.ToolSchema, 0, len(s.order))
	for _, name := range s.order {
		t := s.tools[name]
		params := t.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		schemas = append(schemas, llm.ToolSchema{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  params,
		})
	}
	return schemas
}

// StringArg decodes a required string argument from a tool call.
func StringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing argument %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string", key)
	}
	return s, nil
}

// decodeArgs parses the model's JSON argument string. An empty string is
// treated as no arguments.
func decodeArgs(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("malformed tool arguments: %w", err)
	}
	return args, nil
}

// RunContext carries request-scoped state into tool executions.
//
// Tools receive the current request's SharedMemory by reference; nothing
// here survives the request.
type RunContext struct {
	Memory      *memory.SharedMemory
	WorkspaceID string
	RequestID   string
}
