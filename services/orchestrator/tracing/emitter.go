// Copyright (C) 2025 SEOCHO Project
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package tracing produces the trace-step topology consumed by the agent
// flow UI, plus the OpenTelemetry span bridge for the observability sink.
//
// Every step carries a node id that is unique within the request and links
// to its parents by id. The UI renders strictly by parent_id/parent_ids and
// phase; the emitter therefore refuses steps whose parents have not been
// emitted earlier in the same request, keeping the topology a DAG by
// construction.
package tracing

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Step types, named by where they are emitted in the two flows.
const (
	StepOrchestration = "ORCHESTRATION"
	StepFanout        = "FANOUT"
	StepFanoutChild   = "FAN_OUT_CHILD"
	StepCollect       = "COLLECT"
	StepSynthesis     = "SYNTHESIS"
	StepRoute         = "ROUTE"
	StepResolve       = "RESOLVE"
	StepSpecialist    = "SPECIALIST"
	StepAnswer        = "ANSWER"
)

// Step is one node of the request's trace DAG.
//
// ParentID is used for linear chains; ParentIDs for joins (COLLECT). At
// most one of the two is set.
type Step struct {
	ID        string         `json:"id"`
	NodeID    string         `json:"node_id"`
	Type      string         `json:"type"`
	Agent     string         `json:"agent,omitempty"`
	Phase     string         `json:"phase,omitempty"`
	Content   string         `json:"content,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	ParentID  string         `json:"parent_id,omitempty"`
	ParentIDs []string       `json:"parent_ids,omitempty"`
}

// Emitter collects trace steps for one request.
//
// Safe for concurrent use: debate workers emit FAN_OUT_CHILD steps in
// parallel. Sequence ids reflect emission order.
type Emitter struct {
	mu    sync.Mutex
	steps []Step
	seen  map[string]bool
	seq   int
}

// NewEmitter creates an empty per-request emitter.
func NewEmitter() *Emitter {
	return &Emitter{seen: make(map[string]bool)}
}

// Emit validates and records a step, assigning its sequence id and, when
// absent, a fresh node id. The completed step is returned so callers can
// chain children off its NodeID.
func (e *Emitter) Emit(step Step) (Step, error) {
	if step.NodeID == "" {
		step.NodeID = uuid.NewString()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.seen[step.NodeID] {
		return Step{}, fmt.Errorf("trace: duplicate node id %q", step.NodeID)
	}
	if step.ParentID != "" && !e.seen[step.ParentID] {
		return Step{}, fmt.Errorf("trace: unknown parent %q for %s step", step.ParentID, step.Type)
	}
	for _, parent := range step.ParentIDs {
		if !e.seen[parent] {
			return Step{}, fmt.Errorf("trace: unknown parent %q for %s step", parent, step.Type)
		}
	}

	step.ID = strconv.Itoa(e.seq)
	e.seq++
	e.seen[step.NodeID] = true
	e.steps = append(e.steps, step)
	return step, nil
}

// Root returns the first emitted step, when any exist. Later flows in the
// same request chain off it so the trace keeps a single root.
func (e *Emitter) Root() (Step, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.steps) == 0 {
		return Step{}, false
	}
	return e.steps[0], true
}

// Steps returns a copy of all emitted steps in emission order.
func (e *Emitter) Steps() []Step {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Step, len(e.steps))
	copy(out, e.steps)
	return out
}

// Preview truncates content for step display; the full text belongs in
// step metadata under "full_content". Truncation backs up to a rune
// boundary so multi-byte characters are never split.
func Preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// tracerName identifies this instrumentation scope in the span sink.
const tracerName = "github.com/tteon/seocho/services/orchestrator"

// StartSpan opens an otel span with string attributes. Debate workers are
// nested under the orchestration span through ctx propagation.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}
