// Copyright (C) 2025 SEOCHO Project
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package supervisor is the per-request front door of the orchestrator. It
// authorizes the caller, resolves the database scope, creates the
// request-scoped shared memory and trace emitter, applies the request
// deadline, and dispatches to the debate, semantic, or single-agent flow.
//
// A blocked debate degrades instead of failing: when at least one database
// is ready or degraded the supervisor reruns the question through the
// semantic flow and reports the downgrade in runtime_control/fallback_from.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/tteon/seocho/services/llm"
	"github.com/tteon/seocho/services/orchestrator/agentpool"
	"github.com/tteon/seocho/services/orchestrator/debate"
	"github.com/tteon/seocho/services/orchestrator/memory"
	"github.com/tteon/seocho/services/orchestrator/registry"
	"github.com/tteon/seocho/services/orchestrator/runtime"
	"github.com/tteon/seocho/services/orchestrator/semantic"
	"github.com/tteon/seocho/services/orchestrator/tracing"
	"github.com/tteon/seocho/services/policy_engine"
)

// Execution modes accepted on the request.
const (
	ModeDebate   = "debate"
	ModeSemantic = "semantic"
	ModeSingle   = "single"
)

// DefaultRequestTimeout bounds one end-to-end request.
const DefaultRequestTimeout = 120 * time.Second

// Sentinel errors; the HTTP layer maps these onto status codes.
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrForbidden      = errors.New("forbidden")
	ErrUnavailable    = errors.New("no database available")
)

// Config bounds one request's resources.
type Config struct {
	RequestTimeout time.Duration
	CacheCapacity  int
}

func (c Config) withDefaults() Config {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	return c
}

// Request is a fully decoded orchestration request.
type Request struct {
	Query           string
	Mode            string
	Databases       []string
	WorkspaceID     string
	Role            string
	EntityOverrides map[string]semantic.Override
}

// RuntimeControl reports a mode downgrade decided at runtime.
type RuntimeControl struct {
	RequestedMode string `json:"requested_mode"`
	ExecutedMode  string `json:"executed_mode"`
	Reason        string `json:"reason"`
}

// FallbackInfo describes the flow that was abandoned before the fallback.
type FallbackInfo struct {
	Mode          string            `json:"mode"`
	DebateState   string            `json:"debate_state"`
	AgentStatuses map[string]string `json:"agent_statuses"`
}

// Response is the supervisor's answer, regardless of the flow that
// produced it.
type Response struct {
	Response        string               `json:"response"`
	Mode            string               `json:"mode"`
	TraceSteps      []tracing.Step       `json:"trace_steps"`
	Route           semantic.Route       `json:"route,omitempty"`
	SemanticContext *semantic.Resolution `json:"semantic_context,omitempty"`
	Debate          *debate.Result       `json:"debate,omitempty"`
	Readiness       *agentpool.Summary   `json:"readiness,omitempty"`
	RuntimeControl  *RuntimeControl      `json:"runtime_control,omitempty"`
	FallbackFrom    *FallbackInfo        `json:"fallback_from,omitempty"`
	Usage           llm.Usage            `json:"usage"`
}

// Supervisor owns request admission and flow dispatch.
type Supervisor struct {
	registry *registry.Registry
	policy   *policy_engine.PolicyEngine
	pool     *agentpool.Pool
	runner   *runtime.Runner
	flow     *semantic.Flow
	debate   *debate.Orchestrator
	cfg      Config
	log      *slog.Logger
}

// New creates a Supervisor over the shared components.
func New(reg *registry.Registry, policy *policy_engine.PolicyEngine, pool *agentpool.Pool, runner *runtime.Runner, flow *semantic.Flow, deb *debate.Orchestrator, cfg Config, log *slog.Logger) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	return &Supervisor{
		registry: reg,
		policy:   policy,
		pool:     pool,
		runner:   runner,
		flow:     flow,
		debate:   deb,
		cfg:      cfg.withDefaults(),
		log:      log,
	}
}

// Handle runs one request end to end.
//
// Errors wrap one of the package sentinels. A blocked debate with no
// fallback target returns ErrUnavailable together with a Response carrying
// the readiness summary, so callers can report which databases failed.
func (s *Supervisor) Handle(ctx context.Context, req Request) (*Response, error) {
	if req.Query == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidRequest)
	}

	mode := req.Mode
	if mode == "" {
		mode = ModeSemantic
	}
	action := policy_engine.ActionRunAgent
	if mode == ModeDebate {
		action = policy_engine.ActionRunDebate
	}
	switch mode {
	case ModeDebate, ModeSemantic, ModeSingle:
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, req.Mode)
	}

	if decision := s.policy.AuthorizeWorkspace(req.WorkspaceID, req.Role, action); !decision.Allowed {
		return nil, fmt.Errorf("%w: %s", ErrForbidden, decision.Reason)
	}

	databases, err := s.resolveScope(req.Databases)
	if err != nil {
		return nil, err
	}
	for entity, override := range req.EntityOverrides {
		if !slices.Contains(databases, override.Database) {
			return nil, fmt.Errorf("%w: override for %q names database %q outside the request scope",
				ErrInvalidRequest, entity, override.Database)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()
	ctx, span := tracing.StartSpan(ctx, "supervisor.handle",
		attribute.String("mode", mode),
		attribute.String("workspace_id", req.WorkspaceID),
		attribute.Int("databases", len(databases)),
	)
	defer span.End()

	mem := memory.New(s.cfg.CacheCapacity)
	emitter := tracing.NewEmitter()

	start := time.Now()
	var resp *Response
	switch mode {
	case ModeDebate:
		resp, err = s.runDebate(ctx, req, databases, mem, emitter)
	case ModeSingle:
		resp, err = s.runSingle(ctx, req, databases, mem, emitter)
	default:
		resp, err = s.runSemantic(ctx, req, databases, emitter)
	}
	// Errors keep the steps emitted so far: a timed-out request still
	// reports its truncated trace.
	if resp == nil {
		resp = &Response{Mode: mode}
	}
	resp.TraceSteps = emitter.Steps()
	if err != nil {
		return resp, err
	}

	hits, misses := mem.Stats()
	s.log.Info("request completed",
		"mode", resp.Mode,
		"databases", len(databases),
		"duration_ms", time.Since(start).Milliseconds(),
		"cache_hits", hits,
		"cache_misses", misses,
		"trace_steps", len(resp.TraceSteps),
	)
	return resp, nil
}

// resolveScope validates the requested databases against the registry, or
// defaults to every user database when none are named.
func (s *Supervisor) resolveScope(requested []string) ([]string, error) {
	if len(requested) == 0 {
		databases := s.registry.ListUserDBs()
		if len(databases) == 0 {
			return nil, fmt.Errorf("%w: no databases registered", ErrUnavailable)
		}
		return databases, nil
	}
	for _, db := range requested {
		if !s.registry.IsValid(db) {
			return nil, fmt.Errorf("%w: unknown database %q", ErrInvalidRequest, db)
		}
	}
	return requested, nil
}

func (s *Supervisor) runSemantic(ctx context.Context, req Request, databases []string, emitter *tracing.Emitter) (*Response, error) {
	result, err := s.flow.Run(ctx, req.Query, databases, req.EntityOverrides, emitter, "")
	if err != nil {
		return nil, err
	}
	return &Response{
		Response:        result.Answer,
		Mode:            ModeSemantic,
		Route:           result.Route,
		SemanticContext: result.Resolution,
	}, nil
}

// runDebate executes the debate and, when it is blocked but some databases
// still answer probes, downgrades to the semantic flow over that remainder.
func (s *Supervisor) runDebate(ctx context.Context, req Request, databases []string, mem *memory.SharedMemory, emitter *tracing.Emitter) (*Response, error) {
	result, err := s.debate.Run(ctx, req.Query, databases, mem, nil, emitter)
	if err == nil {
		return &Response{
			Response:  result.Answer,
			Mode:      ModeDebate,
			Debate:    result,
			Readiness: &result.Readiness,
			Usage:     result.Usage,
		}, nil
	}
	if !errors.Is(err, debate.ErrBlocked) {
		return nil, err
	}

	// Blocked debate. Databases that still answered probes can serve a
	// read-only semantic pass; only a fully unreachable scope is fatal.
	targets := append([]string{}, result.Readiness.Ready...)
	targets = append(targets, result.Readiness.Degraded...)
	if len(targets) == 0 {
		resp := &Response{
			Mode:      ModeDebate,
			Debate:    result,
			Readiness: &result.Readiness,
		}
		return resp, fmt.Errorf("%w: debate blocked, 0/%d databases reachable", ErrUnavailable, len(databases))
	}

	s.log.Warn("debate blocked, falling back to semantic flow",
		"requested_databases", len(databases),
		"fallback_databases", len(targets),
	)
	// Chain the semantic pass under the debate's orchestration root so the
	// request keeps a single trace DAG.
	parent := ""
	if root, ok := emitter.Root(); ok {
		parent = root.NodeID
	}
	flowResult, err := s.flow.Run(ctx, req.Query, targets, req.EntityOverrides, emitter, parent)
	if err != nil {
		return nil, fmt.Errorf("debate fallback: %w", err)
	}
	return &Response{
		Response:        flowResult.Answer,
		Mode:            ModeSemantic,
		Route:           flowResult.Route,
		SemanticContext: flowResult.Resolution,
		Debate:          result,
		Readiness:       &result.Readiness,
		RuntimeControl: &RuntimeControl{
			RequestedMode: ModeDebate,
			ExecutedMode:  ModeSemantic,
			Reason:        "debate_blocked",
		},
		FallbackFrom: &FallbackInfo{
			Mode:          ModeDebate,
			DebateState:   debate.StateBlocked,
			AgentStatuses: result.AgentStatuses,
		},
	}, nil
}

// runSingle is the legacy one-agent path: the question goes to exactly one
// database-bound agent with no synthesis.
func (s *Supervisor) runSingle(ctx context.Context, req Request, databases []string, mem *memory.SharedMemory, emitter *tracing.Emitter) (*Response, error) {
	if len(databases) != 1 {
		return nil, fmt.Errorf("%w: single mode requires exactly one database, got %d", ErrInvalidRequest, len(databases))
	}
	db := databases[0]

	agents, statuses := s.pool.CreateForAll(ctx, databases)
	agent, ok := agents[db]
	if !ok {
		reason := "unreachable"
		if len(statuses) > 0 {
			reason = statuses[0].Reason
		}
		return nil, fmt.Errorf("%w: database %q: %s", ErrUnavailable, db, reason)
	}

	orchestration, err := emitter.Emit(tracing.Step{
		Type:    tracing.StepOrchestration,
		Agent:   agent.Name,
		Phase:   "orchestration",
		Content: "Single-agent run started",
		Metadata: map[string]any{
			"query": tracing.Preview(req.Query, 200),
			"mode":  ModeSingle,
			"db":    db,
		},
	})
	if err != nil {
		return nil, err
	}

	result, err := s.runner.Run(ctx, agent, req.Query, &runtime.RunContext{Memory: mem})
	if err != nil {
		return nil, fmt.Errorf("single agent run: %w", err)
	}

	if _, err := emitter.Emit(tracing.Step{
		Type:     tracing.StepAnswer,
		Agent:    agent.Name,
		Phase:    "answer",
		Content:  tracing.Preview(result.Text, 120),
		Metadata: map[string]any{"full_content": result.Text, "tool_calls": len(result.ToolCalls)},
		ParentID: orchestration.NodeID,
	}); err != nil {
		return nil, err
	}

	return &Response{
		Response: result.Text,
		Mode:     ModeSingle,
		Usage:    result.Usage,
	}, nil
}
