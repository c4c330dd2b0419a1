// Copyright (C) 2025 SEOCHO Project
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package debate runs the parallel debate protocol: every ready agent
// answers the question independently, then a supervisor synthesizes the
// fragments into one answer.
//
// Fan-out is bounded by a weighted semaphore and per-task timeouts; one
// failing agent never fails the debate while at least one succeeds. The
// COLLECT step is emitted only after every spawned task has produced a
// result, timed out, or errored, and SYNTHESIS strictly follows COLLECT.
package debate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/tteon/seocho/services/graph"
	"github.com/tteon/seocho/services/llm"
	"github.com/tteon/seocho/services/orchestrator/agentpool"
	"github.com/tteon/seocho/services/orchestrator/memory"
	"github.com/tteon/seocho/services/orchestrator/runtime"
	"github.com/tteon/seocho/services/orchestrator/tracing"
)

// Debate states.
const (
	StateReady    = "ready"
	StateDegraded = "degraded"
	StateBlocked  = "blocked"
)

// Per-agent terminal statuses.
const (
	StatusSuccess     = "success"
	StatusTimeout     = "timeout"
	StatusToolError   = "tool_error"
	StatusUnreachable = "unreachable"
)

// Defaults for the fan-out bounds.
const (
	DefaultAgentTimeout = 60 * time.Second
	DefaultGrace        = 1 * time.Second
	DefaultParallelism  = 8
)

// ErrBlocked reports that the debate could not produce any answer. The
// caller decides whether to fall back to the semantic flow.
var ErrBlocked = errors.New("debate blocked: no agent produced an answer")

// Config bounds the fan-out.
type Config struct {
	AgentTimeout time.Duration
	Grace        time.Duration
	Parallelism  int
}

func (c Config) withDefaults() Config {
	if c.AgentTimeout <= 0 {
		c.AgentTimeout = DefaultAgentTimeout
	}
	if c.Grace <= 0 {
		c.Grace = DefaultGrace
	}
	if c.Parallelism <= 0 {
		c.Parallelism = DefaultParallelism
	}
	return c
}

// AgentResponse is one agent's outcome in the debate.
type AgentResponse struct {
	Agent    string `json:"agent"`
	Database string `json:"db"`
	Response string `json:"response"`
	Status   string `json:"status"`
}

// Result is the full debate outcome.
type Result struct {
	Answer        string            `json:"answer"`
	State         string            `json:"debate_state"`
	AgentStatuses map[string]string `json:"agent_statuses"`
	Readiness     agentpool.Summary `json:"readiness"`
	Responses     []AgentResponse   `json:"debate_results"`
	Usage         llm.Usage         `json:"usage"`
}

// Orchestrator fans a question out across the agent pool and synthesizes.
type Orchestrator struct {
	pool       *agentpool.Pool
	runner     *runtime.Runner
	supervisor *runtime.Agent
	cfg        Config
	log        *slog.Logger
}

// New creates an Orchestrator over the pool and runner.
func New(pool *agentpool.Pool, runner *runtime.Runner, cfg Config, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		pool:   pool,
		runner: runner,
		supervisor: &runtime.Agent{
			ID:   "supervisor",
			Name: "Supervisor",
			Instructions: "You are the debate supervisor. You receive independent answers " +
				"from database-bound specialist agents, some of which may have failed. " +
				"Synthesize them into a single coherent answer. Highlight agreements, " +
				"note disagreements, and ignore failed agents.",
		},
		cfg: cfg.withDefaults(),
		log: log,
	}
}

// childOutcome is one fan-out task's result.
type childOutcome struct {
	db     string
	agent  string
	result *runtime.RunResult
	err    error
}

// Run executes the debate over the given databases. The readiness
// snapshot is taken first; unreachable databases are excluded from the
// fan-out but reported in the statuses. Returns ErrBlocked (with a
// populated Result) when no agent can answer.
func (o *Orchestrator) Run(ctx context.Context, question string, databases []string, mem *memory.SharedMemory, rc *runtime.RunContext, emitter *tracing.Emitter) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "debate.run")
	defer span.End()

	agents, statuses := o.pool.CreateForAll(ctx, databases)

	res := &Result{AgentStatuses: make(map[string]string)}
	var targets []string
	for _, status := range statuses {
		switch status.State {
		case agentpool.StateReady:
			res.Readiness.Ready = append(res.Readiness.Ready, status.Database)
			targets = append(targets, status.Database)
		case agentpool.StateDegraded:
			res.Readiness.Degraded = append(res.Readiness.Degraded, status.Database)
			targets = append(targets, status.Database)
		default:
			res.Readiness.Unreachable = append(res.Readiness.Unreachable, status.Database)
			res.AgentStatuses[status.Database] = StatusUnreachable
		}
	}
	sort.Strings(res.Readiness.Ready)
	sort.Strings(res.Readiness.Degraded)
	sort.Strings(res.Readiness.Unreachable)
	res.State = debateState(res.Readiness)

	if res.State == StateBlocked {
		return res, fmt.Errorf("%w: 0/%d databases ready", ErrBlocked, len(databases))
	}

	if rc == nil {
		rc = &runtime.RunContext{}
	}
	rc.Memory = mem

	orchestration, err := emitter.Emit(tracing.Step{
		Type:    tracing.StepOrchestration,
		Agent:   "DebateOrchestrator",
		Phase:   "orchestration",
		Content: "Parallel debate started",
		Metadata: map[string]any{
			"query":       tracing.Preview(question, 200),
			"mode":        "parallel_debate",
			"agent_count": len(targets),
			"db_names":    targets,
		},
	})
	if err != nil {
		return res, err
	}

	agentNames := make([]string, 0, len(targets))
	for _, db := range targets {
		agentNames = append(agentNames, agents[db].Name)
	}
	fanout, err := emitter.Emit(tracing.Step{
		Type:     tracing.StepFanout,
		Agent:    "DebateOrchestrator",
		Phase:    "orchestration",
		Content:  fmt.Sprintf("Dispatching query to %d agents", len(targets)),
		Metadata: map[string]any{"agents": agentNames},
		ParentID: orchestration.NodeID,
	})
	if err != nil {
		return res, err
	}

	outcomes := o.fanOut(ctx, question, targets, agents, rc)

	var answeredChildren []string
	for _, outcome := range outcomes {
		status := o.classify(outcome)
		res.AgentStatuses[outcome.db] = status

		response := ""
		var invocations int
		if outcome.result != nil {
			response = outcome.result.Text
			invocations = len(outcome.result.ToolCalls)
			res.Usage.PromptTokens += outcome.result.Usage.PromptTokens
			res.Usage.CompletionTokens += outcome.result.Usage.CompletionTokens
			res.Usage.TotalTokens += outcome.result.Usage.TotalTokens
		}
		if outcome.err != nil {
			response = "Error: " + outcome.err.Error()
		}

		child, emitErr := emitter.Emit(tracing.Step{
			Type:    tracing.StepFanoutChild,
			Agent:   outcome.agent,
			Phase:   "fan-out",
			Content: tracing.Preview(response, 80),
			Metadata: map[string]any{
				"db":           outcome.db,
				"status":       status,
				"tool_calls":   invocations,
				"full_content": response,
			},
			ParentID: fanout.NodeID,
		})
		if emitErr != nil {
			return res, emitErr
		}

		res.Responses = append(res.Responses, AgentResponse{
			Agent:    outcome.agent,
			Database: outcome.db,
			Response: response,
			Status:   status,
		})
		if status == StatusSuccess {
			mem.PutResult(outcome.db, outcome.result.Text)
			answeredChildren = append(answeredChildren, child.NodeID)
		}
	}

	if len(answeredChildren) == 0 {
		res.State = StateBlocked
		return res, fmt.Errorf("%w: all %d agents failed", ErrBlocked, len(targets))
	}

	collect, err := emitter.Emit(tracing.Step{
		Type:    tracing.StepCollect,
		Agent:   "DebateOrchestrator",
		Phase:   "orchestration",
		Content: fmt.Sprintf("Collecting %d results", len(answeredChildren)),
		Metadata: map[string]any{
			"answered": len(answeredChildren),
			"failed":   len(targets) - len(answeredChildren),
		},
		ParentIDs: answeredChildren,
	})
	if err != nil {
		return res, err
	}

	answer, usage, err := o.synthesize(ctx, question, mem, res.AgentStatuses, rc)
	if err != nil {
		return res, fmt.Errorf("debate: synthesis: %w", err)
	}
	res.Answer = answer
	res.Usage.PromptTokens += usage.PromptTokens
	res.Usage.CompletionTokens += usage.CompletionTokens
	res.Usage.TotalTokens += usage.TotalTokens

	if _, err := emitter.Emit(tracing.Step{
		Type:     tracing.StepSynthesis,
		Agent:    "Supervisor",
		Phase:    "synthesis",
		Content:  tracing.Preview(answer, 120),
		Metadata: map[string]any{"full_content": answer},
		ParentID: collect.NodeID,
	}); err != nil {
		return res, err
	}
	return res, nil
}

// fanOut runs one task per target under the parallelism cap and waits for
// all of them, allowing a grace period after cancellation.
func (o *Orchestrator) fanOut(ctx context.Context, question string, targets []string, agents map[string]*runtime.Agent, rc *runtime.RunContext) []childOutcome {
	parallelism := o.cfg.Parallelism
	if len(targets) < parallelism {
		parallelism = len(targets)
	}
	sem := semaphore.NewWeighted(int64(parallelism))

	// Each worker sends exactly one outcome; the channel is buffered so
	// no worker blocks after the collector gives up.
	results := make(chan childOutcome, len(targets))
	for _, db := range targets {
		agent := agents[db]
		go func(db string, agent *runtime.Agent) {
			if err := sem.Acquire(ctx, 1); err != nil {
				results <- childOutcome{db: db, agent: agent.Name, err: err}
				return
			}
			defer sem.Release(1)

			taskCtx, cancel := context.WithTimeout(ctx, o.cfg.AgentTimeout)
			defer cancel()
			result, err := o.runner.Run(taskCtx, agent, question, rc)
			results <- childOutcome{db: db, agent: agent.Name, result: result, err: err}
		}(db, agent)
	}

	outcomes := make([]childOutcome, 0, len(targets))
	collected := make(map[string]bool, len(targets))
	record := func(outcome childOutcome) {
		outcomes = append(outcomes, outcome)
		collected[outcome.db] = true
	}

	for len(outcomes) < len(targets) {
		select {
		case outcome := <-results:
			record(outcome)
		case <-ctx.Done():
			// Unwind: give outstanding tasks the grace period to observe
			// cancellation, then record the rest as cancelled.
			timer := time.NewTimer(o.cfg.Grace)
			defer timer.Stop()
			for len(outcomes) < len(targets) {
				select {
				case outcome := <-results:
					record(outcome)
				case <-timer.C:
					for _, db := range targets {
						if !collected[db] {
							record(childOutcome{db: db, agent: agents[db].Name, err: ctx.Err()})
						}
					}
					return outcomes
				}
			}
			return outcomes
		}
	}
	return outcomes
}

// classify maps a task outcome onto the per-agent status set.
func (o *Orchestrator) classify(outcome childOutcome) string {
	err := outcome.err
	if err == nil {
		if outcome.result != nil && outcome.result.Text == "" && hasToolError(outcome.result) {
			return StatusToolError
		}
		return StatusSuccess
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		return StatusTimeout
	case graph.KindOf(err) == graph.KindUnreachable:
		return StatusUnreachable
	default:
		return StatusToolError
	}
}

func hasToolError(result *runtime.RunResult) bool {
	for _, call := range result.ToolCalls {
		if call.Error != "" {
			return true
		}
	}
	return false
}

// synthesize runs the supervisor over the collected fragments.
func (o *Orchestrator) synthesize(ctx context.Context, question string, mem *memory.SharedMemory, statuses map[string]string, rc *runtime.RunContext) (string, llm.Usage, error) {
	fragments := mem.AllResults()
	dbs := make([]string, 0, len(fragments))
	for db := range fragments {
		dbs = append(dbs, db)
	}
	sort.Strings(dbs)

	var b strings.Builder
	fmt.Fprintf(&b, "Original Question: %s\n\nAgent Responses:\n", question)
	for _, db := range dbs {
		fmt.Fprintf(&b, "\n--- Agent_%s (%s) ---\n%s\n", db, db, fragments[db])
	}
	failed := make([]string, 0)
	for db, status := range statuses {
		if status != StatusSuccess {
			failed = append(failed, fmt.Sprintf("%s: %s", db, status))
		}
	}
	sort.Strings(failed)
	if len(failed) > 0 {
		fmt.Fprintf(&b, "\nFailed agents: %s\n", strings.Join(failed, ", "))
	}
	b.WriteString("\nSynthesize these responses into a single, coherent answer. " +
		"Highlight agreements and note disagreements.")

	result, err := o.runner.Run(ctx, o.supervisor, b.String(), rc)
	if err != nil {
		return "", llm.Usage{}, err
	}
	return result.Text, result.Usage, nil
}

// debateState derives the debate state from the readiness snapshot.
func debateState(summary agentpool.Summary) string {
	switch {
	case len(summary.Ready) == 0:
		return StateBlocked
	case len(summary.Degraded) == 0 && len(summary.Unreachable) == 0:
		return StateReady
	default:
		return StateDegraded
	}
}
