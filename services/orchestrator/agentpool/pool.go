// Copyright (C) 2025 SEOCHO Project
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package agentpool creates and owns per-database specialist agents.
//
// Exactly one agent exists per database at any time. Agents are immutable;
// when a re-probe observes a changed schema the pool builds a replacement
// and swaps it in. The readiness map is read on every request and written
// only on probe, so updates are copy-on-write: readers always see a
// complete, consistent snapshot without taking the writer lock.
package agentpool

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tteon/seocho/pkg/validation"
	"github.com/tteon/seocho/services/graph"
	"github.com/tteon/seocho/services/orchestrator/runtime"
)

// DefaultProbeTTL is how long a successful schema probe keeps a database
// ready without re-probing (T_probe).
const DefaultProbeTTL = 30 * time.Second

// Database readiness states.
const (
	StateReady       = "ready"
	StateDegraded    = "degraded"
	StateUnreachable = "unreachable"
)

// Status reports one database's outcome from CreateForAll.
type Status struct {
	Database string `json:"database"`
	State    string `json:"status"`
	Reason   string `json:"reason"`
}

// Summary groups databases by readiness state, each list sorted.
type Summary struct {
	Ready       []string `json:"ready"`
	Degraded    []string `json:"degraded"`
	Unreachable []string `json:"unreachable"`
}

// entry is the pool's per-database record. Entries are immutable once
// published; probes publish replacements.
type entry struct {
	agent    *runtime.Agent
	state    string
	reason   string
	schema   graph.Schema
	probedAt time.Time
}

// Pool owns the database-to-agent map and its readiness bookkeeping.
type Pool struct {
	gateway  graph.Gateway
	probeTTL time.Duration
	log      *slog.Logger
	now      func() time.Time

	writeMu sync.Mutex
	entries atomic.Pointer[map[string]*entry]
}

// NewPool creates an empty pool over the gateway. probeTTL <= 0 uses
// DefaultProbeTTL.
func NewPool(gateway graph.Gateway, probeTTL time.Duration, log *slog.Logger) *Pool {
	if probeTTL <= 0 {
		probeTTL = DefaultProbeTTL
	}
	if log == nil {
		log = slog.Default()
	}
	p := &Pool{gateway: gateway, probeTTL: probeTTL, log: log, now: time.Now}
	empty := make(map[string]*entry)
	p.entries.Store(&empty)
	return p
}

// CreateForAll ensures an agent exists for every valid database, probing
// schemas where the cached probe is stale. Returns the agents that exist
// after the pass plus a per-database status list in input order.
//
// A failed probe downgrades a database with an existing agent to degraded
// (the agent keeps serving with its last known schema); a database that
// never had an agent becomes unreachable and gets none.
func (p *Pool) CreateForAll(ctx context.Context, databases []string) (map[string]*runtime.Agent, []Status) {
	agents := make(map[string]*runtime.Agent)
	statuses := make([]Status, 0, len(databases))

	for _, db := range databases {
		status := p.ensure(ctx, db)
		statuses = append(statuses, status)
		if agent, ok := p.Get(db); ok {
			agents[db] = agent
		}
	}
	return agents, statuses
}

// ensure refreshes one database's entry, probing when stale.
func (p *Pool) ensure(ctx context.Context, db string) Status {
	if err := validation.ValidateDatabaseName(db); err != nil {
		return Status{Database: db, State: StateUnreachable, Reason: err.Error()}
	}

	if cached, ok := p.lookup(db); ok && cached.agent != nil && p.fresh(cached) {
		return Status{Database: db, State: cached.state, Reason: "cached"}
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	// Re-check under the writer lock: a concurrent request may have
	// probed while we waited.
	if cached, ok := p.lookup(db); ok && cached.agent != nil && p.fresh(cached) {
		return Status{Database: db, State: cached.state, Reason: "cached"}
	}

	schema, err := p.gateway.GetSchemaSnapshot(ctx, db)
	if err != nil {
		prior, had := p.lookup(db)
		if had && prior.agent != nil {
			p.publish(db, &entry{
				agent:    prior.agent,
				state:    StateDegraded,
				reason:   err.Error(),
				schema:   prior.schema,
				probedAt: prior.probedAt,
			})
			p.log.Warn("schema probe failed, agent degraded", "database", db, "error", err)
			return Status{Database: db, State: StateDegraded, Reason: err.Error()}
		}
		p.publish(db, &entry{state: StateUnreachable, reason: err.Error(), probedAt: p.now()})
		p.log.Warn("schema probe failed, no agent created", "database", db, "error", err)
		return Status{Database: db, State: StateUnreachable, Reason: err.Error()}
	}

	prior, had := p.lookup(db)
	reason := "created"
	var agent *runtime.Agent
	if had && prior.agent != nil && prior.schema.Text() == schema.Text() {
		agent = prior.agent
		reason = "refreshed"
	} else {
		agent = p.buildAgent(db, schema)
		if had && prior.agent != nil {
			reason = "schema_changed"
		}
	}

	p.publish(db, &entry{agent: agent, state: StateReady, schema: schema, probedAt: p.now()})
	if reason != "refreshed" {
		p.log.Info("agent created", "database", db, "reason", reason)
	}
	return Status{Database: db, State: StateReady, Reason: reason}
}

// buildAgent constructs the database-bound specialist with its closure
// tool set.
func (p *Pool) buildAgent(db string, schema graph.Schema) *runtime.Agent {
	return &runtime.Agent{
		ID:           uuid.NewString(),
		Name:         "Agent_" + db,
		Database:     db,
		Instructions: agentInstructions(db, schema.Text()),
		Tools:        p.buildTools(db, schema),
	}
}

// Get returns the current agent for db, if one exists.
func (p *Pool) Get(db string) (*runtime.Agent, bool) {
	if e, ok := p.lookup(db); ok && e.agent != nil {
		return e.agent, true
	}
	return nil, false
}

// Readiness summarizes the pool. A database is ready only while its probe
// is fresh; a stale ready entry reports degraded until re-probed.
func (p *Pool) Readiness() Summary {
	summary := Summary{Ready: []string{}, Degraded: []string{}, Unreachable: []string{}}
	for db, e := range *p.entries.Load() {
		switch {
		case e.state == StateReady && e.agent != nil && p.fresh(e):
			summary.Ready = append(summary.Ready, db)
		case e.agent != nil:
			summary.Degraded = append(summary.Degraded, db)
		default:
			summary.Unreachable = append(summary.Unreachable, db)
		}
	}
	sort.Strings(summary.Ready)
	sort.Strings(summary.Degraded)
	sort.Strings(summary.Unreachable)
	return summary
}

// Databases lists every database the pool has an entry for, sorted.
func (p *Pool) Databases() []string {
	entries := *p.entries.Load()
	out := make([]string, 0, len(entries))
	for db := range entries {
		out = append(out, db)
	}
	sort.Strings(out)
	return out
}

// Describe reports one database's pool state for the agents endpoint.
func (p *Pool) Describe(db string) (map[string]any, bool) {
	e, ok := p.lookup(db)
	if !ok {
		return nil, false
	}
	state := e.state
	if state == StateReady && !p.fresh(e) {
		state = StateDegraded
	}
	info := map[string]any{
		"database":  db,
		"status":    state,
		"probed_at": e.probedAt,
	}
	if e.agent != nil {
		info["agent"] = e.agent.Name
		info["tools"] = e.agent.Tools.Names()
	}
	if e.reason != "" {
		info["reason"] = e.reason
	}
	return info, true
}

func (p *Pool) lookup(db string) (*entry, bool) {
	e, ok := (*p.entries.Load())[db]
	return e, ok
}

// publish swaps in a new map with db replaced. Callers hold writeMu.
func (p *Pool) publish(db string, e *entry) {
	old := *p.entries.Load()
	next := make(map[string]*entry, len(old)+1)
	for k, v := range old {
		next[k] = v
	}
	next[db] = e
	p.entries.Store(&next)
}

func (p *Pool) fresh(e *entry) bool {
	return p.now().Sub(e.probedAt) <= p.probeTTL
}

func agentInstructions(db, schemaText string) string {
	return "You are a knowledge graph specialist for the '" + db + "' database.\n\n" +
		"Schema:\n" + schemaText + "\n\n" +
		"When answering questions:\n" +
		"1. Use get_schema() to verify available node labels and relationships.\n" +
		"2. Use query_db() to execute Cypher queries against your database.\n" +
		"3. Provide factual answers based on query results.\n" +
		"4. Never query or reference any other database; if the question is outside your database's scope, state that clearly."
}
