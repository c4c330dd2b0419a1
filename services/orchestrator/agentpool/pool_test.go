// Copyright (C) 2025 SEOCHO Project
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agentpool

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tteon/seocho/services/graph"
)

// fakeGateway serves canned schemas and records probe counts.
type fakeGateway struct {
	schemas map[string]graph.Schema
	fail    map[string]bool
	probes  map[string]int
	rows    []map[string]any
	runErr  error
	lastDB  string
	lastQ   string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		schemas: map[string]graph.Schema{},
		fail:    map[string]bool{},
		probes:  map[string]int{},
	}
}

func (g *fakeGateway) RunCypher(ctx context.Context, db, query string, params map[string]any) ([]map[string]any, error) {
	g.lastDB, g.lastQ = db, query
	if g.runErr != nil {
		return nil, g.runErr
	}
	return g.rows, nil
}

func (g *fakeGateway) GetSchemaSnapshot(ctx context.Context, db string) (graph.Schema, error) {
	g.probes[db]++
	if g.fail[db] {
		return graph.Schema{}, &graph.Error{Kind: graph.KindUnreachable, Database: db, Err: fmt.Errorf("connection refused")}
	}
	schema, ok := g.schemas[db]
	if !ok {
		schema = graph.Schema{Database: db, Labels: []string{"Entity"}}
	}
	return schema, nil
}

func (g *fakeGateway) EnsureFulltextIndex(ctx context.Context, db, indexName string, labels, properties []string, createIfMissing bool) (graph.EnsureResult, error) {
	return graph.EnsureResult{Database: db, IndexName: indexName}, nil
}

func (g *fakeGateway) FulltextSearch(ctx context.Context, db, indexName, terms string, limit int) ([]graph.CandidateHit, error) {
	return nil, nil
}

func newTestPool(gw *fakeGateway) (*Pool, *time.Time) {
	pool := NewPool(gw, DefaultProbeTTL, nil)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	pool.now = func() time.Time { return now }
	return pool, &now
}

func TestCreateForAll(t *testing.T) {
	gw := newFakeGateway()
	gw.fail["kgruntime"] = true
	pool, _ := newTestPool(gw)

	agents, statuses := pool.CreateForAll(context.Background(), []string{"kgnormal", "kgfibo", "kgruntime"})

	require.Len(t, statuses, 3)
	assert.Equal(t, Status{Database: "kgnormal", State: StateReady, Reason: "created"}, statuses[0])
	assert.Equal(t, Status{Database: "kgfibo", State: StateReady, Reason: "created"}, statuses[1])
	assert.Equal(t, StateUnreachable, statuses[2].State)

	require.Len(t, agents, 2)
	assert.Equal(t, "Agent_kgnormal", agents["kgnormal"].Name)
	assert.Contains(t, agents["kgnormal"].Instructions, "kgnormal")
	assert.Equal(t, []string{"query_db", "get_schema", "rerank_candidates", "put_shared_result"}, agents["kgnormal"].Tools.Names())

	_, ok := pool.Get("kgruntime")
	assert.False(t, ok, "unreachable database gets no agent")
}

func TestCreateForAllUsesFreshProbeCache(t *testing.T) {
	gw := newFakeGateway()
	pool, _ := newTestPool(gw)
	ctx := context.Background()

	first, _ := pool.CreateForAll(ctx, []string{"kgnormal"})
	second, statuses := pool.CreateForAll(ctx, []string{"kgnormal"})

	assert.Equal(t, 1, gw.probes["kgnormal"], "fresh probe is not repeated")
	assert.Equal(t, "cached", statuses[0].Reason)
	assert.Same(t, first["kgnormal"], second["kgnormal"])
}

func TestStaleProbeSameSchemaKeepsAgent(t *testing.T) {
	gw := newFakeGateway()
	pool, now := newTestPool(gw)
	ctx := context.Background()

	first, _ := pool.CreateForAll(ctx, []string{"kgnormal"})
	*now = now.Add(DefaultProbeTTL + time.Second)
	second, statuses := pool.CreateForAll(ctx, []string{"kgnormal"})

	assert.Equal(t, 2, gw.probes["kgnormal"])
	assert.Equal(t, "refreshed", statuses[0].Reason)
	assert.Same(t, first["kgnormal"], second["kgnormal"], "unchanged schema keeps the agent")
}

func TestSchemaChangeReplacesAgent(t *testing.T) {
	gw := newFakeGateway()
	pool, now := newTestPool(gw)
	ctx := context.Background()

	first, _ := pool.CreateForAll(ctx, []string{"kgnormal"})
	gw.schemas["kgnormal"] = graph.Schema{Database: "kgnormal", Labels: []string{"Entity", "Company"}}
	*now = now.Add(DefaultProbeTTL + time.Second)
	second, statuses := pool.CreateForAll(ctx, []string{"kgnormal"})

	assert.Equal(t, "schema_changed", statuses[0].Reason)
	assert.NotSame(t, first["kgnormal"], second["kgnormal"], "changed schema replaces the agent")
	assert.Contains(t, second["kgnormal"].Instructions, "Company")
}

func TestFailedReprobeDegradesExistingAgent(t *testing.T) {
	gw := newFakeGateway()
	pool, now := newTestPool(gw)
	ctx := context.Background()

	first, _ := pool.CreateForAll(ctx, []string{"kgnormal"})
	gw.fail["kgnormal"] = true
	*now = now.Add(DefaultProbeTTL + time.Second)
	second, statuses := pool.CreateForAll(ctx, []string{"kgnormal"})

	assert.Equal(t, StateDegraded, statuses[0].State)
	assert.Same(t, first["kgnormal"], second["kgnormal"], "degraded agent keeps serving")

	summary := pool.Readiness()
	assert.Equal(t, []string{"kgnormal"}, summary.Degraded)
}

func TestReadinessSummary(t *testing.T) {
	gw := newFakeGateway()
	gw.fail["kgruntime"] = true
	pool, now := newTestPool(gw)
	ctx := context.Background()

	pool.CreateForAll(ctx, []string{"kgnormal", "kgfibo", "kgruntime"})

	summary := pool.Readiness()
	assert.Equal(t, []string{"kgfibo", "kgnormal"}, summary.Ready)
	assert.Empty(t, summary.Degraded)
	assert.Equal(t, []string{"kgruntime"}, summary.Unreachable)

	// A stale probe downgrades ready databases until the next pass.
	*now = now.Add(DefaultProbeTTL + time.Second)
	summary = pool.Readiness()
	assert.Empty(t, summary.Ready)
	assert.Equal(t, []string{"kgfibo", "kgnormal"}, summary.Degraded)
}

func TestInvalidDatabaseName(t *testing.T) {
	pool, _ := newTestPool(newFakeGateway())
	agents, statuses := pool.CreateForAll(context.Background(), []string{"kg-bad;DROP"})
	assert.Empty(t, agents)
	require.Len(t, statuses, 1)
	assert.Equal(t, StateUnreachable, statuses[0].State)
}

func TestDescribe(t *testing.T) {
	gw := newFakeGateway()
	pool, _ := newTestPool(gw)
	pool.CreateForAll(context.Background(), []string{"kgnormal"})

	info, ok := pool.Describe("kgnormal")
	require.True(t, ok)
	assert.Equal(t, StateReady, info["status"])
	assert.Equal(t, "Agent_kgnormal", info["agent"])

	_, ok = pool.Describe("missing")
	assert.False(t, ok)
}
