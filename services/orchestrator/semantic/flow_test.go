// Copyright (C) 2025 SEOCHO Project
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package semantic

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tteon/seocho/services/orchestrator/tracing"
)

// flowGateway resolves "Acme Corp" via fulltext and serves neighborhood
// rows for its node.
func flowGateway() *fakeGateway {
	return &fakeGateway{run: func(db, query string, params map[string]any) ([]map[string]any, error) {
		switch {
		case strings.Contains(query, "SHOW FULLTEXT INDEXES"):
			return []map[string]any{{"name": "entity_fulltext"}}, nil
		case strings.Contains(query, "db.index.fulltext.queryNodes"):
			return []map[string]any{
				{"node_id": "4:x:1", "labels": []any{"Company"}, "display_name": "Acme Corp", "score": 3.0},
			}, nil
		case strings.Contains(query, "elementId(n) = toString($node_id)"):
			return []map[string]any{
				{"entity": "Acme Corp", "labels": []any{"Company"}, "neighbors": []any{}},
			}, nil
		case strings.Contains(query, "toLower(lbl) IN ['resource'"):
			return []map[string]any{
				{"labels": []any{"Class"}, "resource": "http://example.org/Acme", "name": "Acme Corp"},
			}, nil
		}
		return nil, nil
	}}
}

func newFlow(gw *fakeGateway) *Flow {
	resolver := NewResolver(gw, nil, nil)
	router := NewRouter(nil, nil)
	return NewFlow(gw, resolver, router, nil, nil)
}

func stepTypes(steps []tracing.Step) []string {
	types := make([]string, 0, len(steps))
	for _, s := range steps {
		types = append(types, s.Type)
	}
	return types
}

func TestFlowLPGRoute(t *testing.T) {
	flow := newFlow(flowGateway())
	emitter := tracing.NewEmitter()

	result, err := flow.Run(context.Background(), `How many nodes relate to "Acme Corp"?`, []string{"kgnormal"}, nil, emitter, "")
	require.NoError(t, err)

	assert.Equal(t, RouteLPG, result.Route)
	require.NotNil(t, result.LPG)
	assert.Nil(t, result.RDF)
	assert.Len(t, result.LPG.Records, 1)
	assert.Contains(t, result.Answer, "Route selected: LPG.")
	assert.Contains(t, result.Answer, "Acme Corp")

	steps := emitter.Steps()
	require.Equal(t, []string{
		tracing.StepResolve, tracing.StepRoute, tracing.StepSpecialist, tracing.StepAnswer,
	}, stepTypes(steps))

	// Strict chain: each step hangs off the previous one.
	for i := 1; i < len(steps); i++ {
		assert.Equal(t, steps[i-1].NodeID, steps[i].ParentID)
	}
}

func TestFlowHybridRunsBothSpecialists(t *testing.T) {
	flow := newFlow(flowGateway())
	emitter := tracing.NewEmitter()

	result, err := flow.Run(context.Background(), `Which ontology class covers the node "Acme Corp" and its paths?`, []string{"kgnormal"}, nil, emitter, "")
	require.NoError(t, err)

	assert.Equal(t, RouteHybrid, result.Route)
	require.NotNil(t, result.LPG)
	require.NotNil(t, result.RDF)

	types := stepTypes(emitter.Steps())
	assert.Equal(t, []string{
		tracing.StepResolve, tracing.StepRoute,
		tracing.StepSpecialist, tracing.StepSpecialist,
		tracing.StepAnswer,
	}, types)
}

func TestFlowLabelDistributionFallback(t *testing.T) {
	gw := &fakeGateway{run: func(db, query string, params map[string]any) ([]map[string]any, error) {
		if strings.Contains(query, "labels(n)[0] AS label") {
			return []map[string]any{{"label": "Company", "count": int64(12)}}, nil
		}
		return nil, nil
	}}
	flow := newFlow(gw)
	emitter := tracing.NewEmitter()

	result, err := flow.Run(context.Background(), "how many nodes are in the graph?", []string{"kgnormal"}, nil, emitter, "")
	require.NoError(t, err)
	require.NotNil(t, result.LPG)
	assert.Contains(t, result.LPG.Summary, "label distribution")
	require.Len(t, result.LPG.Records, 1)
	assert.Equal(t, "kgnormal", result.LPG.Records[0]["database"])
}

func TestFlowOverridePinsEntity(t *testing.T) {
	flow := newFlow(flowGateway())
	emitter := tracing.NewEmitter()

	overrides := map[string]Override{
		"Acme Corp": {Database: "kgnormal", NodeID: "4:x:99", DisplayName: "ACME Corporation"},
	}
	result, err := flow.Run(context.Background(), `Count the neighbors of "Acme Corp"`, []string{"kgnormal"}, overrides, emitter, "")
	require.NoError(t, err)

	top := result.Resolution.Matches["Acme Corp"][0]
	assert.Equal(t, SourceOverride, top.Source)
	assert.Equal(t, "4:x:99", top.NodeID)

	resolveStep := emitter.Steps()[0]
	assert.Equal(t, []string{"Acme Corp"}, resolveStep.Metadata["overrides_applied"])
}
