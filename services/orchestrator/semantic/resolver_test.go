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

	"github.com/tteon/seocho/services/graph"
)

// fakeGateway routes queries to a callback.
type fakeGateway struct {
	run func(db, query string, params map[string]any) ([]map[string]any, error)
}

func (g *fakeGateway) RunCypher(ctx context.Context, db, query string, params map[string]any) ([]map[string]any, error) {
	if g.run == nil {
		return nil, nil
	}
	return g.run(db, query, params)
}

func (g *fakeGateway) GetSchemaSnapshot(ctx context.Context, db string) (graph.Schema, error) {
	return graph.Schema{Database: db}, nil
}

func (g *fakeGateway) EnsureFulltextIndex(ctx context.Context, db, indexName string, labels, properties []string, createIfMissing bool) (graph.EnsureResult, error) {
	return graph.EnsureResult{Database: db, IndexName: indexName}, nil
}

func (g *fakeGateway) FulltextSearch(ctx context.Context, db, indexName, terms string, limit int) ([]graph.CandidateHit, error) {
	return nil, nil
}

func TestExtractEntities(t *testing.T) {
	r := NewResolver(&fakeGateway{}, nil, nil)

	tests := []struct {
		name     string
		question string
		want     []string
	}{
		{
			name:     "quoted span wins",
			question: `What does "Acme Corp" sell?`,
			want:     []string{"Acme Corp"},
		},
		{
			name:     "capitalized spans",
			question: "Is Acme Corp related to Globex?",
			want:     []string{"Acme Corp", "Globex"},
		},
		{
			name:     "stopwords skipped",
			question: "What is the Revenue of Acme?",
			want:     []string{"Revenue", "Acme"},
		},
		{
			name:     "long token fallback",
			question: "who supplies widget-9000 parts?",
			want:     []string{"supplies", "widget-9000", "parts"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.ExtractEntities(tt.question))
		})
	}
}

func TestExtractEntitiesCap(t *testing.T) {
	r := NewResolver(&fakeGateway{}, nil, nil)
	question := "Alpha Beta, Gamma Delta, Epsilon Zeta, Etaone Thetaone, Iotaone Kappa, Lambda Munum, Nunum Xinum, Omicron Pinum, Rhonum Sigma, Taunum Upsilon"
	entities := r.ExtractEntities(question)
	assert.LessOrEqual(t, len(entities), 8)
}

func TestRankAndDedup(t *testing.T) {
	candidates := []Candidate{
		{Database: "kgnormal", NodeID: "1", DisplayName: "Acme Corp", Labels: []string{"Company"}, BaseScore: 2.0, Source: SourceFulltext},
		{Database: "kgfibo", NodeID: "2", DisplayName: "Acme Corp", Labels: []string{"Company"}, BaseScore: 1.0, Source: SourceFulltext},
		{Database: "kgnormal", NodeID: "3", DisplayName: "Acme Holdings", Labels: []string{"Company"}, BaseScore: 0.4, Source: SourceContains},
	}
	ranked := rankAndDedup("Acme Corp", "Acme Corp", candidates, map[string]bool{"company": true}, 5)

	// The two identical (display_name, labels) rows collapse to the
	// stronger one.
	require.Len(t, ranked, 2)
	assert.Equal(t, "Acme Corp", ranked[0].DisplayName)
	assert.Equal(t, "kgnormal", ranked[0].Database)
	assert.Equal(t, "1", ranked[0].NodeID)
	assert.Greater(t, ranked[0].FinalScore, ranked[1].FinalScore)
	assert.Equal(t, 1.0, ranked[0].LexicalScore)
	assert.Equal(t, 1.0, ranked[0].LabelBoost)
	assert.True(t, ranked[0].IsConfident)
}

func TestRankAndDedupTieBreak(t *testing.T) {
	// Same display name, different labels: two entries survive dedup.
	// With equal scores, fulltext outranks contains.
	candidates := []Candidate{
		{Database: "a", NodeID: "1", DisplayName: "Acme", Labels: []string{"X"}, BaseScore: 1.0, Source: SourceContains},
		{Database: "b", NodeID: "2", DisplayName: "Acme", Labels: []string{"Y"}, BaseScore: 1.0, Source: SourceFulltext},
	}
	ranked := rankAndDedup("Acme", "Acme", candidates, nil, 5)
	require.Len(t, ranked, 2)
	assert.Equal(t, SourceFulltext, ranked[0].Source)
}

func TestRankAndDedupSingleCandidateConfident(t *testing.T) {
	candidates := []Candidate{
		{Database: "a", NodeID: "1", DisplayName: "Acme", BaseScore: 1.0, Source: SourceFulltext},
	}
	ranked := rankAndDedup("Acme", "Acme", candidates, nil, 5)
	require.Len(t, ranked, 1)
	assert.True(t, ranked[0].IsConfident)
}

func TestApplyOverrides(t *testing.T) {
	res := &Resolution{
		Matches: map[string][]Candidate{
			"Acme": {
				{Database: "kgnormal", NodeID: "9", DisplayName: "Acme Inc", FinalScore: 0.8, Source: SourceFulltext},
			},
		},
		Unresolved: []string{"Globex"},
	}
	applyOverrides(res, map[string]Override{
		"Acme":   {Database: "kgfibo", NodeID: "42", DisplayName: "ACME Corporation"},
		"Globex": {Database: "kgnormal", NodeID: "7"},
	})

	acme := res.Matches["Acme"]
	require.NotEmpty(t, acme)
	assert.Equal(t, SourceOverride, acme[0].Source)
	assert.Equal(t, 10.0, acme[0].FinalScore)
	assert.True(t, acme[0].IsConfident)
	assert.Equal(t, "42", acme[0].NodeID)
	assert.Len(t, acme, 2, "prior candidates retained below the override")

	globex := res.Matches["Globex"]
	require.Len(t, globex, 1)
	assert.Equal(t, "Globex", globex[0].DisplayName, "display name defaults to the question entity")
	assert.Empty(t, res.Unresolved)
	assert.Contains(t, res.Overrides, "Acme")
}

func TestResolveFulltextPath(t *testing.T) {
	gw := &fakeGateway{run: func(db, query string, params map[string]any) ([]map[string]any, error) {
		switch {
		case strings.Contains(query, "SHOW FULLTEXT INDEXES"):
			return []map[string]any{{"name": "entity_fulltext"}}, nil
		case strings.Contains(query, "db.index.fulltext.queryNodes"):
			return []map[string]any{
				{"node_id": "4:abc:1", "labels": []any{"Company"}, "display_name": "Acme Corp", "score": 3.2},
			}, nil
		}
		return nil, nil
	}}
	r := NewResolver(gw, nil, nil)

	res, err := r.Resolve(context.Background(), `Tell me about "Acme Corp"`, []string{"kgnormal"}, nil)
	require.NoError(t, err)
	require.Contains(t, res.Matches, "Acme Corp")
	top := res.Matches["Acme Corp"][0]
	assert.Equal(t, SourceFulltext, top.Source)
	assert.Equal(t, "entity_fulltext", top.IndexName)
	assert.Equal(t, "4:abc:1", top.NodeID)
	assert.Empty(t, res.Unresolved)
}

func TestResolveContainsFallback(t *testing.T) {
	gw := &fakeGateway{run: func(db, query string, params map[string]any) ([]map[string]any, error) {
		if strings.Contains(query, "CONTAINS") {
			return []map[string]any{
				{"node_id": "4:abc:2", "labels": []any{"Company"}, "display_name": "Acme Corp"},
			}, nil
		}
		return nil, nil
	}}
	r := NewResolver(gw, nil, nil)

	res, err := r.Resolve(context.Background(), `Who owns "Acme Corp"?`, []string{"kgnormal"}, nil)
	require.NoError(t, err)
	require.Contains(t, res.Matches, "Acme Corp")
	assert.Equal(t, SourceContains, res.Matches["Acme Corp"][0].Source)
}

func TestResolveUnresolved(t *testing.T) {
	r := NewResolver(&fakeGateway{}, nil, nil)
	res, err := r.Resolve(context.Background(), `Tell me about "Unknown Thing"`, []string{"kgnormal"}, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Matches)
	assert.Equal(t, []string{"Unknown Thing"}, res.Unresolved)
}
