// Copyright (C) 2025 SEOCHO Project
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package semantic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tteon/seocho/services/llm"
)

// staticClient answers every Generate call with the same text.
type staticClient struct {
	answer string
	calls  int
}

func (c *staticClient) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	c.calls++
	return c.answer, nil
}

func (c *staticClient) Chat(ctx context.Context, messages []llm.Message, tools []llm.ToolSchema, params llm.GenerationParams) (*llm.ChatResult, error) {
	c.calls++
	return &llm.ChatResult{Content: c.answer}, nil
}

func TestRouteKeywordCascade(t *testing.T) {
	r := NewRouter(nil, nil)
	ctx := context.Background()

	tests := []struct {
		question string
		want     Route
	}{
		{"What is the ontology class hierarchy for bonds?", RouteRDF},
		{"Show the SPARQL triple definitions", RouteRDF},
		{"How many nodes are connected to Acme?", RouteLPG},
		{"Find the shortest path between two entities in the graph", RouteLPG},
		{"Compare the ontology with the node structure", RouteHybrid},
		{"Which class does this node belong to?", RouteHybrid},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, r.Route(ctx, tt.question), "question: %s", tt.question)
	}
}

func TestRouteIdempotent(t *testing.T) {
	r := NewRouter(nil, nil)
	ctx := context.Background()
	a := r.Route(ctx, "How many   nodes exist?")
	b := r.Route(ctx, "how many nodes EXIST?")
	assert.Equal(t, a, b)
}

func TestRouteFallbackDefaultsToLPG(t *testing.T) {
	r := NewRouter(nil, nil)
	assert.Equal(t, RouteLPG, r.Route(context.Background(), "Who founded Acme?"))
}

func TestRouteModelFallbackSingleCall(t *testing.T) {
	client := &staticClient{answer: "rdf"}
	r := NewRouter(client, nil)

	got := r.Route(context.Background(), "Who founded Acme?")
	assert.Equal(t, RouteRDF, got)
	assert.Equal(t, 1, client.calls)
}

func TestRouteModelFallbackUnparsableAnswer(t *testing.T) {
	client := &staticClient{answer: "definitely an essay"}
	r := NewRouter(client, nil)
	assert.Equal(t, RouteLPG, r.Route(context.Background(), "Who founded Acme?"))
}
