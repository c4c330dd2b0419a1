// Copyright (C) 2025 SEOCHO Project
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package semantic

import (
	"context"
	"log/slog"
	"strings"

	"github.com/tteon/seocho/services/llm"
)

// Route is the query path chosen for a question.
type Route string

const (
	RouteLPG    Route = "lpg"
	RouteRDF    Route = "rdf"
	RouteHybrid Route = "hybrid"
)

// rdfHints signal ontology-shaped questions.
var rdfHints = []string{
	"rdf", "rdfs", "owl", "shacl", "sparql", "triple",
	"ontology", "uri", "class", "instance",
	"is-a", "hierarchy", "definition", "subclass",
}

// lpgHints signal entity/neighborhood-shaped questions.
var lpgHints = []string{
	"cypher", "node", "edge", "path", "neighbor",
	"graph", "community", "relationship",
	"count", "how many", "connected",
}

// routeMargin: when the two hint scores are closer than this fraction of
// the stronger score, the question is ambiguous and both paths run.
const routeMargin = 0.2

// Router deterministically classifies a question as lpg, rdf, or hybrid.
//
// The keyword cascade decides almost every question; an optional model
// fallback (bounded to a single call) handles questions with no hint at
// all. Without a client the fallback is the lpg default, matching the
// graph-first bias of the corpus.
type Router struct {
	client llm.LLMClient
	log    *slog.Logger
}

// NewRouter creates a Router. client may be nil to disable the model
// fallback.
func NewRouter(client llm.LLMClient, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{client: client, log: log}
}

// Route classifies the question. Idempotent modulo whitespace and case.
func (r *Router) Route(ctx context.Context, question string) Route {
	q := " " + strings.Join(strings.Fields(strings.ToLower(question)), " ") + " "

	rdfScore := hintScore(q, rdfHints)
	lpgScore := hintScore(q, lpgHints)

	switch {
	case rdfScore > 0 && lpgScore > 0:
		stronger := rdfScore
		if lpgScore > stronger {
			stronger = lpgScore
		}
		diff := rdfScore - lpgScore
		if diff < 0 {
			diff = -diff
		}
		if float64(diff) < routeMargin*float64(stronger) {
			return RouteHybrid
		}
		if rdfScore > lpgScore {
			return RouteRDF
		}
		return RouteLPG
	case rdfScore > 0:
		return RouteRDF
	case lpgScore > 0:
		return RouteLPG
	}

	return r.fallback(ctx, question)
}

// fallback asks the model once when no keyword matched.
func (r *Router) fallback(ctx context.Context, question string) Route {
	if r.client == nil {
		return RouteLPG
	}
	prompt := "Classify this graph question as exactly one of: lpg, rdf, hybrid.\n" +
		"lpg = specific entities, counts, attributes, neighborhoods.\n" +
		"rdf = type hierarchies, definitions, ontology classes, is-a relations.\n" +
		"hybrid = needs both.\n" +
		"Answer with the single word only.\n\nQuestion: " + question
	maxTokens := 4
	answer, err := r.client.Generate(ctx, prompt, llm.GenerationParams{MaxTokens: &maxTokens})
	if err != nil {
		r.log.Debug("router model fallback failed", "error", err)
		return RouteLPG
	}
	switch Route(strings.TrimSpace(strings.ToLower(answer))) {
	case RouteRDF:
		return RouteRDF
	case RouteHybrid:
		return RouteHybrid
	}
	return RouteLPG
}

func hintScore(question string, hints []string) int {
	score := 0
	for _, hint := range hints {
		if strings.Contains(question, hint) {
			score++
		}
	}
	return score
}
