// Copyright (C) 2025 SEOCHO Project
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package semantic

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/tteon/seocho/services/graph"
	"github.com/tteon/seocho/services/llm"
	"github.com/tteon/seocho/services/orchestrator/tracing"
)

// defaultResultLimit bounds specialist record output per query.
const defaultResultLimit = 20

// SpecialistResult is the structured output of one specialist pass.
type SpecialistResult struct {
	Mode    string           `json:"mode"`
	Summary string           `json:"summary"`
	Records []map[string]any `json:"records"`
}

// FlowResult is the complete output of one semantic flow run.
type FlowResult struct {
	Answer     string            `json:"answer"`
	Route      Route             `json:"route"`
	Resolution *Resolution       `json:"resolution"`
	LPG        *SpecialistResult `json:"lpg_result,omitempty"`
	RDF        *SpecialistResult `json:"rdf_result,omitempty"`
}

// Flow runs the resolve-route-specialist-answer pipeline.
//
// Specialists issue read-only Cypher through the gateway; the hybrid route
// runs both specialists sequentially and lets answer generation reconcile.
type Flow struct {
	resolver    *Resolver
	router      *Router
	gateway     graph.Gateway
	client      llm.LLMClient
	resultLimit int
	log         *slog.Logger
}

// NewFlow assembles the pipeline. client may be nil; answer generation
// then uses the deterministic composer only.
func NewFlow(gateway graph.Gateway, resolver *Resolver, router *Router, client llm.LLMClient, log *slog.Logger) *Flow {
	if log == nil {
		log = slog.Default()
	}
	return &Flow{
		resolver:    resolver,
		router:      router,
		gateway:     gateway,
		client:      client,
		resultLimit: defaultResultLimit,
		log:         log,
	}
}

// Run executes the pipeline for one question, emitting the
// RESOLVE, ROUTE, SPECIALIST, ANSWER step chain into emitter. An empty
// parentID makes RESOLVE the trace root; a non-empty one links the chain
// under an already-emitted step, keeping one root per request.
func (f *Flow) Run(ctx context.Context, question string, databases []string, overrides map[string]Override, emitter *tracing.Emitter, parentID string) (*FlowResult, error) {
	ctx, span := tracing.StartSpan(ctx, "semantic.flow")
	defer span.End()

	resolution, err := f.resolver.Resolve(ctx, question, databases, overrides)
	if err != nil {
		return nil, fmt.Errorf("semantic: resolve: %w", err)
	}

	overridesApplied := make([]string, 0, len(resolution.Overrides))
	for entity := range resolution.Overrides {
		overridesApplied = append(overridesApplied, entity)
	}
	sort.Strings(overridesApplied)

	resolveStep, err := emitter.Emit(tracing.Step{
		Type:    tracing.StepResolve,
		Agent:   "SemanticLayer",
		Content: "Entity extraction and disambiguation completed.",
		Metadata: map[string]any{
			"entities":            resolution.Entities,
			"unresolved_entities": resolution.Unresolved,
			"overrides_applied":   overridesApplied,
		},
		ParentID: parentID,
	})
	if err != nil {
		return nil, err
	}

	route := f.router.Route(ctx, question)
	routeStep, err := emitter.Emit(tracing.Step{
		Type:     tracing.StepRoute,
		Agent:    "RouterAgent",
		Content:  fmt.Sprintf("Question routed to %s.", route),
		Metadata: map[string]any{"route": string(route)},
		ParentID: resolveStep.NodeID,
	})
	if err != nil {
		return nil, err
	}

	result := &FlowResult{Route: route, Resolution: resolution}
	parent := routeStep.NodeID

	if route == RouteLPG || route == RouteHybrid {
		result.LPG = f.runLPG(ctx, databases, resolution)
		step, err := emitter.Emit(tracing.Step{
			Type:     tracing.StepSpecialist,
			Agent:    "LPGAgent",
			Content:  result.LPG.Summary,
			Metadata: map[string]any{"records": len(result.LPG.Records)},
			ParentID: parent,
		})
		if err != nil {
			return nil, err
		}
		parent = step.NodeID
	}

	if route == RouteRDF || route == RouteHybrid {
		result.RDF = f.runRDF(ctx, databases, resolution)
		step, err := emitter.Emit(tracing.Step{
			Type:     tracing.StepSpecialist,
			Agent:    "RDFAgent",
			Content:  result.RDF.Summary,
			Metadata: map[string]any{"records": len(result.RDF.Records)},
			ParentID: parent,
		})
		if err != nil {
			return nil, err
		}
		parent = step.NodeID
	}

	result.Answer = f.composeAnswer(ctx, question, result)
	if _, err := emitter.Emit(tracing.Step{
		Type:     tracing.StepAnswer,
		Agent:    "AnswerGenerationAgent",
		Content:  result.Answer,
		ParentID: parent,
	}); err != nil {
		return nil, err
	}
	return result, nil
}

// ====== LPG Specialist ======

const neighborQuery = `
MATCH (n)
WHERE elementId(n) = toString($node_id)
OPTIONAL MATCH (n)-[r]-(m)
RETURN coalesce(n.name, n.title, n.id, n.uri, elementId(n)) AS entity,
       labels(n) AS labels,
       collect(
         DISTINCT {
           type: type(r),
           target: coalesce(m.name, m.title, m.id, m.uri, elementId(m)),
           target_labels: labels(m)
         }
       )[0..$limit] AS neighbors
LIMIT 1`

const labelDistributionQuery = `
MATCH (n)
RETURN labels(n)[0] AS label, count(*) AS count
ORDER BY count DESC
LIMIT 10`

// runLPG expands pinned node neighborhoods; with no resolved entity it
// reports the label distribution instead.
func (f *Flow) runLPG(ctx context.Context, databases []string, resolution *Resolution) *SpecialistResult {
	top := topMatches(resolution, 3)
	if len(top) == 0 {
		return &SpecialistResult{
			Mode:    "lpg",
			Summary: "No resolved entity. Returned graph label distribution.",
			Records: f.collectAcross(ctx, databases, labelDistributionQuery, nil),
		}
	}

	var records []map[string]any
	for _, match := range top {
		rows, err := f.gateway.RunCypher(ctx, match.Database, neighborQuery, map[string]any{
			"node_id": match.NodeID,
			"limit":   f.resultLimit,
		})
		if err != nil {
			f.log.Debug("neighborhood lookup failed", "database", match.Database, "error", err)
			continue
		}
		for _, row := range rows {
			records = append(records, map[string]any{
				"database":  match.Database,
				"entity":    row["entity"],
				"labels":    row["labels"],
				"neighbors": row["neighbors"],
			})
		}
	}
	return &SpecialistResult{
		Mode:    "lpg",
		Summary: "Resolved entities were expanded through LPG neighborhoods.",
		Records: records,
	}
}

// ====== RDF Specialist ======

const resourceMatchQuery = `
MATCH (n)
WHERE (
    any(lbl IN labels(n) WHERE toLower(lbl) IN ['resource', 'class', 'ontology', 'individual'])
    OR n.uri IS NOT NULL
)
  AND any(key IN ['uri', 'name', 'title', 'id']
      WHERE n[key] IS NOT NULL
        AND toLower(toString(n[key])) CONTAINS toLower($query))
RETURN labels(n) AS labels,
       coalesce(n.uri, n.name, n.title, n.id, elementId(n)) AS resource,
       n.name AS name
LIMIT $limit`

const rdfOverviewQuery = `
MATCH (n)
WHERE any(lbl IN labels(n) WHERE toLower(lbl) IN ['resource', 'class', 'ontology', 'individual'])
   OR n.uri IS NOT NULL
RETURN labels(n)[0] AS label, count(*) AS count
ORDER BY count DESC
LIMIT 10`

// runRDF walks resource and class patterns; with no entity match it
// reports an overview of RDF-like labels.
func (f *Flow) runRDF(ctx context.Context, databases []string, resolution *Resolution) *SpecialistResult {
	if len(resolution.Entities) > 0 {
		rows := f.collectAcross(ctx, databases, resourceMatchQuery, map[string]any{
			"query": resolution.Entities[0],
			"limit": f.resultLimit,
		})
		if len(rows) > 0 {
			return &SpecialistResult{
				Mode:    "rdf",
				Summary: "Matched RDF-like resources using URI/name signals.",
				Records: rows,
			}
		}
	}
	return &SpecialistResult{
		Mode:    "rdf",
		Summary: "No RDF resource match found. Returned RDF label overview.",
		Records: f.collectAcross(ctx, databases, rdfOverviewQuery, nil),
	}
}

// collectAcross runs one query on every database, tagging each row with
// its database. Per-database failures are skipped.
func (f *Flow) collectAcross(ctx context.Context, databases []string, query string, params map[string]any) []map[string]any {
	var records []map[string]any
	for _, db := range databases {
		rows, err := f.gateway.RunCypher(ctx, db, query, params)
		if err != nil {
			f.log.Debug("specialist query failed", "database", db, "error", err)
			continue
		}
		for _, row := range rows {
			record := map[string]any{"database": db}
			for k, v := range row {
				record[k] = v
			}
			records = append(records, record)
		}
	}
	return records
}

// topMatches returns the best candidate per question entity, strongest
// first, capped at limit.
func topMatches(resolution *Resolution, limit int) []Candidate {
	var best []Candidate
	for _, candidates := range resolution.Matches {
		if len(candidates) > 0 {
			best = append(best, candidates[0])
		}
	}
	sort.SliceStable(best, func(i, j int) bool {
		if best[i].FinalScore != best[j].FinalScore {
			return best[i].FinalScore > best[j].FinalScore
		}
		return best[i].DisplayName < best[j].DisplayName
	})
	if len(best) > limit {
		best = best[:limit]
	}
	return best
}

// ====== Answer Generation ======

// composeAnswer builds the deterministic answer lines; when a model client
// is present, one bounded call rewrites them into prose, falling back to
// the deterministic text on failure.
func (f *Flow) composeAnswer(ctx context.Context, question string, result *FlowResult) string {
	lines := []string{fmt.Sprintf("Route selected: %s.", strings.ToUpper(string(result.Route)))}
	if len(result.Resolution.Entities) > 0 {
		lines = append(lines, fmt.Sprintf("Extracted entities: %s.", strings.Join(result.Resolution.Entities, ", ")))
	}
	if len(result.Resolution.Unresolved) > 0 {
		lines = append(lines, fmt.Sprintf("Unresolved entities: %s.", strings.Join(result.Resolution.Unresolved, ", ")))
	}

	hasRecords := false
	if result.LPG != nil && len(result.LPG.Records) > 0 {
		lines = append(lines, fmt.Sprintf("LPG records: %d.", len(result.LPG.Records)))
		hasRecords = true
	}
	if result.RDF != nil && len(result.RDF.Records) > 0 {
		lines = append(lines, fmt.Sprintf("RDF records: %d.", len(result.RDF.Records)))
		hasRecords = true
	}
	if !hasRecords {
		lines = append(lines, "No matching graph records were found for this question.")
	}
	deterministic := strings.Join(lines, " ")

	if f.client == nil || !hasRecords {
		return deterministic
	}
	prompt := fmt.Sprintf(
		"Question: %s\n\nGraph findings:\n%s\n\nCompose a short factual answer to the question from these findings only.",
		question, specialistDigest(result),
	)
	answer, err := f.client.Generate(ctx, prompt, llm.GenerationParams{})
	if err != nil || strings.TrimSpace(answer) == "" {
		f.log.Debug("answer generation model call failed", "error", err)
		return deterministic
	}
	return answer
}

// specialistDigest renders specialist records compactly for the answer
// prompt.
func specialistDigest(result *FlowResult) string {
	var b strings.Builder
	write := func(r *SpecialistResult) {
		if r == nil {
			return
		}
		fmt.Fprintf(&b, "[%s] %s\n", r.Mode, r.Summary)
		limit := len(r.Records)
		if limit > 10 {
			limit = 10
		}
		for _, record := range r.Records[:limit] {
			fmt.Fprintf(&b, "  %v\n", record)
		}
	}
	write(result.LPG)
	write(result.RDF)
	return b.String()
}
