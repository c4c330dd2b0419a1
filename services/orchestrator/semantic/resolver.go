// Copyright (C) 2025 SEOCHO Project
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package semantic implements the deterministic question-understanding
// layer: entity extraction and resolution, the lpg/rdf/hybrid router, and
// the resolve-route-specialist-answer flow.
//
// Everything here is reproducible given the same inputs. The only model
// call is the router's bounded fallback, and it is optional.
package semantic

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/tteon/seocho/services/graph"
)

// DefaultIndexName is the fulltext index the ingestion pipeline maintains.
const DefaultIndexName = "entity_fulltext"

// maxEntities caps extraction output per question.
const maxEntities = 8

// defaultCandidateLimit bounds candidates fetched per (entity, database).
const defaultCandidateLimit = 5

// Rerank weights: lexical similarity, normalized fulltext score, label
// hint bonus.
const (
	weightLexical  = 0.5
	weightFulltext = 0.4
	weightLabel    = 0.1
)

// confidenceGap is the score margin above which the top candidate is
// auto-pinnable without user disambiguation.
const confidenceGap = 0.15

// Candidate sources, in tie-break priority order.
const (
	SourceOverride = "override"
	SourceFulltext = "fulltext"
	SourceContains = "contains"
)

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "of": true, "to": true,
	"in": true, "on": true, "for": true, "and": true, "or": true,
	"do": true, "does": true, "did": true, "what": true, "which": true,
	"who": true, "whom": true, "where": true, "when": true, "why": true,
	"how": true, "tell": true, "show": true, "about": true, "please": true,
}

// entityProperties are the name-like keys probed by the CONTAINS fallback.
var entityProperties = []any{"name", "title", "id", "uri", "code", "symbol", "alias"}

// questionLabelHints maps question vocabulary onto label hint groups.
var questionLabelHints = map[string][]string{
	"company":  {"company", "organization", "org", "enterprise", "firm"},
	"person":   {"person", "human", "individual", "employee", "ceo", "founder"},
	"product":  {"product", "service", "offering"},
	"event":    {"event", "incident", "meeting"},
	"document": {"document", "section", "chunk"},
	"ontology": {"ontology", "class", "property", "concept"},
}

var (
	doubleQuoted = regexp.MustCompile(`"([^"]+)"`)
	singleQuoted = regexp.MustCompile(`'([^']+)'`)
	capitalized  = regexp.MustCompile(`\b(?:[A-Z][a-zA-Z0-9&.-]+|[A-Z]{2,})(?:\s+[A-Z][a-zA-Z0-9&.-]+)*\b`)
	longToken    = regexp.MustCompile(`[A-Za-z0-9][A-Za-z0-9&._-]{2,}`)
	digitsOnly   = regexp.MustCompile(`^[0-9]+$`)
)

// Candidate is one resolved graph node for a question entity.
type Candidate struct {
	Database     string   `json:"database"`
	EntityText   string   `json:"entity_text"`
	NodeID       string   `json:"node_id"`
	Labels       []string `json:"labels"`
	DisplayName  string   `json:"display_name"`
	BaseScore    float64  `json:"base_score"`
	Source       string   `json:"source"`
	IndexName    string   `json:"index_name,omitempty"`
	LexicalScore float64  `json:"lexical_score"`
	LabelBoost   float64  `json:"label_boost"`
	AliasBoost   float64  `json:"alias_boost"`
	FinalScore   float64  `json:"final_score"`
	IsConfident  bool     `json:"is_confident,omitempty"`
}

// Override pins a question entity to a specific node, bypassing resolution.
type Override struct {
	Database    string   `json:"database"`
	NodeID      string   `json:"node_id"`
	DisplayName string   `json:"display_name,omitempty"`
	Labels      []string `json:"labels,omitempty"`
}

// AppliedOverride records one override for trace metadata.
type AppliedOverride struct {
	Database    string `json:"database"`
	NodeID      string `json:"node_id"`
	DisplayName string `json:"display_name"`
}

// Resolution is the full output of entity resolution for one question.
type Resolution struct {
	Entities      []string                   `json:"entities"`
	LabelHints    []string                   `json:"label_hints"`
	AliasResolved map[string]string          `json:"alias_resolved"`
	Matches       map[string][]Candidate     `json:"matches"`
	Unresolved    []string                   `json:"unresolved_entities"`
	Overrides     map[string]AppliedOverride `json:"overrides_applied,omitempty"`
	OntologyHints map[string]any             `json:"ontology_hints,omitempty"`
}

// Resolver resolves question entities against graph entities using
// fulltext search with a CONTAINS fallback, then a deterministic rerank.
type Resolver struct {
	gateway        graph.Gateway
	hints          *HintStore
	indexName      string
	candidateLimit int
	log            *slog.Logger
}

// NewResolver creates a Resolver over the given gateway and hint store.
func NewResolver(gateway graph.Gateway, hints *HintStore, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	if hints == nil {
		hints = NewHintStore("", log)
	}
	return &Resolver{
		gateway:        gateway,
		hints:          hints,
		indexName:      DefaultIndexName,
		candidateLimit: defaultCandidateLimit,
		log:            log,
	}
}

// ExtractEntities extracts candidate entity spans from the question:
// quoted spans first, then capitalized spans, then (only when nothing else
// matched) long bare tokens. Output order is first-occurrence; capped at
// eight entries.
func (r *Resolver) ExtractEntities(question string) []string {
	var spans []string
	for _, m := range doubleQuoted.FindAllStringSubmatch(question, -1) {
		spans = append(spans, m[1])
	}
	for _, m := range singleQuoted.FindAllStringSubmatch(question, -1) {
		spans = append(spans, m[1])
	}
	spans = append(spans, capitalized.FindAllString(question, -1)...)

	var entities []string
	seen := make(map[string]bool)
	for _, span := range spans {
		cleaned := cleanSpan(span)
		if cleaned == "" {
			continue
		}
		key := strings.ToLower(cleaned)
		if seen[key] || stopwords[key] {
			continue
		}
		seen[key] = true
		entities = append(entities, cleaned)
		if len(entities) >= maxEntities {
			return entities
		}
	}

	if len(entities) == 0 {
		for _, token := range longToken.FindAllString(question, -1) {
			key := strings.ToLower(token)
			if stopwords[key] || digitsOnly.MatchString(token) || seen[key] {
				continue
			}
			seen[key] = true
			entities = append(entities, token)
			if len(entities) >= 3 {
				break
			}
		}
	}
	return entities
}

// Resolve extracts and resolves entities for a question across databases,
// applying overrides last so they land at rank 0.
func (r *Resolver) Resolve(ctx context.Context, question string, databases []string, overrides map[string]Override) (*Resolution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entities := r.ExtractEntities(question)
	labelHints := inferQuestionLabelHints(question)
	for hint := range r.hints.InferLabelHints(question) {
		labelHints[hint] = true
	}
	indexes := r.discoverIndexes(ctx, databases)

	res := &Resolution{
		Entities:      entities,
		LabelHints:    sortedKeys(labelHints),
		AliasResolved: make(map[string]string, len(entities)),
		Matches:       make(map[string][]Candidate),
		Unresolved:    []string{},
		OntologyHints: r.hints.Summary(),
	}

	for _, entity := range entities {
		resolved := r.hints.ResolveAlias(entity)
		res.AliasResolved[entity] = resolved

		var candidates []Candidate
		for _, db := range databases {
			dbCandidates := r.fulltextCandidates(ctx, db, resolved, indexes[db])
			if len(dbCandidates) == 0 {
				dbCandidates = r.containsCandidates(ctx, db, resolved)
			}
			candidates = append(candidates, dbCandidates...)
		}

		ranked := rankAndDedup(entity, resolved, candidates, labelHints, r.candidateLimit)
		if len(ranked) > 0 {
			res.Matches[entity] = ranked
		} else {
			res.Unresolved = append(res.Unresolved, entity)
		}
	}

	applyOverrides(res, overrides)
	return res, nil
}

// discoverIndexes lists online fulltext indexes per database, always
// trying the configured index name first.
func (r *Resolver) discoverIndexes(ctx context.Context, databases []string) map[string][]string {
	queries := []string{
		"SHOW FULLTEXT INDEXES YIELD name, state WHERE state = 'ONLINE' RETURN name",
		"SHOW INDEXES YIELD name, type, state WHERE type = 'FULLTEXT' AND state = 'ONLINE' RETURN name",
	}
	byDB := make(map[string][]string, len(databases))
	for _, db := range databases {
		var indexes []string
		for _, query := range queries {
			rows, err := r.gateway.RunCypher(ctx, db, query, nil)
			if err != nil || len(rows) == 0 {
				continue
			}
			for _, row := range rows {
				if name, ok := row["name"].(string); ok && name != "" {
					indexes = append(indexes, name)
				}
			}
			if len(indexes) > 0 {
				break
			}
		}
		if r.indexName != "" && !contains(indexes, r.indexName) {
			indexes = append([]string{r.indexName}, indexes...)
		}
		byDB[db] = indexes
	}
	return byDB
}

const fulltextCandidateQuery = `
CALL db.index.fulltext.queryNodes($index_name, $query)
YIELD node, score
RETURN elementId(node) AS node_id,
       labels(node) AS labels,
       coalesce(node.name, node.title, node.id, node.uri, elementId(node)) AS display_name,
       score
ORDER BY score DESC
LIMIT $limit`

func (r *Resolver) fulltextCandidates(ctx context.Context, db, entityText string, indexes []string) []Candidate {
	for _, indexName := range indexes {
		rows, err := r.gateway.RunCypher(ctx, db, fulltextCandidateQuery, map[string]any{
			"index_name": indexName,
			"query":      entityText,
			"limit":      r.candidateLimit,
		})
		if err != nil {
			r.log.Debug("fulltext lookup failed", "database", db, "index", indexName, "error", err)
			continue
		}
		if len(rows) == 0 {
			continue
		}
		candidates := make([]Candidate, 0, len(rows))
		for _, row := range rows {
			candidates = append(candidates, Candidate{
				Database:    db,
				EntityText:  entityText,
				NodeID:      stringValue(row["node_id"]),
				Labels:      stringList(row["labels"]),
				DisplayName: stringValue(row["display_name"]),
				BaseScore:   floatValue(row["score"]),
				Source:      SourceFulltext,
				IndexName:   indexName,
			})
		}
		if len(candidates) > 0 {
			return candidates
		}
	}
	return nil
}

const containsCandidateQuery = `
MATCH (n)
WHERE any(key IN $properties
      WHERE n[key] IS NOT NULL
        AND toLower(toString(n[key])) CONTAINS toLower($query))
RETURN elementId(n) AS node_id,
       labels(n) AS labels,
       coalesce(n.name, n.title, n.id, n.uri, elementId(n)) AS display_name
LIMIT $limit`

func (r *Resolver) containsCandidates(ctx context.Context, db, entityText string) []Candidate {
	rows, err := r.gateway.RunCypher(ctx, db, containsCandidateQuery, map[string]any{
		"properties": entityProperties,
		"query":      entityText,
		"limit":      r.candidateLimit,
	})
	if err != nil {
		r.log.Debug("contains lookup failed", "database", db, "error", err)
		return nil
	}
	candidates := make([]Candidate, 0, len(rows))
	for _, row := range rows {
		display := stringValue(row["display_name"])
		candidates = append(candidates, Candidate{
			Database:    db,
			EntityText:  entityText,
			NodeID:      stringValue(row["node_id"]),
			Labels:      stringList(row["labels"]),
			DisplayName: display,
			BaseScore:   LexicalSim(NormalizeAlias(entityText), NormalizeAlias(display)),
			Source:      SourceContains,
		})
	}
	return candidates
}

// sourceRank orders tie-broken candidates: override > fulltext > contains.
func sourceRank(source string) int {
	switch source {
	case SourceOverride:
		return 0
	case SourceFulltext:
		return 1
	default:
		return 2
	}
}

// rankAndDedup scores candidates with the fixed weights, deduplicates
// across databases by (display_name, labels) keeping the best score, and
// sets the confidence flag on the winner.
func rankAndDedup(entityText, resolvedText string, candidates []Candidate, labelHints map[string]bool, limit int) []Candidate {
	if len(candidates) == 0 {
		return nil
	}

	normalizedEntity := NormalizeAlias(entityText)
	normalizedResolved := NormalizeAlias(resolvedText)

	maxBase := 0.0
	for _, c := range candidates {
		if c.Source == SourceFulltext && c.BaseScore > maxBase {
			maxBase = c.BaseScore
		}
	}

	scored := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		normalizedDisplay := NormalizeAlias(c.DisplayName)
		c.LexicalScore = round4(LexicalSim(normalizedEntity, normalizedDisplay))
		c.LabelBoost = round4(labelBonus(c.Labels, labelHints))
		if normalizedResolved != normalizedEntity && normalizedResolved == normalizedDisplay {
			c.AliasBoost = 0.12
		}

		// Fulltext scores are unbounded; normalize within this entity's
		// candidate pool. CONTAINS base scores are already lexical [0,1].
		norm := c.BaseScore
		if c.Source == SourceFulltext && maxBase > 0 {
			norm = c.BaseScore / maxBase
		}
		c.FinalScore = round4(weightLexical*c.LexicalScore + weightFulltext*norm + weightLabel*c.LabelBoost + c.AliasBoost)
		scored = append(scored, c)
	}

	// Cross-database dedup: identical (display_name, labels) keeps the
	// highest-scored occurrence.
	best := make(map[string]int)
	deduped := make([]Candidate, 0, len(scored))
	for _, c := range scored {
		key := NormalizeAlias(c.DisplayName) + "\x00" + strings.Join(c.Labels, ",")
		if idx, ok := best[key]; ok {
			if c.FinalScore > deduped[idx].FinalScore {
				deduped[idx] = c
			}
			continue
		}
		best[key] = len(deduped)
		deduped = append(deduped, c)
	}

	sort.SliceStable(deduped, func(i, j int) bool {
		if deduped[i].FinalScore != deduped[j].FinalScore {
			return deduped[i].FinalScore > deduped[j].FinalScore
		}
		if sourceRank(deduped[i].Source) != sourceRank(deduped[j].Source) {
			return sourceRank(deduped[i].Source) < sourceRank(deduped[j].Source)
		}
		return deduped[i].DisplayName < deduped[j].DisplayName
	})

	if len(deduped) > limit {
		deduped = deduped[:limit]
	}
	if len(deduped) > 0 {
		if len(deduped) == 1 {
			deduped[0].IsConfident = true
		} else {
			deduped[0].IsConfident = deduped[0].FinalScore-deduped[1].FinalScore >= confidenceGap
		}
	}
	return deduped
}

// Rank rescores and deduplicates an externally supplied candidate list
// with the resolver's weights. Used by the rerank_candidates agent tool.
func Rank(entityText string, candidates []Candidate, labelHints []string, limit int) []Candidate {
	if limit <= 0 {
		limit = defaultCandidateLimit
	}
	hints := make(map[string]bool, len(labelHints))
	for _, hint := range labelHints {
		if t := normalizeToken(hint); t != "" {
			hints[t] = true
		}
	}
	return rankAndDedup(entityText, entityText, candidates, hints, limit)
}

// applyOverrides pins each override at rank 0 with a dominating score.
func applyOverrides(res *Resolution, overrides map[string]Override) {
	if len(overrides) == 0 {
		return
	}
	applied := make(map[string]AppliedOverride)

	for questionEntity, override := range overrides {
		if questionEntity == "" || override.Database == "" || override.NodeID == "" {
			continue
		}
		display := override.DisplayName
		if display == "" {
			display = questionEntity
		}
		pinned := Candidate{
			Database:     override.Database,
			EntityText:   questionEntity,
			NodeID:       override.NodeID,
			Labels:       override.Labels,
			DisplayName:  display,
			BaseScore:    1.0,
			Source:       SourceOverride,
			LexicalScore: 1.0,
			FinalScore:   10.0,
			IsConfident:  true,
		}

		kept := make([]Candidate, 0, len(res.Matches[questionEntity])+1)
		kept = append(kept, pinned)
		for _, c := range res.Matches[questionEntity] {
			if c.Database == pinned.Database && c.NodeID == pinned.NodeID {
				continue
			}
			kept = append(kept, c)
		}
		res.Matches[questionEntity] = kept
		res.Unresolved = removeString(res.Unresolved, questionEntity)
		applied[questionEntity] = AppliedOverride{
			Database:    pinned.Database,
			NodeID:      pinned.NodeID,
			DisplayName: pinned.DisplayName,
		}
	}
	if len(applied) > 0 {
		res.Overrides = applied
	}
}

// ====== Helpers ======

func cleanSpan(value string) string {
	cleaned := strings.Join(strings.Fields(value), " ")
	return strings.Trim(cleaned, ".,:;!?()[]{}")
}

func inferQuestionLabelHints(question string) map[string]bool {
	q := strings.ToLower(question)
	hints := make(map[string]bool)
	for _, tokens := range questionLabelHints {
		matched := false
		for _, token := range tokens {
			if strings.Contains(q, token) {
				matched = true
				break
			}
		}
		if matched {
			for _, token := range tokens {
				hints[normalizeToken(token)] = true
			}
		}
	}
	return hints
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func contains(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}

func removeString(items []string, target string) []string {
	kept := items[:0]
	for _, item := range items {
		if item != target {
			kept = append(kept, item)
		}
	}
	return kept
}

func stringValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func floatValue(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	}
	return 0.0
}

func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}
