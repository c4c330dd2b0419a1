// Copyright (C) 2025 SEOCHO Project
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/tteon/seocho/pkg/validation"
)

// fulltextSearchQuery resolves candidate nodes through the fulltext index.
// Display name falls back through the common name-like properties.
const fulltextSearchQuery = `
CALL db.index.fulltext.queryNodes($index_name, $query)
YIELD node, score
RETURN elementId(node) AS node_id,
       labels(node) AS labels,
       coalesce(node.name, node.title, node.id, node.uri, elementId(node)) AS display_name,
       properties(node) AS props,
       score
ORDER BY score DESC
LIMIT $limit
`

// FulltextSearch queries the named fulltext index on one database.
func (g *Neo4jGateway) FulltextSearch(ctx context.Context, database, indexName, terms string, limit int) ([]CandidateHit, error) {
	if err := validation.ValidateLabel(indexName); err != nil {
		return nil, &Error{Kind: KindForbidden, Database: database, Err: err}
	}
	if limit <= 0 {
		limit = 5
	}
	rows, err := g.RunCypher(ctx, database, fulltextSearchQuery, map[string]any{
		"index_name": indexName,
		"query":      terms,
		"limit":      limit,
	})
	if err != nil {
		return nil, err
	}
	return hitsFromRows(rows), nil
}

func hitsFromRows(rows []map[string]any) []CandidateHit {
	hits := make([]CandidateHit, 0, len(rows))
	for _, row := range rows {
		hit := CandidateHit{}
		if v, ok := row["node_id"].(string); ok {
			hit.NodeID = v
		}
		if v, ok := row["display_name"].(string); ok {
			hit.DisplayName = v
		}
		switch s := row["score"].(type) {
		case float64:
			hit.Score = s
		case int64:
			hit.Score = float64(s)
		}
		hit.Labels = stringSlice(row["labels"])
		if props, ok := row["props"].(map[string]any); ok {
			hit.Properties = props
		}
		hits = append(hits, hit)
	}
	return hits
}

// stringSlice converts the driver's []any list values to []string.
func stringSlice(value any) []string {
	items, ok := value.([]any)
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

// EnsureFulltextIndex checks for the named index and optionally creates it.
//
// Creation first tries the Cypher DDL form, then falls back to the
// db.index.fulltext.createNodeIndex procedure for older backends. Both
// paths are idempotent: an existing index short-circuits before any DDL.
func (g *Neo4jGateway) EnsureFulltextIndex(ctx context.Context, database, indexName string, labels, properties []string, createIfMissing bool) (EnsureResult, error) {
	safeName, err := validation.SanitizeIdentifiers([]string{indexName}, "index_name")
	if err != nil {
		return EnsureResult{}, &Error{Kind: KindForbidden, Database: database, Err: err}
	}
	safeLabels, err := validation.SanitizeIdentifiers(labels, "labels")
	if err != nil {
		return EnsureResult{}, &Error{Kind: KindForbidden, Database: database, Err: err}
	}
	safeProps, err := validation.SanitizeIdentifiers(properties, "properties")
	if err != nil {
		return EnsureResult{}, &Error{Kind: KindForbidden, Database: database, Err: err}
	}
	indexName = safeName[0]

	result := EnsureResult{
		Database:   database,
		IndexName:  indexName,
		Labels:     safeLabels,
		Properties: safeProps,
	}

	state, found, err := g.lookupFulltextIndex(ctx, database, indexName)
	if err != nil {
		return EnsureResult{}, err
	}
	if found {
		result.Exists = true
		result.State = state
		result.Message = "Index already exists."
		return result, nil
	}
	if !createIfMissing {
		result.Message = "Index not found."
		return result, nil
	}

	mode, createErr := g.createFulltextIndex(ctx, database, indexName, safeLabels, safeProps)

	state, found, err = g.lookupFulltextIndex(ctx, database, indexName)
	if err != nil {
		return EnsureResult{}, err
	}
	if found {
		result.Exists = true
		result.Created = true
		result.State = state
		result.Message = fmt.Sprintf("Index created via %s.", mode)
		return result, nil
	}

	result.Message = fmt.Sprintf("Index creation attempted via %s but not visible.", mode)
	if createErr != nil {
		result.Message = fmt.Sprintf("%s Last error: %v", result.Message, createErr)
	}
	return result, nil
}

// lookupFulltextIndex probes SHOW FULLTEXT INDEXES with a SHOW INDEXES
// fallback for backends that lack the dedicated form.
func (g *Neo4jGateway) lookupFulltextIndex(ctx context.Context, database, indexName string) (state string, found bool, err error) {
	queries := []string{
		"SHOW FULLTEXT INDEXES YIELD name, state RETURN name, state",
		"SHOW INDEXES YIELD name, type, state WHERE type = 'FULLTEXT' RETURN name, state",
	}
	var lastErr error
	for _, query := range queries {
		rows, qErr := g.RunCypher(ctx, database, query, nil)
		if qErr != nil {
			lastErr = qErr
			continue
		}
		for _, row := range rows {
			if name, ok := row["name"].(string); ok && name == indexName {
				s, _ := row["state"].(string)
				return s, true, nil
			}
		}
		return "", false, nil
	}
	if lastErr != nil && KindOf(lastErr) == KindUnreachable {
		return "", false, lastErr
	}
	return "", false, nil
}

// createFulltextIndex issues the single DDL call. Identifiers are already
// validated by the caller; values stay parameterized in the procedure path.
func (g *Neo4jGateway) createFulltextIndex(ctx context.Context, database, indexName string, labels, properties []string) (string, error) {
	props := make([]string, len(properties))
	for i, p := range properties {
		props[i] = "n." + p
	}
	ddl := fmt.Sprintf(
		"CREATE FULLTEXT INDEX %s IF NOT EXISTS FOR (n:%s) ON EACH [%s]",
		indexName, strings.Join(labels, "|"), strings.Join(props, ", "),
	)
	if _, err := g.run(ctx, database, neo4j.AccessModeWrite, ddl, nil); err == nil {
		return "cypher_ddl", nil
	}

	_, err := g.run(ctx, database, neo4j.AccessModeWrite,
		"CALL db.index.fulltext.createNodeIndex($name, $labels, $properties)",
		map[string]any{"name": indexName, "labels": labels, "properties": properties},
	)
	return "procedure_fallback", err
}
