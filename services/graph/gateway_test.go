// Copyright (C) 2025 SEOCHO Project
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGuardReadOnly(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		wantErr bool
	}{
		{"match", "MATCH (n) RETURN n LIMIT 5", false},
		{"call procedure", "CALL db.labels()", false},
		{"show indexes", "SHOW FULLTEXT INDEXES YIELD name RETURN name", false},
		{"leading whitespace", "   \n  MATCH (n) RETURN n", false},
		{"leading comment", "// count nodes\nMATCH (n) RETURN count(n)", false},
		{"lowercase match", "match (n) return n", false},

		{"create", "CREATE (n:Thing) RETURN n", true},
		{"merge", "MERGE (n:Thing {id: 1})", true},
		{"delete", "DELETE n", true},
		{"detach delete", "DETACH DELETE n", true},
		{"drop", "DROP INDEX entity_fulltext", true},
		{"load csv", "LOAD CSV FROM 'file:///x.csv' AS row RETURN row", true},
		{"lowercase create", "create (n) return n", true},
		{"comment then create", "// harmless\nCREATE (n)", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := guardReadOnly(tt.query)
			if (err != nil) != tt.wantErr {
				t.Errorf("guardReadOnly(%q) error = %v, wantErr %v", tt.query, err, tt.wantErr)
			}
		})
	}
}

func TestFirstKeyword(t *testing.T) {
	assert.Equal(t, "MATCH", firstKeyword("MATCH (n) RETURN n"))
	assert.Equal(t, "CREATE", firstKeyword("\n\t CREATE (n)"))
	assert.Equal(t, "RETURN", firstKeyword("// a\n// b\nRETURN 1"))
	assert.Equal(t, "", firstKeyword("// only comments\n"))
}

func TestSchemaText(t *testing.T) {
	s := Schema{
		Database:          "kgnormal",
		Labels:            []string{"Company", "Person"},
		RelationshipTypes: []string{"SUPPLIES"},
	}
	text := s.Text()
	assert.Contains(t, text, "Database: kgnormal")
	assert.Contains(t, text, "Node Labels: Company, Person")
	assert.Contains(t, text, "Relationship Types: SUPPLIES")
	assert.Contains(t, text, "Property Keys: none")
}

func TestHitsFromRows(t *testing.T) {
	rows := []map[string]any{
		{
			"node_id":      "4:abc:1",
			"display_name": "ACME",
			"labels":       []any{"Company"},
			"score":        2.5,
			"props":        map[string]any{"name": "ACME"},
		},
		{
			"node_id":      "4:abc:2",
			"display_name": "ACME Corp",
			"labels":       []any{"Company", "Organization"},
			"score":        int64(1),
		},
	}
	hits := hitsFromRows(rows)
	assert.Len(t, hits, 2)
	assert.Equal(t, "4:abc:1", hits[0].NodeID)
	assert.Equal(t, 2.5, hits[0].Score)
	assert.Equal(t, []string{"Company"}, hits[0].Labels)
	assert.Equal(t, 1.0, hits[1].Score)
	assert.Equal(t, []string{"Company", "Organization"}, hits[1].Labels)
}

func TestEnsureResultIdentifierValidation(t *testing.T) {
	g := &Neo4jGateway{}

	_, err := g.EnsureFulltextIndex(context.Background(), "kgnormal", "bad name", []string{"Entity"}, []string{"name"}, true)
	assert.Equal(t, KindForbidden, KindOf(err))

	_, err = g.EnsureFulltextIndex(context.Background(), "kgnormal", "entity_fulltext", []string{"Bad Label"}, []string{"name"}, true)
	assert.Equal(t, KindForbidden, KindOf(err))

	_, err = g.EnsureFulltextIndex(context.Background(), "kgnormal", "entity_fulltext", []string{"Entity"}, []string{"drop x"}, true)
	assert.Equal(t, KindForbidden, KindOf(err))
}
