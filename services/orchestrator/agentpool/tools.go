// Copyright (C) 2025 SEOCHO Project
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agentpool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tteon/seocho/services/graph"
	"github.com/tteon/seocho/services/orchestrator/runtime"
	"github.com/tteon/seocho/services/orchestrator/semantic"
)

// buildTools assembles the four closure-bound tools for one database. The
// database name and schema text are captured by value; the model cannot
// retarget a tool at another database.
func (p *Pool) buildTools(db string, schema graph.Schema) *runtime.ToolSet {
	gateway := p.gateway
	schemaText := schema.Text()

	set := runtime.NewToolSet()

	mustRegister(set, runtime.Tool{
		Name:        "query_db",
		Description: "Execute a read-only Cypher query against this agent's database.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The Cypher statement to execute.",
				},
			},
			"required": []string{"query"},
		},
		Fn: func(ctx context.Context, rc *runtime.RunContext, args map[string]any) (string, error) {
			query, err := runtime.StringArg(args, "query")
			if err != nil {
				return "", err
			}
			if rc.Memory != nil {
				if cached, hit := rc.Memory.GetCached(db, query); hit {
					runtime.MarkCacheHit(ctx)
					return "[CACHED] " + cached, nil
				}
			}
			rows, err := gateway.RunCypher(ctx, db, query, nil)
			if err != nil {
				return "", err
			}
			encoded, err := json.Marshal(rows)
			if err != nil {
				return "", fmt.Errorf("encode query result: %w", err)
			}
			result := string(encoded)
			if rc.Memory != nil {
				rc.Memory.PutCached(db, query, result)
			}
			return result, nil
		},
	})

	mustRegister(set, runtime.Tool{
		Name:        "get_schema",
		Description: "Return the schema snapshot for this agent's database.",
		Fn: func(ctx context.Context, rc *runtime.RunContext, args map[string]any) (string, error) {
			return schemaText, nil
		},
	})

	mustRegister(set, runtime.Tool{
		Name:        "rerank_candidates",
		Description: "Rescore entity candidates against a question entity and return them best-first.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"entity": map[string]any{
					"type":        "string",
					"description": "The question entity the candidates were found for.",
				},
				"candidates": map[string]any{
					"type":        "array",
					"description": "Candidate objects with display_name, labels, base_score, source.",
					"items":       map[string]any{"type": "object"},
				},
				"label_hints": map[string]any{
					"type":  "array",
					"items": map[string]any{"type": "string"},
				},
			},
			"required": []string{"entity", "candidates"},
		},
		Fn: func(ctx context.Context, rc *runtime.RunContext, args map[string]any) (string, error) {
			entity, err := runtime.StringArg(args, "entity")
			if err != nil {
				return "", err
			}
			candidates, err := decodeCandidates(args["candidates"])
			if err != nil {
				return "", err
			}
			ranked := semantic.Rank(entity, candidates, decodeStrings(args["label_hints"]), 0)
			encoded, err := json.Marshal(ranked)
			if err != nil {
				return "", fmt.Errorf("encode ranked candidates: %w", err)
			}
			return string(encoded), nil
		},
	})

	mustRegister(set, runtime.Tool{
		Name:        "put_shared_result",
		Description: "Record this agent's answer fragment in the request's shared memory.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"answer": map[string]any{
					"type":        "string",
					"description": "The answer fragment to share.",
				},
			},
			"required": []string{"answer"},
		},
		Fn: func(ctx context.Context, rc *runtime.RunContext, args map[string]any) (string, error) {
			answer, err := runtime.StringArg(args, "answer")
			if err != nil {
				return "", err
			}
			if rc.Memory == nil {
				return "", fmt.Errorf("no shared memory in this run")
			}
			rc.Memory.PutResult(db, answer)
			return "stored", nil
		},
	})

	return set
}

// mustRegister panics on a registration conflict. The tool names above are
// fixed at compile time, so a failure here is a programming error.
func mustRegister(set *runtime.ToolSet, t runtime.Tool) {
	if err := set.Register(t); err != nil {
		panic(fmt.Sprintf("agentpool: register tool: %v", err))
	}
}

// decodeCandidates converts the model's JSON array into candidates.
func decodeCandidates(raw any) ([]semantic.Candidate, error) {
	if raw == nil {
		return nil, fmt.Errorf("missing argument %q", "candidates")
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("malformed candidates: %w", err)
	}
	var candidates []semantic.Candidate
	if err := json.Unmarshal(encoded, &candidates); err != nil {
		return nil, fmt.Errorf("malformed candidates: %w", err)
	}
	return candidates, nil
}

func decodeStrings(raw any) []string {
	items, ok := raw.([]any)
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
