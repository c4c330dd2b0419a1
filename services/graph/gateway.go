// Copyright (C) 2025 SEOCHO Project
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package graph provides read-only access to the labeled-property graph
// backend (Neo4j/DozerDB-compatible) for the orchestration core.
//
// The gateway enforces three contracts before any I/O happens:
//
//  1. Database names and labels are validated against the identifier
//     regexes (values are always bound as parameters; identifiers are
//     treated as code).
//  2. Request-path Cypher is read-only: statements beginning with a
//     mutating keyword are rejected with ErrForbidden.
//  3. Every call carries a timeout (T_graph) and honors cancellation.
//
// Node identity uses elementId(), never legacy integer ids.
package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/tteon/seocho/pkg/validation"
)

// =============================================================================
// Error Taxonomy
// =============================================================================

// ErrorKind classifies gateway failures for readiness accounting.
type ErrorKind string

const (
	// KindUnreachable means the backend is down or the database does not
	// accept connections. The owning DatabaseHandle is downgraded to
	// unreachable for the rest of the request.
	KindUnreachable ErrorKind = "unreachable"

	// KindSyntax means the Cypher statement was rejected by the server.
	KindSyntax ErrorKind = "syntax_error"

	// KindTimeout means the call exceeded T_graph or the request deadline.
	KindTimeout ErrorKind = "timeout"

	// KindForbidden means the statement violated the read-only contract
	// or an identifier failed validation.
	KindForbidden ErrorKind = "forbidden"
)

// Error is a classified graph backend failure.
type Error struct {
	Kind     ErrorKind
	Database string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("graph %s [%s]: %v", e.Kind, e.Database, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrForbidden is the sentinel wrapped by read-only violations.
var ErrForbidden = errors.New("mutating statements are not allowed on the request path")

// KindOf extracts the ErrorKind from err, or "" if err is not a graph error.
func KindOf(err error) ErrorKind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}

// =============================================================================
// Data Types
// =============================================================================

// Schema is a point-in-time snapshot of a database's shape.
type Schema struct {
	Database          string   `json:"database"`
	Labels            []string `json:"labels"`
	RelationshipTypes []string `json:"relationship_types"`
	PropertyKeys      []string `json:"property_keys"`
}

// Text renders the snapshot as the human-readable block embedded in agent
// instructions.
func (s Schema) Text() string {
	join := func(items []string) string {
		if len(items) == 0 {
			return "none"
		}
		return strings.Join(items, ", ")
	}
	return fmt.Sprintf(
		"Database: %s\nNode Labels: %s\nRelationship Types: %s\nProperty Keys: %s",
		s.Database, join(s.Labels), join(s.RelationshipTypes), join(s.PropertyKeys),
	)
}

// CandidateHit is a single fulltext search result.
type CandidateHit struct {
	NodeID      string         `json:"node_id"`
	Score       float64        `json:"score"`
	Labels      []string       `json:"labels"`
	DisplayName string         `json:"display_name"`
	Properties  map[string]any `json:"properties,omitempty"`
}

// EnsureResult reports the outcome of EnsureFulltextIndex.
type EnsureResult struct {
	Database   string   `json:"database"`
	IndexName  string   `json:"index_name"`
	Exists     bool     `json:"exists"`
	Created    bool     `json:"created"`
	State      string   `json:"state,omitempty"`
	Labels     []string `json:"labels"`
	Properties []string `json:"properties"`
	Message    string   `json:"message"`
}

// =============================================================================
// Gateway Interface
// =============================================================================

// Gateway is the read-only graph surface consumed by the orchestration core.
//
// Implementations must be safe for concurrent use; one request may issue
// queries against several databases in parallel.
type Gateway interface {
	// RunCypher executes a read-only statement with bound parameters.
	RunCypher(ctx context.Context, database, query string, params map[string]any) ([]map[string]any, error)

	// GetSchemaSnapshot returns labels, relationship types, and property keys.
	GetSchemaSnapshot(ctx context.Context, database string) (Schema, error)

	// EnsureFulltextIndex checks for the named fulltext index and creates it
	// when createIfMissing is set. This is the only write the gateway issues.
	EnsureFulltextIndex(ctx context.Context, database, indexName string, labels, properties []string, createIfMissing bool) (EnsureResult, error)

	// FulltextSearch queries the named fulltext index.
	FulltextSearch(ctx context.Context, database, indexName, terms string, limit int) ([]CandidateHit, error)
}

// =============================================================================
// Read-Only Guard
// =============================================================================

// mutatingKeywords are statement prefixes rejected on the request path.
var mutatingKeywords = []string{
	"CREATE", "MERGE", "DELETE", "DETACH", "SET", "REMOVE", "DROP",
	"LOAD", "FOREACH", "ALTER", "GRANT", "DENY", "REVOKE",
}

// guardReadOnly rejects statements that begin with a mutating keyword.
// Leading whitespace and // line comments are skipped before the check.
func guardReadOnly(query string) error {
	head := strings.ToUpper(firstKeyword(query))
	for _, kw := range mutatingKeywords {
		if head == kw {
			return fmt.Errorf("%w: statement begins with %s", ErrForbidden, kw)
		}
	}
	return nil
}

// firstKeyword returns the first bare token of a Cypher statement,
// skipping whitespace and // comments.
func firstKeyword(query string) string {
	for _, line := range strings.Split(query, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "//") {
			continue
		}
		if idx := strings.IndexFunc(trimmed, func(r rune) bool {
			return r == ' ' || r == '\t' || r == '('
		}); idx > 0 {
			return trimmed[:idx]
		}
		return trimmed
	}
	return ""
}

// =============================================================================
// Neo4j Implementation
// =============================================================================

// Config holds graph backend connection settings.
type Config struct {
	// URI is the bolt endpoint, e.g. "bolt://neo4j:7687".
	URI string

	// User and Password authenticate the driver.
	User     string
	Password string

	// QueryTimeout caps each Cypher call (T_graph). Default: 10s.
	QueryTimeout time.Duration
}

// Neo4jGateway implements Gateway over the official v5 driver.
//
// A single driver instance is shared; each call opens a session bound to
// exactly one database, per the backend's multi-database semantics.
type Neo4jGateway struct {
	driver  neo4j.DriverWithContext
	timeout time.Duration
}

// NewNeo4jGateway connects to the graph backend. The driver is lazy; the
// first query performs the actual connection handshake.
func NewNeo4jGateway(cfg Config) (*Neo4jGateway, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("graph: URI is required")
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("graph: create driver: %w", err)
	}
	timeout := cfg.QueryTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Neo4jGateway{driver: driver, timeout: timeout}, nil
}

// Close releases the underlying driver.
func (g *Neo4jGateway) Close(ctx context.Context) error {
	return g.driver.Close(ctx)
}

// RunCypher executes a read-only statement against one database.
func (g *Neo4jGateway) RunCypher(ctx context.Context, database, query string, params map[string]any) ([]map[string]any, error) {
	if err := validation.ValidateDatabaseName(database); err != nil {
		return nil, &Error{Kind: KindForbidden, Database: database, Err: err}
	}
	if err := guardReadOnly(query); err != nil {
		return nil, &Error{Kind: KindForbidden, Database: database, Err: err}
	}
	return g.run(ctx, database, neo4j.AccessModeRead, query, params)
}

// GetSchemaSnapshot collects labels, relationship types, and property keys.
func (g *Neo4jGateway) GetSchemaSnapshot(ctx context.Context, database string) (Schema, error) {
	schema := Schema{Database: database}

	collect := func(query, column string) ([]string, error) {
		rows, err := g.RunCypher(ctx, database, query, nil)
		if err != nil {
			return nil, err
		}
		values := make([]string, 0, len(rows))
		for _, row := range rows {
			if v, ok := row[column].(string); ok {
				values = append(values, v)
			}
		}
		return values, nil
	}

	var err error
	if schema.Labels, err = collect("CALL db.labels()", "label"); err != nil {
		return Schema{}, err
	}
	if schema.RelationshipTypes, err = collect("CALL db.relationshipTypes()", "relationshipType"); err != nil {
		return Schema{}, err
	}
	if schema.PropertyKeys, err = collect("CALL db.propertyKeys()", "propertyKey"); err != nil {
		return Schema{}, err
	}
	return schema, nil
}

// run executes a statement inside a session scoped to one database.
func (g *Neo4jGateway) run(ctx context.Context, database string, mode neo4j.AccessMode, query string, params map[string]any) ([]map[string]any, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	session := g.driver.NewSession(callCtx, neo4j.SessionConfig{
		DatabaseName: database,
		AccessMode:   mode,
	})
	defer session.Close(callCtx)

	result, err := session.Run(callCtx, query, params)
	if err != nil {
		return nil, g.classify(database, err)
	}

	var rows []map[string]any
	for result.Next(callCtx) {
		rows = append(rows, result.Record().AsMap())
	}
	if err := result.Err(); err != nil {
		return nil, g.classify(database, err)
	}
	return rows, nil
}

// classify maps driver failures onto the gateway error taxonomy.
func (g *Neo4jGateway) classify(database string, err error) error {
	kind := KindUnreachable
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		kind = KindTimeout
	case isSyntaxError(err):
		kind = KindSyntax
	case isForbiddenError(err):
		kind = KindForbidden
	case neo4j.IsConnectivityError(err):
		kind = KindUnreachable
	}
	return &Error{Kind: kind, Database: database, Err: err}
}

func isSyntaxError(err error) bool {
	var ne *neo4j.Neo4jError
	if errors.As(err, &ne) {
		return strings.Contains(ne.Code, "SyntaxError")
	}
	return false
}

func isForbiddenError(err error) bool {
	var ne *neo4j.Neo4jError
	if errors.As(err, &ne) {
		return strings.Contains(ne.Code, "Forbidden") || strings.Contains(ne.Code, "AccessMode")
	}
	return false
}

var _ Gateway = (*Neo4jGateway)(nil)
