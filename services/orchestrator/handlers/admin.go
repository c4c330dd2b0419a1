// Copyright (C) 2025 SEOCHO Project
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tteon/seocho/services/graph"
	"github.com/tteon/seocho/services/orchestrator/agentpool"
	"github.com/tteon/seocho/services/orchestrator/datatypes"
	"github.com/tteon/seocho/services/orchestrator/middleware"
	"github.com/tteon/seocho/services/orchestrator/observability"
	"github.com/tteon/seocho/services/orchestrator/registry"
	"github.com/tteon/seocho/services/orchestrator/semantic"
	"github.com/tteon/seocho/services/policy_engine"
)

// HealthCheck is the liveness probe.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListDatabases returns the registered user databases.
func ListDatabases(reg *registry.Registry, policy *policy_engine.PolicyEngine) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authorize(c, policy, policy_engine.ActionReadDatabases) {
			return
		}
		c.JSON(http.StatusOK, gin.H{"databases": reg.ListUserDBs()})
	}
}

// ListAgents returns the current pool readiness and per-agent detail.
func ListAgents(pool *agentpool.Pool, policy *policy_engine.PolicyEngine) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authorize(c, policy, policy_engine.ActionReadAgents) {
			return
		}
		agents := make(map[string]map[string]any)
		for _, db := range pool.Databases() {
			if info, ok := pool.Describe(db); ok {
				agents[db] = info
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"readiness": pool.Readiness(),
			"agents":    agents,
		})
	}
}

// HealthRuntime reports the pool's readiness view without probing.
func HealthRuntime(pool *agentpool.Pool, metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		summary := pool.Readiness()
		metrics.ObserveReadiness(len(summary.Ready), len(summary.Degraded), len(summary.Unreachable))

		tracked := len(summary.Ready) + len(summary.Degraded) + len(summary.Unreachable)
		status := "ok"
		httpStatus := http.StatusOK
		switch {
		case tracked > 0 && len(summary.Ready) == 0 && len(summary.Degraded) == 0:
			status = "blocked"
			httpStatus = http.StatusServiceUnavailable
		case len(summary.Degraded) > 0 || len(summary.Unreachable) > 0:
			status = "degraded"
		}
		c.JSON(httpStatus, gin.H{"status": status, "readiness": summary})
	}
}

// HealthBatch probes every registered database and returns the per-database
// outcome. This is the expensive health check; it refreshes the pool.
func HealthBatch(reg *registry.Registry, pool *agentpool.Pool, metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		databases := reg.ListUserDBs()
		_, statuses := pool.CreateForAll(c.Request.Context(), databases)

		summary := pool.Readiness()
		metrics.ObserveReadiness(len(summary.Ready), len(summary.Degraded), len(summary.Unreachable))
		c.JSON(http.StatusOK, gin.H{
			"databases": statuses,
			"readiness": summary,
		})
	}
}

// EnsureFulltextIndex checks (and optionally creates) the entity fulltext
// index on one database.
func EnsureFulltextIndex(gateway graph.Gateway, reg *registry.Registry, policy *policy_engine.PolicyEngine) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authorize(c, policy, policy_engine.ActionManageIndexes) {
			return
		}
		var req datatypes.EnsureIndexRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBindError(c, err)
			return
		}
		for _, db := range req.Databases {
			if !reg.IsValid(db) {
				c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
					ErrorCode: "invalid_request",
					Message:   "unknown database " + db,
					RequestID: middleware.RequestID(c),
				})
				return
			}
		}
		indexName := req.IndexName
		if indexName == "" {
			indexName = semantic.DefaultIndexName
		}

		results := make([]graph.EnsureResult, 0, len(req.Databases))
		for _, db := range req.Databases {
			result, err := gateway.EnsureFulltextIndex(c.Request.Context(), db, indexName, req.Labels, req.Properties, req.CreateIfMissing)
			if err != nil {
				status := http.StatusBadGateway
				if graph.KindOf(err) == graph.KindForbidden {
					status = http.StatusBadRequest
				}
				c.JSON(status, datatypes.ErrorResponse{
					ErrorCode: string(graph.KindOf(err)),
					Message:   err.Error(),
					RequestID: middleware.RequestID(c),
				})
				return
			}
			results = append(results, result)
		}
		c.JSON(http.StatusOK, gin.H{"index_name": indexName, "results": results})
	}
}

// authorize writes a 403 and returns false when the caller's role may not
// perform the action.
func authorize(c *gin.Context, policy *policy_engine.PolicyEngine, action string) bool {
	decision := policy.Authorize(middleware.Role(c), action)
	if !decision.Allowed {
		c.JSON(http.StatusForbidden, datatypes.ErrorResponse{
			ErrorCode: "forbidden",
			Message:   decision.Reason,
			RequestID: middleware.RequestID(c),
		})
		return false
	}
	return true
}
