// Copyright (C) 2025 SEOCHO Project
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tteon/seocho/services/graph"
	"github.com/tteon/seocho/services/orchestrator/agentpool"
	"github.com/tteon/seocho/services/orchestrator/handlers"
	"github.com/tteon/seocho/services/orchestrator/observability"
	"github.com/tteon/seocho/services/orchestrator/platform"
	"github.com/tteon/seocho/services/orchestrator/registry"
	"github.com/tteon/seocho/services/orchestrator/supervisor"
	"github.com/tteon/seocho/services/policy_engine"
)

// Deps bundles everything the HTTP surface needs. Handlers receive only
// the pieces they use.
type Deps struct {
	Supervisor       *supervisor.Supervisor
	Coordinator      *platform.Coordinator
	Registry         *registry.Registry
	Pool             *agentpool.Pool
	Gateway          graph.Gateway
	PolicyEngine     *policy_engine.PolicyEngine
	Metrics          *observability.Metrics
	DefaultWorkspace string
}

// SetupRoutes wires every endpoint onto the router. Middleware is expected
// to be installed by the caller before this runs.
func SetupRoutes(router *gin.Engine, deps Deps) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/health/runtime", handlers.HealthRuntime(deps.Pool, deps.Metrics))
	router.GET("/health/batch", handlers.HealthBatch(deps.Registry, deps.Pool, deps.Metrics))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.POST("/run_agent", handlers.RunAgent(deps.Supervisor, deps.Metrics, deps.DefaultWorkspace))
		v1.POST("/run_agent_semantic", handlers.RunAgentSemantic(deps.Supervisor, deps.Metrics, deps.DefaultWorkspace))
		v1.POST("/run_debate", handlers.RunDebate(deps.Supervisor, deps.Metrics, deps.DefaultWorkspace))

		v1.GET("/databases", handlers.ListDatabases(deps.Registry, deps.PolicyEngine))
		v1.GET("/agents", handlers.ListAgents(deps.Pool, deps.PolicyEngine))

		indexes := v1.Group("/indexes")
		{
			indexes.POST("/fulltext/ensure", handlers.EnsureFulltextIndex(deps.Gateway, deps.Registry, deps.PolicyEngine))
		}

		chat := v1.Group("/platform/chat")
		{
			chat.POST("/send", handlers.PlatformChatSend(deps.Coordinator, deps.Metrics, deps.DefaultWorkspace))
			chat.GET("/session/:id", handlers.GetChatSession(deps.Coordinator))
			chat.DELETE("/session/:id", handlers.DeleteChatSession(deps.Coordinator))
		}
	}
}
