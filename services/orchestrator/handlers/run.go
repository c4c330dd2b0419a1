// Copyright (C) 2025 SEOCHO Project
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tteon/seocho/services/orchestrator/datatypes"
	"github.com/tteon/seocho/services/orchestrator/middleware"
	"github.com/tteon/seocho/services/orchestrator/observability"
	"github.com/tteon/seocho/services/orchestrator/supervisor"
)

// RunAgent is the legacy single-agent endpoint: the question goes to one
// database-bound agent with no routing or synthesis.
func RunAgent(sup *supervisor.Supervisor, metrics *observability.Metrics, defaultWorkspace string) gin.HandlerFunc {
	return handleRun(sup, metrics, "run_agent", supervisor.ModeSingle, defaultWorkspace)
}

// RunAgentSemantic runs the resolve-route-specialist-answer flow.
func RunAgentSemantic(sup *supervisor.Supervisor, metrics *observability.Metrics, defaultWorkspace string) gin.HandlerFunc {
	return handleRun(sup, metrics, "run_agent_semantic", supervisor.ModeSemantic, defaultWorkspace)
}

// RunDebate fans the question out across every requested database and
// synthesizes one answer. A blocked debate degrades to the semantic flow
// when any database still answers probes; the response then carries
// runtime_control and fallback_from.
func RunDebate(sup *supervisor.Supervisor, metrics *observability.Metrics, defaultWorkspace string) gin.HandlerFunc {
	return handleRun(sup, metrics, "run_debate", supervisor.ModeDebate, defaultWorkspace)
}

func handleRun(sup *supervisor.Supervisor, metrics *observability.Metrics, endpoint, mode, defaultWorkspace string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.RunRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBindError(c, err)
			return
		}
		workspace := req.WorkspaceID
		if workspace == "" {
			workspace = defaultWorkspace
		}

		start := time.Now()
		resp, err := sup.Handle(c.Request.Context(), supervisor.Request{
			Query:           req.Query,
			Mode:            mode,
			Databases:       req.Databases,
			WorkspaceID:     workspace,
			Role:            middleware.Role(c),
			EntityOverrides: req.EntityOverrides,
		})

		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.ObserveRequest(endpoint, status, time.Since(start).Seconds())

		if err != nil {
			// A blocked debate still reports which databases failed, and a
			// timed-out request still carries the trace captured so far.
			httpStatus, code := errorStatus(err)
			body := gin.H{
				"error_code": code,
				"message":    err.Error(),
				"request_id": middleware.RequestID(c),
			}
			if resp != nil {
				if resp.Readiness != nil {
					body["readiness"] = resp.Readiness
				}
				if len(resp.TraceSteps) > 0 {
					body["trace_steps"] = resp.TraceSteps
				}
			}
			c.JSON(httpStatus, body)
			return
		}

		if resp.Debate != nil {
			metrics.ObserveDebate(resp.Debate.AgentStatuses)
		}
		c.JSON(http.StatusOK, resp)
	}
}
