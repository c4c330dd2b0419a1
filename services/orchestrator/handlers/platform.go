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
	"github.com/tteon/seocho/services/orchestrator/platform"
)

// PlatformChatSend runs one chat turn through the platform coordinator.
func PlatformChatSend(coord *platform.Coordinator, metrics *observability.Metrics, defaultWorkspace string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.ChatSendRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBindError(c, err)
			return
		}
		if req.WorkspaceID == "" {
			req.WorkspaceID = defaultWorkspace
		}

		start := time.Now()
		resp, err := coord.HandleChat(c.Request.Context(), req, middleware.Role(c))

		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.ObserveRequest("platform_chat", status, time.Since(start).Seconds())

		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// GetChatSession returns a stored chat history.
func GetChatSession(coord *platform.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		history, err := coord.History(c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, history)
	}
}

// DeleteChatSession removes a chat session.
func DeleteChatSession(coord *platform.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := coord.Clear(c.Param("id")); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
