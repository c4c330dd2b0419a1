// Copyright (C) 2025 SEOCHO Project
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware provides the HTTP middleware of the orchestrator
// service: request-id propagation, structured request logging, caller role
// extraction, and the concurrency backpressure gate.
package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tteon/seocho/services/orchestrator/datatypes"
)

// Context keys. Typed strings under a service prefix to avoid collisions.
const (
	requestIDKey = "seocho_request_id"
	roleKey      = "seocho_role"
)

// RequestIDHeader is read from the request and always set on the response.
const RequestIDHeader = "X-Request-ID"

// RoleHeader carries the caller's role; authentication happens upstream.
const RoleHeader = "X-User-Role"

// DefaultMaxInFlight is the request concurrency bound Qmax.
const DefaultMaxInFlight = 200

// RequestID returns the request id minted or propagated for this request.
func RequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// Role returns the caller role extracted from the request headers. Empty
// when the header is absent; the policy engine maps that to the default
// role.
func Role(c *gin.Context) string {
	return c.GetString(roleKey)
}

// RequestIDMiddleware propagates an inbound X-Request-ID or mints one, and
// logs request_start/request_end with the request's latency and status.
func RequestIDMiddleware(log *slog.Logger) gin.HandlerFunc {
	if log == nil {
		log = slog.Default()
	}
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDKey, requestID)
		c.Set(roleKey, c.GetHeader(RoleHeader))
		c.Writer.Header().Set(RequestIDHeader, requestID)

		start := time.Now()
		log.Info("request_start",
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.FullPath(),
		)

		c.Next()

		log.Info("request_end",
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// ConcurrencyLimit rejects requests beyond maxInFlight with 503 instead of
// queueing them. A non-positive bound uses DefaultMaxInFlight.
func ConcurrencyLimit(maxInFlight int) gin.HandlerFunc {
	if maxInFlight <= 0 {
		maxInFlight = DefaultMaxInFlight
	}
	slots := make(chan struct{}, maxInFlight)
	return func(c *gin.Context) {
		select {
		case slots <- struct{}{}:
			defer func() { <-slots }()
			c.Next()
		default:
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, datatypes.ErrorResponse{
				ErrorCode: "overloaded",
				Message:   "server is at capacity, retry later",
				RequestID: RequestID(c),
			})
		}
	}
}
