// Copyright (C) 2025 SEOCHO Project
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the HTTP endpoints of the orchestrator
// service. Each handler is a constructor returning a gin.HandlerFunc bound
// to its dependencies; handlers translate between wire envelopes and the
// supervisor, never reaching into flow internals.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tteon/seocho/services/orchestrator/datatypes"
	"github.com/tteon/seocho/services/orchestrator/middleware"
	"github.com/tteon/seocho/services/orchestrator/supervisor"
)

// errorStatus maps supervisor sentinels onto HTTP status codes.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, supervisor.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, supervisor.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, supervisor.ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeError renders the uniform error envelope.
func writeError(c *gin.Context, err error) {
	status, code := errorStatus(err)
	c.JSON(status, datatypes.ErrorResponse{
		ErrorCode: code,
		Message:   err.Error(),
		RequestID: middleware.RequestID(c),
	})
}

// writeBindError renders a 400 for malformed request bodies.
func writeBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
		ErrorCode: "invalid_request",
		Message:   "invalid request body: " + err.Error(),
		RequestID: middleware.RequestID(c),
	})
}
