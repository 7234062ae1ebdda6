// Copyright (C) 2025 Finsage Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers contains the Gin HTTP handlers for the advisor API.
//
// Each handler is a constructor taking its dependencies and returning a
// gin.HandlerFunc, so the router composes them without globals. All
// responses share the datatypes.Envelope wrapper; storage errors map to
// HTTP status codes in exactly one place (respondError).
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"

	"github.com/finsagelabs/finsage/pkg/validation"
	"github.com/finsagelabs/finsage/services/advisor/datatypes"
	"github.com/finsagelabs/finsage/services/advisor/scoring"
	"github.com/finsagelabs/finsage/services/advisor/store"
)

var handlerTracer = otel.Tracer("finsage.advisor.handlers")

// respondError maps a service-layer error to its HTTP shape. Session
// unknown and session expired are indistinguishable on the wire.
func respondError(c *gin.Context, err error) {
	var verr *datatypes.ValidationError
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrExpired):
		c.JSON(http.StatusNotFound, datatypes.Fail("session not found or expired"))
	case errors.Is(err, store.ErrClosed):
		c.JSON(http.StatusBadRequest, datatypes.Fail("session is closed"))
	case errors.Is(err, scoring.ErrIncomplete):
		c.JSON(http.StatusBadRequest, datatypes.Fail("loan parameters incomplete"))
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, datatypes.Fail(verr.Error()))
	default:
		slog.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, datatypes.Fail("internal error"))
	}
}

// sessionIDParam extracts and validates the sessionId path parameter,
// writing the 400 itself when invalid.
func sessionIDParam(c *gin.Context) (string, bool) {
	id, err := validation.SanitizeSessionID(c.Param("sessionId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, datatypes.Fail(err.Error()))
		return "", false
	}
	return id, true
}
