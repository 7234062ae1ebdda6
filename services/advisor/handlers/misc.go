// Copyright (C) 2025 Finsage Labs
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

	"github.com/finsagelabs/finsage/services/advisor/datatypes"
	"github.com/finsagelabs/finsage/services/advisor/store"
	"github.com/finsagelabs/finsage/services/llm"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// HandleHealth reports component health.
//
// GET /api/health
//
// The endpoint always answers 200; a degraded dependency shows up in the
// services map and flips status to "degraded". Orchestration platforms
// that want hard liveness should probe the port instead.
func HandleHealth(st store.Store, client llm.Client, startedAt time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlerTracer.Start(c.Request.Context(), "HandleHealth")
		defer span.End()

		dbStatus := "up"
		if err := st.Ping(ctx); err != nil {
			dbStatus = "down"
		}

		llmStatus := "up"
		if !client.HealthCheck(ctx) {
			llmStatus = "down"
		}

		status := "ok"
		if dbStatus != "up" || llmStatus != "up" {
			status = "degraded"
		}

		c.JSON(http.StatusOK, datatypes.OK(gin.H{
			"status": status,
			"services": gin.H{
				"database": dbStatus,
				"llm":      llmStatus,
			},
			"uptime":  time.Since(startedAt).Round(time.Second).String(),
			"version": Version,
		}))
	}
}
