// Copyright (C) 2025 Finsage Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/finsagelabs/finsage/services/advisor/datatypes"
	"github.com/finsagelabs/finsage/services/advisor/observability"
)

// MaxRequestBodyBytes caps any request body. Individual fields have
// tighter limits; this is the transport-level backstop.
const MaxRequestBodyBytes = 10 << 20

// BodyLimit rejects request bodies larger than MaxRequestBodyBytes.
// Downstream reads past the cap fail, which binding surfaces as a 400;
// declared oversizes are refused up front with 413.
func BodyLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > MaxRequestBodyBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge,
				datatypes.Fail("request body too large"))
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxRequestBodyBytes)
		c.Next()
	}
}

// RequestLog emits one structured record per completed request. Logging
// through the request context picks up the otelgin span, so records
// carry trace and span IDs when tracing is on. 5xx log at error, 4xx at
// warn.
func RequestLog(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"durationMs", time.Since(start).Milliseconds(),
			"clientIp", c.ClientIP(),
		}
		if id := c.Param("sessionId"); id != "" {
			attrs = append(attrs, "sessionId", id)
		}

		ctx := c.Request.Context()
		switch {
		case status >= http.StatusInternalServerError:
			logger.ErrorContext(ctx, "request failed", attrs...)
		case status >= http.StatusBadRequest:
			logger.WarnContext(ctx, "request rejected", attrs...)
		default:
			logger.InfoContext(ctx, "request served", attrs...)
		}
	}
}

// Metrics records every completed request against the endpoint counter.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		observability.DefaultMetrics().RecordRequest(endpoint, c.Writer.Status())
	}
}
