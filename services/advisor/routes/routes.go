// Copyright (C) 2025 Finsage Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/finsagelabs/finsage/services/advisor/catalogue"
	"github.com/finsagelabs/finsage/services/advisor/handlers"
	"github.com/finsagelabs/finsage/services/advisor/middleware"
	"github.com/finsagelabs/finsage/services/advisor/orchestrator"
	"github.com/finsagelabs/finsage/services/advisor/store"
	"github.com/finsagelabs/finsage/services/advisor/tracker"
	"github.com/finsagelabs/finsage/services/llm"
)

// SetupRoutes registers the advisor API on the router.
//
// Route groups map to rate-limit buckets: chat turns pay the chat budget,
// matching runs the matching budget, everything else the general budget.
func SetupRoutes(router *gin.Engine, st store.Store, tr *tracker.Tracker,
	orc *orchestrator.Orchestrator, cat *catalogue.Catalogue,
	client llm.Client, rl *middleware.RateLimiter, startedAt time.Time) {

	router.Use(middleware.BodyLimit(), middleware.Metrics(),
		middleware.RequestLog(slog.Default()))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/api/health", handlers.HandleHealth(st, client, startedAt))

	chat := router.Group("/api/chat")
	{
		chat.POST("/session", middleware.RateLimit(rl, middleware.BucketGeneral),
			handlers.HandleOpenSession(st))
		chat.DELETE("/session/:sessionId", middleware.RateLimit(rl, middleware.BucketGeneral),
			handlers.HandleEndSession(st))
		chat.GET("/history/:sessionId", middleware.RateLimit(rl, middleware.BucketGeneral),
			handlers.HandleHistory(st))
		chat.POST("/message", middleware.RateLimit(rl, middleware.BucketChat),
			handlers.HandleChatMessage(orc))
	}

	loan := router.Group("/api/loan")
	{
		loan.GET("/status/:sessionId", middleware.RateLimit(rl, middleware.BucketGeneral),
			handlers.HandleLoanStatus(tr))
		loan.POST("/match", middleware.RateLimit(rl, middleware.BucketMatching),
			handlers.HandleLoanMatch(orc, st))
		loan.GET("/results/:sessionId", middleware.RateLimit(rl, middleware.BucketGeneral),
			handlers.HandleLoanResults(st))
		loan.PUT("/parameters/:sessionId", middleware.RateLimit(rl, middleware.BucketGeneral),
			handlers.HandleParameterUpdate(tr))
		loan.GET("/lenders", middleware.RateLimit(rl, middleware.BucketGeneral),
			handlers.HandleLenders(cat))
	}
}
