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
	"go.opentelemetry.io/otel/codes"

	"github.com/finsagelabs/finsage/pkg/validation"
	"github.com/finsagelabs/finsage/services/advisor/catalogue"
	"github.com/finsagelabs/finsage/services/advisor/datatypes"
	"github.com/finsagelabs/finsage/services/advisor/orchestrator"
	"github.com/finsagelabs/finsage/services/advisor/store"
	"github.com/finsagelabs/finsage/services/advisor/tracker"
)

// HandleLoanStatus reports parameter-collection progress.
//
// GET /api/loan/status/{sessionId}
func HandleLoanStatus(tr *tracker.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlerTracer.Start(c.Request.Context(), "HandleLoanStatus")
		defer span.End()

		sessionID, ok := sessionIDParam(c)
		if !ok {
			return
		}

		params, tracking, err := tr.Get(ctx, sessionID)
		if err != nil {
			span.RecordError(err)
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, datatypes.OK(gin.H{
			"completionPercentage": tracking.CompletionPercent,
			"collectedParameters":  params.Collected(),
			"missingParameters":    params.Missing(),
			"tracking":             tracking,
			"isComplete":           tracking.IsComplete(),
		}))
	}
}

// HandleLoanMatch triggers an explicit matching run.
//
// POST /api/loan/match body {sessionId}
//
// 400 when the parameter set is incomplete.
func HandleLoanMatch(orc *orchestrator.Orchestrator, st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlerTracer.Start(c.Request.Context(), "HandleLoanMatch")
		defer span.End()

		var req datatypes.MatchRequest
		if err := c.BindJSON(&req); err != nil {
			span.RecordError(err)
			c.JSON(http.StatusBadRequest, datatypes.Fail("invalid request body"))
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.Fail("sessionId must be a v4 UUID"))
			return
		}

		matches, err := orc.RunMatching(ctx, req.SessionID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			respondError(c, err)
			return
		}

		params, _, err := st.Parameters(ctx, req.SessionID)
		if err != nil {
			span.RecordError(err)
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, datatypes.OK(gin.H{
			"matches":      matches,
			"totalMatches": len(matches),
			"sessionId":    req.SessionID,
			"calculatedAt": time.Now().UTC(),
			"parameters":   params,
		}))
	}
}

// HandleLoanResults returns the last persisted matching run.
//
// GET /api/loan/results/{sessionId}
func HandleLoanResults(st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlerTracer.Start(c.Request.Context(), "HandleLoanResults")
		defer span.End()

		sessionID, ok := sessionIDParam(c)
		if !ok {
			return
		}

		matches, err := st.Matches(ctx, sessionID)
		if err != nil {
			span.RecordError(err)
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, datatypes.OK(gin.H{
			"sessionId":    sessionID,
			"matches":      matches,
			"totalMatches": len(matches),
		}))
	}
}

// HandleParameterUpdate sets one loan parameter directly, bypassing the
// conversation.
//
// PUT /api/loan/parameters/{sessionId} body {parameter, value}
//
// 400 with the failing field name on an invalid value.
func HandleParameterUpdate(tr *tracker.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlerTracer.Start(c.Request.Context(), "HandleParameterUpdate")
		defer span.End()

		sessionID, ok := sessionIDParam(c)
		if !ok {
			return
		}

		var req datatypes.ParameterUpdateRequest
		if err := c.BindJSON(&req); err != nil {
			span.RecordError(err)
			c.JSON(http.StatusBadRequest, datatypes.Fail("invalid request body"))
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.Fail("parameter and value are required"))
			return
		}
		// Shape check before the name reaches the tracker or a log line.
		if err := validation.ValidateParameterName(req.Parameter); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.Fail(err.Error()))
			return
		}

		tracking, err := tr.Set(ctx, sessionID, req.Parameter, req.Value)
		if err != nil {
			span.RecordError(err)
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, datatypes.OK(gin.H{
			"sessionId": sessionID,
			"parameter": req.Parameter,
			"tracking":  tracking,
		}))
	}
}

// HandleLenders returns the full static catalogue.
//
// GET /api/loan/lenders
func HandleLenders(cat *catalogue.Catalogue) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, span := handlerTracer.Start(c.Request.Context(), "HandleLenders")
		defer span.End()

		lenders := cat.List()
		c.JSON(http.StatusOK, datatypes.OK(gin.H{
			"lenders": lenders,
			"total":   len(lenders),
		}))
	}
}
