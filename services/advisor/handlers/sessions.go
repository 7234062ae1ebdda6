// Copyright (C) 2025 Finsage Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"

	"github.com/finsagelabs/finsage/services/advisor/datatypes"
	"github.com/finsagelabs/finsage/services/advisor/observability"
	"github.com/finsagelabs/finsage/services/advisor/store"
)

// HandleOpenSession creates a new advisory session.
//
// POST /api/chat/session (no body required)
//
// Returns the session id, its hard expiry, and a greeting the client can
// render as the bot's opening message.
func HandleOpenSession(st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlerTracer.Start(c.Request.Context(), "HandleOpenSession")
		defer span.End()

		session, err := st.Open(ctx, store.Fingerprint{
			UserAgent: c.GetHeader("User-Agent"),
			ClientIP:  c.ClientIP(),
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			respondError(c, err)
			return
		}

		observability.DefaultMetrics().ActiveSessions.Inc()
		slog.Info("session opened", "session_id", session.ID)
		c.JSON(http.StatusOK, datatypes.OK(gin.H{
			"sessionId": session.ID,
			"expiresAt": session.ExpiresAt,
			"message":   "Hi! I'm Finsage, your loan advisor. Tell me a bit about the loan you're looking for and I'll find your best matches.",
		}))
	}
}

// HandleEndSession closes a session.
//
// DELETE /api/chat/session/{sessionId}
//
// Closing is idempotent; history and match results stay readable
// afterwards.
func HandleEndSession(st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlerTracer.Start(c.Request.Context(), "HandleEndSession")
		defer span.End()

		sessionID, ok := sessionIDParam(c)
		if !ok {
			return
		}

		if err := st.Close(ctx, sessionID); err != nil {
			span.RecordError(err)
			respondError(c, err)
			return
		}

		observability.DefaultMetrics().ActiveSessions.Dec()
		slog.Info("session closed", "session_id", sessionID)
		c.JSON(http.StatusOK, datatypes.OKMessage(gin.H{
			"sessionId": sessionID,
			"status":    "ended",
		}, "session ended, history remains readable"))
	}
}

// HandleHistory returns the ordered conversation with a summary block.
//
// GET /api/chat/history/{sessionId}
func HandleHistory(st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlerTracer.Start(c.Request.Context(), "HandleHistory")
		defer span.End()

		sessionID, ok := sessionIDParam(c)
		if !ok {
			return
		}

		snap, err := st.Load(ctx, sessionID)
		if err != nil {
			span.RecordError(err)
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, datatypes.OK(gin.H{
			"sessionId": sessionID,
			"messages":  snap.History,
			"summary":   summarize(snap),
		}))
	}
}

// summarize derives the history summary from a loaded snapshot.
func summarize(snap *datatypes.SessionSnapshot) datatypes.HistorySummary {
	last := snap.Session.LastTouched
	if n := len(snap.History); n > 0 && snap.History[n-1].CreatedAt.After(last) {
		last = snap.History[n-1].CreatedAt
	}
	duration := last.Sub(snap.Session.CreatedAt)
	if duration < 0 {
		duration = 0
	}
	return datatypes.HistorySummary{
		MessageCount:        len(snap.History),
		DurationMinutes:     duration.Minutes(),
		ParametersCollected: snap.Parameters.Collected(),
		LastActivity:        last,
	}
}
