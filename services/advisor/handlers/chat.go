// Copyright (C) 2025 Finsage Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/finsagelabs/finsage/services/advisor/datatypes"
	"github.com/finsagelabs/finsage/services/advisor/orchestrator"
)

// HandleChatMessage runs one chat turn.
//
// POST /api/chat/message body {sessionId, message}
//
// The response carries the bot reply, the action taken, the completion
// percentage, and the matches when the profile just completed. Agent-level
// failures never reach this layer; the orchestrator degrades them to a
// deterministic reply.
func HandleChatMessage(orc *orchestrator.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlerTracer.Start(c.Request.Context(), "HandleChatMessage")
		defer span.End()

		var req datatypes.ChatMessageRequest
		if err := c.BindJSON(&req); err != nil {
			span.RecordError(err)
			c.JSON(http.StatusBadRequest, datatypes.Fail("invalid request body"))
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.Fail("sessionId must be a v4 UUID and message must be non-empty and under 32 KiB"))
			return
		}
		span.SetAttributes(attribute.String("session.id", req.SessionID))

		result, err := orc.HandleTurn(ctx, req.SessionID, req.Message)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, datatypes.OK(result))
	}
}
