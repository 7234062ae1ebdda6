// Copyright (C) 2025 Finsage Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsagelabs/finsage/services/advisor/datatypes"
	"github.com/finsagelabs/finsage/services/advisor/scoring"
	"github.com/finsagelabs/finsage/services/advisor/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRespondError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{"unknown session", store.ErrNotFound, http.StatusNotFound, "session not found or expired"},
		{"expired session", store.ErrExpired, http.StatusNotFound, "session not found or expired"},
		{"closed session", store.ErrClosed, http.StatusBadRequest, "session is closed"},
		{"incomplete profile", scoring.ErrIncomplete, http.StatusBadRequest, "loan parameters incomplete"},
		{
			"validation reject",
			&datatypes.ValidationError{Field: "creditScore", Reason: "must be between 300 and 850"},
			http.StatusBadRequest,
			"invalid value for creditScore: must be between 300 and 850",
		},
		{"anything else", errors.New("disk on fire"), http.StatusInternalServerError, "internal error"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/test", nil)

			respondError(c, tc.err)

			assert.Equal(t, tc.wantStatus, w.Code)
			var envelope datatypes.Envelope
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
			assert.False(t, envelope.Success)
			assert.Equal(t, tc.wantError, envelope.Error)
		})
	}
}

func TestSessionIDParam(t *testing.T) {
	t.Run("valid id normalised", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Params = gin.Params{{Key: "sessionId", Value: "AAAAAAAA-AAAA-4AAA-8AAA-AAAAAAAAAAAA"}}

		id, ok := sessionIDParam(c)
		require.True(t, ok)
		assert.Equal(t, "aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa", id)
	})

	t.Run("invalid id writes 400", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Params = gin.Params{{Key: "sessionId", Value: "'; DROP TABLE sessions; --"}}

		_, ok := sessionIDParam(c)
		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestSummarize(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	lastMsg := created.Add(12 * time.Minute)

	amount := int64(2_000_000)
	snap := &datatypes.SessionSnapshot{
		Session: datatypes.Session{
			CreatedAt:   created,
			LastTouched: created.Add(5 * time.Minute),
		},
		Parameters: &datatypes.LoanParameters{LoanAmount: &amount},
		History: []datatypes.ChatMessage{
			{Role: datatypes.RoleUser, CreatedAt: created.Add(time.Minute)},
			{Role: datatypes.RoleBot, CreatedAt: lastMsg},
		},
	}

	s := summarize(snap)
	assert.Equal(t, 2, s.MessageCount)
	assert.InDelta(t, 12.0, s.DurationMinutes, 0.01)
	assert.Equal(t, []string{datatypes.FieldLoanAmount}, s.ParametersCollected)
	assert.Equal(t, lastMsg, s.LastActivity)
}

func TestSummarizeEmptyHistory(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	snap := &datatypes.SessionSnapshot{
		Session:    datatypes.Session{CreatedAt: created, LastTouched: created},
		Parameters: &datatypes.LoanParameters{},
	}

	s := summarize(snap)
	assert.Zero(t, s.MessageCount)
	assert.Zero(t, s.DurationMinutes)
	assert.Empty(t, s.ParametersCollected)
}
