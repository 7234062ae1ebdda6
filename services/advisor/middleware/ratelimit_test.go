// Copyright (C) 2025 Finsage Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsagelabs/finsage/services/advisor/datatypes"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestAllowEnforcesBucketBudget(t *testing.T) {
	rl := NewRateLimiter()
	bucket := Bucket{Name: "test", Window: time.Minute, Max: 3}

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow(bucket, "key-a"), "request %d", i)
	}
	assert.False(t, rl.Allow(bucket, "key-a"))

	// A different key has its own budget.
	assert.True(t, rl.Allow(bucket, "key-b"))
}

func TestAllowIsolatesBuckets(t *testing.T) {
	rl := NewRateLimiter()
	tight := Bucket{Name: "tight", Window: time.Minute, Max: 1}
	loose := Bucket{Name: "loose", Window: time.Minute, Max: 10}

	require.True(t, rl.Allow(tight, "shared-key"))
	assert.False(t, rl.Allow(tight, "shared-key"))
	assert.True(t, rl.Allow(loose, "shared-key"))
}

func TestEvictStale(t *testing.T) {
	rl := NewRateLimiter()
	bucket := Bucket{Name: "test", Window: time.Minute, Max: 1}

	require.True(t, rl.Allow(bucket, "key-a"))
	rl.mu.Lock()
	require.Len(t, rl.entries, 1)
	for _, entry := range rl.entries {
		entry.lastSeen = time.Now().Add(-2 * time.Minute)
	}
	rl.mu.Unlock()

	// The next pass evicts the stale entry, so the key starts fresh.
	assert.True(t, rl.Allow(bucket, "key-a"))
}

func limitedRouter(bucket Bucket) (*gin.Engine, *RateLimiter) {
	rl := NewRateLimiter()
	router := gin.New()
	router.POST("/chat", RateLimit(rl, bucket), func(c *gin.Context) {
		var body struct {
			SessionID string `json:"sessionId"`
		}
		// The limiter must have restored the body for binding.
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.Fail("bad body"))
			return
		}
		c.JSON(http.StatusOK, datatypes.OK(gin.H{"sessionId": body.SessionID}))
	})
	router.GET("/session/:sessionId", RateLimit(rl, bucket), func(c *gin.Context) {
		c.JSON(http.StatusOK, datatypes.OK(nil))
	})
	return router, rl
}

func postChat(router *gin.Engine, payload string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimitKeysOnBodySessionID(t *testing.T) {
	router, _ := limitedRouter(Bucket{Name: "chat", Window: time.Minute, Max: 2})

	// Two turns for session A exhaust its budget.
	for i := 0; i < 2; i++ {
		w := postChat(router, `{"sessionId": "session-a", "message": "hi"}`)
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := postChat(router, `{"sessionId": "session-a", "message": "hi"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	var envelope datatypes.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.False(t, envelope.Success)
	assert.Contains(t, envelope.Error, "chat")

	// Session B from the same client is unaffected.
	w = postChat(router, `{"sessionId": "session-b", "message": "hi"}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitRestoresRequestBody(t *testing.T) {
	router, _ := limitedRouter(BucketChat)

	w := postChat(router, `{"sessionId": "session-c", "message": "hello"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data struct {
			SessionID string `json:"sessionId"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "session-c", envelope.Data.SessionID)
}

func TestRateLimitKeysOnPathParam(t *testing.T) {
	router, _ := limitedRouter(Bucket{Name: "general", Window: time.Minute, Max: 1})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/session/abc", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/session/abc", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// A different session in the path is a different key.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/session/xyz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitFallsBackToClientIP(t *testing.T) {
	router, _ := limitedRouter(Bucket{Name: "general", Window: time.Minute, Max: 1})

	// No sessionId anywhere; both requests share the client IP key.
	w := postChat(router, `{"message": "hi"}`)
	require.Equal(t, http.StatusOK, w.Code)
	w = postChat(router, `{"message": "hi"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestDeployedBucketShapes(t *testing.T) {
	assert.Equal(t, 20, BucketChat.Max)
	assert.Equal(t, time.Minute, BucketChat.Window)
	assert.Equal(t, 3, BucketMatching.Max)
	assert.Equal(t, 5*time.Minute, BucketMatching.Window)
	assert.Equal(t, 100, BucketGeneral.Max)
	assert.Equal(t, 15*time.Minute, BucketGeneral.Window)
}
