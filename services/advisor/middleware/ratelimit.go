// Copyright (C) 2025 Finsage Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware provides HTTP middleware for the advisor service.
//
// This package contains the keyed rate limiter and the CORS layer. Both
// are plain Gin middleware returned by constructor functions so the
// router can compose them per route group.
//
// # Rate Limiting Flow
//
//	Request
//	   │
//	   ▼
//	RateLimit(bucket)
//	   │
//	   ├─► Resolve key: sessionId (path param or body) else client IP
//	   │
//	   ├─► limiter.Allow() for (bucket, key)
//	   │
//	   └─► 429 with bucket name, or c.Next()
package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/finsagelabs/finsage/services/advisor/datatypes"
	"github.com/finsagelabs/finsage/services/advisor/observability"
)

// =============================================================================
// Buckets
// =============================================================================

// Bucket is one operation-class budget: Max operations per Window,
// tracked per session (or per client IP when no session is known).
type Bucket struct {
	Name   string
	Window time.Duration
	Max    int
}

// The three deployed budgets. Chat turns cost LLM calls, matching costs
// a full scoring run, everything else is cheap.
var (
	BucketChat     = Bucket{Name: "chat", Window: 60 * time.Second, Max: 20}
	BucketMatching = Bucket{Name: "matching", Window: 300 * time.Second, Max: 3}
	BucketGeneral  = Bucket{Name: "general", Window: 900 * time.Second, Max: 100}
)

// maxBodySniffBytes bounds how much of a request body the key resolver
// will read looking for a sessionId.
const maxBodySniffBytes = 64 * 1024

// =============================================================================
// Limiter
// =============================================================================

// RateLimiter tracks per-key token buckets for every operation class.
//
// # Thread Safety
//
// Safe for concurrent use. Entries for keys idle longer than their
// bucket's window are evicted lazily on the next pass.
type RateLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
}

type limiterEntry struct {
	limiter  *rate.Limiter
	window   time.Duration
	lastSeen time.Time
}

// NewRateLimiter creates an empty limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{entries: make(map[string]*limiterEntry)}
}

// Allow reports whether one more operation fits the (bucket, key) budget.
func (rl *RateLimiter) Allow(bucket Bucket, key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.evictStale(now)

	mapKey := bucket.Name + "|" + key
	entry, ok := rl.entries[mapKey]
	if !ok {
		entry = &limiterEntry{
			limiter: rate.NewLimiter(rate.Every(bucket.Window/time.Duration(bucket.Max)), bucket.Max),
			window:  bucket.Window,
		}
		rl.entries[mapKey] = entry
	}
	entry.lastSeen = now
	return entry.limiter.Allow()
}

// evictStale drops entries idle past their window. Caller holds mu.
func (rl *RateLimiter) evictStale(now time.Time) {
	for key, entry := range rl.entries {
		if now.Sub(entry.lastSeen) > entry.window {
			delete(rl.entries, key)
		}
	}
}

// =============================================================================
// Middleware
// =============================================================================

// RateLimit creates a Gin middleware enforcing the named bucket.
//
// # Description
//
// Resolves the limiter key - the sessionId when one is present in the
// path or the JSON body, the client IP otherwise - and rejects the
// request with 429 and the bucket name once the budget is exhausted.
//
// # Inputs
//
//   - rl: shared limiter instance. Must not be nil.
//   - bucket: the operation-class budget to enforce.
//
// # Outputs
//
//   - gin.HandlerFunc: middleware ready for use with Gin
//
// # Limitations
//
//   - Body sniffing reads at most 64 KiB; larger bodies fall back to the
//     client IP key.
func RateLimit(rl *RateLimiter, bucket Bucket) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := resolveKey(c)
		if !rl.Allow(bucket, key) {
			observability.DefaultMetrics().RateLimited.WithLabelValues(bucket.Name).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				datatypes.Fail("rate limit exceeded for bucket "+bucket.Name))
			return
		}
		c.Next()
	}
}

// resolveKey prefers the session identity over the network identity so
// one busy session cannot starve other users behind the same NAT.
func resolveKey(c *gin.Context) string {
	if id := c.Param("sessionId"); id != "" {
		return id
	}
	if id := sniffSessionID(c); id != "" {
		return id
	}
	return c.ClientIP()
}

// sniffSessionID peeks at a JSON request body for a sessionId field and
// restores the body for downstream binding.
func sniffSessionID(c *gin.Context) string {
	if c.Request.Body == nil || c.Request.Method == http.MethodGet {
		return ""
	}
	buf, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodySniffBytes+1))
	if err != nil {
		return ""
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(buf))
	if len(buf) > maxBodySniffBytes {
		return ""
	}

	var probe struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(buf, &probe); err != nil {
		return ""
	}
	return probe.SessionID
}
