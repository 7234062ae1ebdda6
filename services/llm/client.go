// Copyright (C) 2025 Finsage Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm provides the gateway to the external text model.
//
// The gateway is deliberately thin: it sends a prompt, returns the raw
// reply text, and classifies transport failures into a small taxonomy the
// orchestrator can act on. It never interprets response content.
package llm

import (
	"context"
	"time"
)

// GenerationParams controls a single generation call.
type GenerationParams struct {
	Model          string   `json:"model,omitempty"`
	Temperature    *float32 `json:"temperature,omitempty"`
	MaxTokens      *int     `json:"max_tokens,omitempty"`
	ThinkingBudget *int     `json:"thinking_budget,omitempty"`
	Stop           []string `json:"stop,omitempty"`

	// Deadline bounds the whole call. Zero means the caller's context
	// deadline (if any) applies unchanged.
	Deadline time.Duration `json:"-"`
}

// Client defines the standard interface for any LLM backend.
type Client interface {
	// Generate sends a prompt and returns the raw reply text. Errors are
	// classified; use Classify or errors.Is against the sentinels in
	// errors.go.
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)

	// HealthCheck reports whether the backend is reachable.
	HealthCheck(ctx context.Context) bool
}

// =============================================================================
// Calling Profiles
// =============================================================================

// The two preset calling profiles. Extraction wants deterministic JSON, so
// it runs cold and short; conversation wants prose, so it runs warmer with
// a larger budget. The deadlines are the per-profile turn bounds: an
// in-flight call past its deadline is aborted and the caller falls back.

// ExtractionParams returns the low-temperature profile used for parameter
// mining and constrained acknowledgement synthesis.
func ExtractionParams() GenerationParams {
	temp := float32(0.1)
	maxTok := 512
	return GenerationParams{
		Temperature: &temp,
		MaxTokens:   &maxTok,
		Deadline:    10 * time.Second,
	}
}

// ConversationParams returns the prose profile used for user-facing replies.
func ConversationParams() GenerationParams {
	temp := float32(0.7)
	maxTok := 1024
	return GenerationParams{
		Temperature: &temp,
		MaxTokens:   &maxTok,
		Deadline:    30 * time.Second,
	}
}
