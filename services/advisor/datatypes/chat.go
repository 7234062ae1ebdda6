// Copyright (C) 2025 Finsage Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides data structures for the advisor service.
//
// This file contains the conversation history model and the request types
// for the chat endpoints, validated with go-playground/validator.
package datatypes

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Limits
// =============================================================================

const (
	// MaxMessageContentBytes caps a single user utterance. Larger payloads
	// are rejected before they reach the LLM.
	MaxMessageContentBytes = 32 * 1024

	// ExtractionWindowTurns is how many recent turns the extraction agent
	// sees in addition to the current utterance.
	ExtractionWindowTurns = 5
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// chatValidate is the validator instance for chat datatypes.
// Initialized in init() with custom validators.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()
	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes enforces the content byte cap. Byte length, not rune
// count, so oversized multi-byte payloads cannot slip past the limit.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxMessageContentBytes
}

// =============================================================================
// Chat Messages
// =============================================================================

// MessageRole identifies the author of a history entry.
type MessageRole string

const (
	RoleUser MessageRole = "user"
	RoleBot  MessageRole = "bot"
)

// AgentType identifies which agent produced a bot message.
type AgentType string

const (
	AgentConversation AgentType = "conv"
	AgentExtraction   AgentType = "extract"
)

// ChatMessage is one append-only history record. IDs are assigned by the
// store and are strictly increasing per session.
type ChatMessage struct {
	ID        int64           `json:"id"`
	SessionID string          `json:"sessionId"`
	Role      MessageRole     `json:"role"`
	Content   string          `json:"content"`
	AgentType AgentType       `json:"agentType,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// BotMetadata is the structured metadata attached to every bot reply.
type BotMetadata struct {
	Action            string `json:"action"`
	CompletionPercent int    `json:"completionPercent"`
}

// =============================================================================
// Request Types
// =============================================================================

// ChatMessageRequest is the body of POST /api/chat/message.
type ChatMessageRequest struct {
	SessionID string `json:"sessionId" validate:"required,uuid4"`
	Message   string `json:"message" validate:"required,maxbytes"`
}

// Validate checks the request against its validation tags.
func (r *ChatMessageRequest) Validate() error {
	return chatValidate.Struct(r)
}

// MatchRequest is the body of POST /api/loan/match.
type MatchRequest struct {
	SessionID string `json:"sessionId" validate:"required,uuid4"`
}

// Validate checks the request against its validation tags.
func (r *MatchRequest) Validate() error {
	return chatValidate.Struct(r)
}

// ParameterUpdateRequest is the body of PUT /api/loan/parameters/{sessionId}.
// Value is left untyped; the tracker validates it against the field domain.
type ParameterUpdateRequest struct {
	Parameter string `json:"parameter" validate:"required"`
	Value     any    `json:"value" validate:"required"`
}

// Validate checks the request against its validation tags.
func (r *ParameterUpdateRequest) Validate() error {
	return chatValidate.Struct(r)
}

// =============================================================================
// Response Envelope
// =============================================================================

// Envelope is the uniform response wrapper shared by every endpoint.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// OK wraps a successful payload.
func OK(data any) Envelope {
	return Envelope{Success: true, Data: data}
}

// OKMessage wraps a successful payload with a human-readable note.
func OKMessage(data any, msg string) Envelope {
	return Envelope{Success: true, Data: data, Message: msg}
}

// Fail wraps an error string.
func Fail(err string) Envelope {
	return Envelope{Success: false, Error: err}
}

// =============================================================================
// Turn Results
// =============================================================================

// Turn actions reported to the client.
const (
	ActionContinue       = "continue"
	ActionTriggerMatch   = "trigger_matching"
	ActionMatchingFailed = "matching_failed"
)

// TurnResult is what one chat turn produces: the reply, the action taken,
// the matches when the profile completed, and the updated completion state.
type TurnResult struct {
	SessionID         string        `json:"sessionId"`
	Reply             string        `json:"response"`
	Action            string        `json:"action"`
	Matches           []LenderMatch `json:"matches,omitempty"`
	CompletionPercent int           `json:"completionPercentage"`
}

// HistorySummary is the summary block of GET /api/chat/history/{id}.
type HistorySummary struct {
	MessageCount        int       `json:"messageCount"`
	DurationMinutes     float64   `json:"durationMinutes"`
	ParametersCollected []string  `json:"parametersCollected"`
	LastActivity        time.Time `json:"lastActivity"`
}
