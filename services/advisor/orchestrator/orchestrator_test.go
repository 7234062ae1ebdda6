// Copyright (C) 2025 Finsage Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsagelabs/finsage/services/advisor/agents"
	"github.com/finsagelabs/finsage/services/advisor/catalogue"
	"github.com/finsagelabs/finsage/services/advisor/datatypes"
	"github.com/finsagelabs/finsage/services/advisor/scoring"
	"github.com/finsagelabs/finsage/services/advisor/store"
	"github.com/finsagelabs/finsage/services/advisor/tracker"
	"github.com/finsagelabs/finsage/services/llm"
)

// fakeLLM serves both agents off one client, the way production wires
// them, dispatching on the prompt's role preamble.
type fakeLLM struct {
	extractReply  string
	extractErr    error
	converseReply string
	converseErr   error
	ackReply      string
	ackErr        error

	extractCalls  int
	converseCalls int
	ackCalls      int
}

func (f *fakeLLM) Generate(_ context.Context, prompt string, _ llm.GenerationParams) (string, error) {
	switch {
	case strings.HasPrefix(prompt, "You extract"):
		f.extractCalls++
		return f.extractReply, f.extractErr
	case strings.HasPrefix(prompt, "You are a friendly loan advisor"):
		f.ackCalls++
		return f.ackReply, f.ackErr
	default:
		f.converseCalls++
		return f.converseReply, f.converseErr
	}
}

func (f *fakeLLM) HealthCheck(context.Context) bool { return true }

// timeAfterTTL is a sweep instant past every open session's expiry.
func timeAfterTTL() time.Time {
	return time.Now().Add(datatypes.SessionTTL + time.Minute)
}

type fixture struct {
	orc       *Orchestrator
	store     *store.MemoryStore
	tracker   *tracker.Tracker
	sessionID string
}

func newFixture(t *testing.T, client llm.Client) fixture {
	t.Helper()

	st := store.NewMemoryStore()
	sess, err := st.Open(context.Background(), store.Fingerprint{ClientIP: "127.0.0.1"})
	require.NoError(t, err)

	cat, err := catalogue.Load()
	require.NoError(t, err)

	tr := tracker.New(st)
	orc := New(st, tr,
		agents.NewExtractionAgent(client),
		agents.NewConversationAgent(client),
		scoring.NewEngine(cat, nil))
	return fixture{orc: orc, store: st, tracker: tr, sessionID: sess.ID}
}

// fill sets every required field except the ones named.
func (f fixture) fill(t *testing.T, except ...string) {
	t.Helper()
	skip := make(map[string]bool, len(except))
	for _, field := range except {
		skip[field] = true
	}
	values := map[string]any{
		datatypes.FieldLoanAmount:       2_000_000,
		datatypes.FieldAnnualIncome:     1_500_000,
		datatypes.FieldEmploymentStatus: "salaried",
		datatypes.FieldCreditScore:      760,
		datatypes.FieldLoanPurpose:      "vehicle",
	}
	for field, raw := range values {
		if skip[field] {
			continue
		}
		_, err := f.tracker.Set(context.Background(), f.sessionID, field, raw)
		require.NoError(t, err)
	}
}

func (f fixture) botMetadata(t *testing.T) datatypes.BotMetadata {
	t.Helper()
	snap, err := f.store.Load(context.Background(), f.sessionID)
	require.NoError(t, err)
	require.NotEmpty(t, snap.History)
	last := snap.History[len(snap.History)-1]
	require.Equal(t, datatypes.RoleBot, last.Role)

	var meta datatypes.BotMetadata
	require.NoError(t, json.Unmarshal(last.Metadata, &meta))
	return meta
}

func TestHandleTurnPlainConversation(t *testing.T) {
	client := &fakeLLM{
		extractReply:  `{}`,
		converseReply: "Hi! How much would you like to borrow?",
	}
	f := newFixture(t, client)

	result, err := f.orc.HandleTurn(context.Background(), f.sessionID, "hello")
	require.NoError(t, err)

	assert.Equal(t, datatypes.ActionContinue, result.Action)
	assert.Equal(t, "Hi! How much would you like to borrow?", result.Reply)
	assert.Equal(t, 0, result.CompletionPercent)
	assert.Empty(t, result.Matches)

	snap, err := f.store.Load(context.Background(), f.sessionID)
	require.NoError(t, err)
	require.Len(t, snap.History, 2)
	assert.Equal(t, datatypes.RoleUser, snap.History[0].Role)
	assert.Equal(t, "hello", snap.History[0].Content)
	assert.Equal(t, datatypes.ActionContinue, f.botMetadata(t).Action)
}

func TestHandleTurnLearnsParameters(t *testing.T) {
	client := &fakeLLM{
		extractReply:  `{"loanAmount": 2000000, "loanPurpose": "car"}`,
		converseReply: "Noted. What is your annual income?",
	}
	f := newFixture(t, client)

	result, err := f.orc.HandleTurn(context.Background(), f.sessionID,
		"I want a 20 lakh car loan")
	require.NoError(t, err)

	assert.Equal(t, datatypes.ActionContinue, result.Action)
	assert.Equal(t, 40, result.CompletionPercent)

	params, _, err := f.tracker.Get(context.Background(), f.sessionID)
	require.NoError(t, err)
	require.NotNil(t, params.LoanAmount)
	assert.Equal(t, int64(2_000_000), *params.LoanAmount)
	require.NotNil(t, params.LoanPurpose)
	assert.Equal(t, "vehicle", *params.LoanPurpose)
}

func TestHandleTurnCompletionTriggersMatching(t *testing.T) {
	client := &fakeLLM{
		extractReply:  `{"loanPurpose": "vehicle"}`,
		converseReply: "All done, finding your matches now!",
	}
	f := newFixture(t, client)
	f.fill(t, datatypes.FieldLoanPurpose)

	result, err := f.orc.HandleTurn(context.Background(), f.sessionID, "it is for a car")
	require.NoError(t, err)

	assert.Equal(t, datatypes.ActionTriggerMatch, result.Action)
	assert.Equal(t, 100, result.CompletionPercent)
	require.NotEmpty(t, result.Matches)
	assert.Equal(t, 1, result.Matches[0].Rank)

	// Matches were persisted in the same turn.
	stored, err := f.store.Matches(context.Background(), f.sessionID)
	require.NoError(t, err)
	assert.Equal(t, len(result.Matches), len(stored))

	meta := f.botMetadata(t)
	assert.Equal(t, datatypes.ActionTriggerMatch, meta.Action)
	assert.Equal(t, 100, meta.CompletionPercent)
}

func TestHandleTurnToolCallWithLearnedAcknowledges(t *testing.T) {
	client := &fakeLLM{
		extractReply:  `{"annualIncome": 1500000}`,
		converseReply: `{"tool_call": "extract_parameters", "message": "I earn 15 lakh"}`,
		ackReply:      "Got it, ₹15 lakh a year. What best describes your employment?",
	}
	f := newFixture(t, client)
	f.fill(t, datatypes.FieldAnnualIncome, datatypes.FieldEmploymentStatus)

	result, err := f.orc.HandleTurn(context.Background(), f.sessionID, "I earn 15 lakh")
	require.NoError(t, err)

	assert.Equal(t, 1, client.ackCalls)
	assert.Equal(t, "Got it, ₹15 lakh a year. What best describes your employment?", result.Reply)
	assert.Equal(t, datatypes.ActionContinue, result.Action)
	assert.Equal(t, 80, result.CompletionPercent)
}

func TestHandleTurnToolCallWithNothingLearnedFallsBack(t *testing.T) {
	// The directive asks for extraction, but the extraction pass already ran
	// and found nothing, so the directive is discarded.
	client := &fakeLLM{
		extractReply:  `{}`,
		converseReply: `{"tool_call": "extract_parameters", "message": "hmm"}`,
	}
	f := newFixture(t, client)

	result, err := f.orc.HandleTurn(context.Background(), f.sessionID, "hmm")
	require.NoError(t, err)

	assert.Zero(t, client.ackCalls)
	assert.Equal(t, agents.FallbackQuestion([]string{datatypes.FieldLoanAmount}), result.Reply)
}

func TestHandleTurnConversationFailureFallsBack(t *testing.T) {
	client := &fakeLLM{
		extractReply: `{}`,
		converseErr:  errors.New("model unavailable"),
	}
	f := newFixture(t, client)
	f.fill(t, datatypes.FieldCreditScore, datatypes.FieldLoanPurpose)

	result, err := f.orc.HandleTurn(context.Background(), f.sessionID, "ok")
	require.NoError(t, err)

	// Credit score is the highest-priority missing field.
	assert.Contains(t, result.Reply, "credit score")
	assert.Equal(t, datatypes.ActionContinue, result.Action)
}

func TestHandleTurnExtractionFailureIsSilent(t *testing.T) {
	client := &fakeLLM{
		extractErr:    errors.New("model unavailable"),
		converseReply: "How much would you like to borrow?",
	}
	f := newFixture(t, client)

	result, err := f.orc.HandleTurn(context.Background(), f.sessionID, "20 lakh please")
	require.NoError(t, err)
	assert.Equal(t, "How much would you like to borrow?", result.Reply)
	assert.Equal(t, 0, result.CompletionPercent)
}

func TestHandleTurnAcknowledgeFailureFallsBack(t *testing.T) {
	client := &fakeLLM{
		extractReply:  `{"loanAmount": 2000000}`,
		converseReply: `{"tool_call": "extract_parameters", "message": "20 lakh"}`,
		ackErr:        errors.New("model unavailable"),
	}
	f := newFixture(t, client)

	result, err := f.orc.HandleTurn(context.Background(), f.sessionID, "20 lakh")
	require.NoError(t, err)
	assert.Equal(t, agents.FallbackQuestion([]string{datatypes.FieldAnnualIncome}), result.Reply)
}

func TestHandleTurnSessionStates(t *testing.T) {
	client := &fakeLLM{extractReply: `{}`, converseReply: "hi"}

	t.Run("unknown session", func(t *testing.T) {
		f := newFixture(t, client)
		_, err := f.orc.HandleTurn(context.Background(), "44444444-4444-4444-8444-444444444444", "hi")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("closed session", func(t *testing.T) {
		f := newFixture(t, client)
		require.NoError(t, f.store.Close(context.Background(), f.sessionID))
		_, err := f.orc.HandleTurn(context.Background(), f.sessionID, "hi")
		assert.ErrorIs(t, err, store.ErrClosed)
	})

	t.Run("expired session", func(t *testing.T) {
		f := newFixture(t, client)
		_, err := f.store.SweepExpired(context.Background(),
			timeAfterTTL())
		require.NoError(t, err)
		_, err = f.orc.HandleTurn(context.Background(), f.sessionID, "hi")
		assert.ErrorIs(t, err, store.ErrExpired)
	})
}

func TestRunMatching(t *testing.T) {
	client := &fakeLLM{extractReply: `{}`, converseReply: "hi"}

	t.Run("incomplete profile", func(t *testing.T) {
		f := newFixture(t, client)
		f.fill(t, datatypes.FieldLoanPurpose)
		_, err := f.orc.RunMatching(context.Background(), f.sessionID)
		assert.ErrorIs(t, err, scoring.ErrIncomplete)
	})

	t.Run("complete profile persists matches", func(t *testing.T) {
		f := newFixture(t, client)
		f.fill(t)

		matches, err := f.orc.RunMatching(context.Background(), f.sessionID)
		require.NoError(t, err)
		require.NotEmpty(t, matches)

		stored, err := f.store.Matches(context.Background(), f.sessionID)
		require.NoError(t, err)
		assert.Equal(t, len(matches), len(stored))
	})

	t.Run("unknown session", func(t *testing.T) {
		f := newFixture(t, client)
		_, err := f.orc.RunMatching(context.Background(), "55555555-5555-4555-8555-555555555555")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}
