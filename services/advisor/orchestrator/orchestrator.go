// Copyright (C) 2025 Finsage Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package orchestrator drives one chat turn end to end.
//
// The orchestrator is the only external entry point for conversation:
// it runs the extraction agent over the new utterance, asks the
// conversation agent for the reply, resolves tool-call directives inline,
// and triggers scoring the moment the profile completes.
//
// Storage reads and writes are batched at the turn boundaries under the
// store's per-session lock; the lock is never held across an LLM call.
// The tracker's atomic parameter write is the correctness point for
// concurrent turns on the same session.
//
// Failure policy: agent failures degrade, storage failures surface. An LLM
// error during extraction is treated as "nothing learned"; an LLM error
// during reply generation falls back to a deterministic question for the
// top-priority missing field. The user always gets a reply. Errors from
// session validation or history writes abort the turn before any further
// state is committed.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/finsagelabs/finsage/services/advisor/agents"
	"github.com/finsagelabs/finsage/services/advisor/datatypes"
	"github.com/finsagelabs/finsage/services/advisor/observability"
	"github.com/finsagelabs/finsage/services/advisor/scoring"
	"github.com/finsagelabs/finsage/services/advisor/store"
	"github.com/finsagelabs/finsage/services/advisor/tracker"
)

const tracerName = "finsage/advisor/orchestrator"

// =============================================================================
// Orchestrator
// =============================================================================

// Orchestrator coordinates the two agents, the tracker, and the scoring
// engine for chat turns.
//
// # Thread Safety
//
// Safe for concurrent use. Turns for different sessions run fully in
// parallel; concurrent turns on the same session are safe because every
// storage mutation is individually atomic and batched writes take the
// store's per-session lock.
type Orchestrator struct {
	store        store.Store
	tracker      *tracker.Tracker
	extraction   *agents.ExtractionAgent
	conversation *agents.ConversationAgent
	engine       *scoring.Engine
	tracer       trace.Tracer
}

// New wires an Orchestrator from its collaborators.
func New(st store.Store, tr *tracker.Tracker, ext *agents.ExtractionAgent,
	conv *agents.ConversationAgent, eng *scoring.Engine) *Orchestrator {

	return &Orchestrator{
		store:        st,
		tracker:      tr,
		extraction:   ext,
		conversation: conv,
		engine:       eng,
		tracer:       otel.Tracer(tracerName),
	}
}

// =============================================================================
// Chat Turn
// =============================================================================

// HandleTurn runs one chat turn for the session.
//
// # Description
//
// Appends the user message, mines parameters from it, produces the bot
// reply (resolving any tool-call directive inline), scores lenders when
// the profile just completed, appends the bot message with its action
// metadata, and touches the session.
//
// # Inputs
//
//   - ctx: turn context; cancellation aborts in-flight LLM calls
//   - sessionID: validated v4 UUID of an existing session
//   - userText: the user's utterance, already length-checked
//
// # Outputs
//
//   - *datatypes.TurnResult: reply, action, optional matches, completion
//   - error: store.ErrNotFound / ErrExpired / ErrClosed, or a storage error
//
// # Limitations
//
//   - The agent phase runs outside the session lock, so a pathological
//     client sending parallel turns can interleave replies; parameter
//     state stays consistent regardless.
func (o *Orchestrator) HandleTurn(ctx context.Context, sessionID, userText string) (*datatypes.TurnResult, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.HandleTurn",
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()
	started := time.Now()

	history, err := o.openTurn(ctx, sessionID, userText)
	if err != nil {
		return nil, err
	}

	// Agent phase, lock-free.
	learned := o.extract(ctx, sessionID, history, userText)

	params, tracking, err := o.tracker.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	missing := params.Missing()

	reply := o.reply(ctx, sessionID, history, params, missing, learned)

	action := datatypes.ActionContinue
	var matches []datatypes.LenderMatch
	if tracking.IsComplete() {
		matches, err = o.score(ctx, sessionID, params)
		if err != nil {
			slog.Error("matching failed during turn",
				"session_id", sessionID, "error", err)
			observability.DefaultMetrics().ScoringRuns.WithLabelValues("failed").Inc()
			action = datatypes.ActionMatchingFailed
		} else {
			action = datatypes.ActionTriggerMatch
		}
	}

	if err := o.closeTurn(ctx, sessionID, reply, action, tracking.CompletionPercent, matches); err != nil {
		return nil, err
	}

	observability.DefaultMetrics().TurnDuration.Observe(time.Since(started).Seconds())
	return &datatypes.TurnResult{
		SessionID:         sessionID,
		Reply:             reply,
		Action:            action,
		Matches:           matches,
		CompletionPercent: tracking.CompletionPercent,
	}, nil
}

// openTurn is the first locked batch: validate the session and append the
// user message. Returns the history including the new message.
func (o *Orchestrator) openTurn(ctx context.Context, sessionID, userText string) ([]datatypes.ChatMessage, error) {
	unlock := o.store.LockSession(sessionID)
	defer unlock()

	snap, err := o.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if snap.Session.Status == datatypes.SessionCompleted {
		return nil, store.ErrClosed
	}
	if !snap.Session.Usable(time.Now()) {
		return nil, store.ErrExpired
	}

	userMsg, err := o.store.AppendMessage(ctx, sessionID, datatypes.RoleUser, userText, "", nil)
	if err != nil {
		return nil, err
	}
	return append(snap.History, userMsg), nil
}

// closeTurn is the final locked batch: persist match rows when present,
// append the bot reply with its metadata, and touch the session.
func (o *Orchestrator) closeTurn(ctx context.Context, sessionID, reply, action string,
	completionPercent int, matches []datatypes.LenderMatch) error {

	unlock := o.store.LockSession(sessionID)
	defer unlock()

	if len(matches) > 0 {
		if err := o.store.ReplaceMatches(ctx, sessionID, matches); err != nil {
			return err
		}
	}

	meta, _ := json.Marshal(datatypes.BotMetadata{
		Action:            action,
		CompletionPercent: completionPercent,
	})
	if _, err := o.store.AppendMessage(ctx, sessionID, datatypes.RoleBot, reply,
		datatypes.AgentConversation, meta); err != nil {
		return err
	}
	return o.store.Touch(ctx, sessionID)
}

// extract runs the extraction agent and commits what it found. Agent
// errors and per-field validation rejects are swallowed; the return is
// the set of fields that actually changed state.
func (o *Orchestrator) extract(ctx context.Context, sessionID string,
	history []datatypes.ChatMessage, utterance string) map[string]datatypes.ParameterValue {

	ctx, span := o.tracer.Start(ctx, "orchestrator.extract")
	defer span.End()

	started := time.Now()
	found, err := o.extraction.Extract(ctx, history, utterance)
	observability.DefaultMetrics().RecordLLMCall("extraction", time.Since(started).Seconds(), err)
	if err != nil {
		slog.Warn("extraction agent unavailable, continuing without",
			"session_id", sessionID, "error", err)
		return nil
	}

	learned := make(map[string]datatypes.ParameterValue)
	for field, value := range found {
		if _, err := o.tracker.Set(ctx, sessionID, field, rawOf(value)); err != nil {
			var verr *datatypes.ValidationError
			if errors.As(err, &verr) {
				slog.Debug("extracted value rejected",
					"session_id", sessionID, "field", field, "reason", verr.Reason)
				continue
			}
			slog.Error("parameter commit failed",
				"session_id", sessionID, "field", field, "error", err)
			continue
		}
		learned[field] = value
	}
	return learned
}

// reply produces the bot's user-visible text, resolving a tool-call
// directive per the inline rules: acknowledge when extraction learned
// something this turn, otherwise fall back to the deterministic question.
func (o *Orchestrator) reply(ctx context.Context, sessionID string,
	history []datatypes.ChatMessage, params *datatypes.LoanParameters,
	missing []string, learned map[string]datatypes.ParameterValue) string {

	ctx, span := o.tracer.Start(ctx, "orchestrator.reply")
	defer span.End()

	started := time.Now()
	prose, directive, err := o.conversation.Reply(ctx, history, params, missing)
	observability.DefaultMetrics().RecordLLMCall("conversation", time.Since(started).Seconds(), err)
	if err != nil {
		slog.Warn("conversation agent unavailable, using fallback question",
			"session_id", sessionID, "error", err)
		return agents.FallbackQuestion(missing)
	}

	if directive == nil {
		if prose == "" {
			return agents.FallbackQuestion(missing)
		}
		return prose
	}

	// Tool-call directive. The extraction pass already ran over this
	// utterance, so the directive only earns an acknowledgement when that
	// pass learned something; otherwise it is discarded.
	if len(learned) == 0 {
		return agents.FallbackQuestion(missing)
	}

	next := ""
	if len(missing) > 0 {
		next = missing[0]
	}
	ack, err := o.conversation.Acknowledge(ctx, learned, next)
	if err != nil || ack == "" {
		slog.Warn("acknowledgement synthesis failed, using fallback question",
			"session_id", sessionID, "error", err)
		return agents.FallbackQuestion(missing)
	}
	return ack
}

// =============================================================================
// Matching
// =============================================================================

// RunMatching scores the full lender set for a complete profile and
// persists the replacement match rows. Backs the explicit match endpoint.
func (o *Orchestrator) RunMatching(ctx context.Context, sessionID string) ([]datatypes.LenderMatch, error) {
	snap, err := o.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !snap.Tracking.IsComplete() {
		return nil, scoring.ErrIncomplete
	}

	matches, err := o.score(ctx, sessionID, snap.Parameters)
	if err != nil {
		observability.DefaultMetrics().ScoringRuns.WithLabelValues("failed").Inc()
		return nil, err
	}

	unlock := o.store.LockSession(sessionID)
	defer unlock()
	if err := o.store.ReplaceMatches(ctx, sessionID, matches); err != nil {
		return nil, err
	}
	return matches, nil
}

// score runs the engine over the full lender set.
func (o *Orchestrator) score(ctx context.Context, sessionID string,
	params *datatypes.LoanParameters) ([]datatypes.LenderMatch, error) {

	_, span := o.tracer.Start(ctx, "orchestrator.score")
	defer span.End()

	matches, err := o.engine.Score(params, scoring.DefaultTopK)
	if err != nil {
		return nil, err
	}
	observability.DefaultMetrics().ScoringRuns.WithLabelValues("ok").Inc()
	slog.Info("matching complete",
		"session_id", sessionID, "matches", len(matches))
	return matches, nil
}

// rawOf re-surfaces the typed value so the tracker's Set path revalidates
// it through the same door as manual parameter updates.
func rawOf(v datatypes.ParameterValue) any {
	switch v.Field {
	case datatypes.FieldLoanAmount, datatypes.FieldAnnualIncome,
		datatypes.FieldCreditScore, datatypes.FieldEmploymentDuration:
		return v.Int
	case datatypes.FieldDebtToIncomeRatio:
		return v.Float
	default:
		return v.String
	}
}
