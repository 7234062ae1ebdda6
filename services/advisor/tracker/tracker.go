// Copyright (C) 2025 Finsage Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package tracker implements the per-session parameter state machine.
//
// The tracker is the single write path for loan parameters: every value is
// validated against its field domain before it reaches storage, and the
// tracking booleans plus completion percent are committed in the same
// transaction as the value. An invalid value leaves everything untouched.
package tracker

import (
	"context"
	"log/slog"

	"github.com/finsagelabs/finsage/services/advisor/datatypes"
	"github.com/finsagelabs/finsage/services/advisor/store"
)

// Tracker drives parameter collection for sessions in the given store.
type Tracker struct {
	store store.Store
}

// New creates a Tracker over the store.
func New(st store.Store) *Tracker {
	return &Tracker{store: st}
}

// Set validates raw against the named field's domain and persists it.
// Overwriting is allowed; the newest validated value wins, and setting the
// same value twice yields the same state. A rejected value returns a
// *datatypes.ValidationError and changes nothing.
func (t *Tracker) Set(ctx context.Context, sessionID, field string, raw any) (datatypes.ParameterTracking, error) {
	value, err := datatypes.ParseParameter(field, raw)
	if err != nil {
		return datatypes.ParameterTracking{}, err
	}

	tracking, err := t.store.SetParameter(ctx, sessionID, value)
	if err != nil {
		return datatypes.ParameterTracking{}, err
	}

	slog.Debug("parameter committed",
		"session_id", sessionID,
		"field", field,
		"completion_percent", tracking.CompletionPercent)
	return tracking, nil
}

// Get returns the current parameter set and tracking row.
func (t *Tracker) Get(ctx context.Context, sessionID string) (*datatypes.LoanParameters, datatypes.ParameterTracking, error) {
	return t.store.Parameters(ctx, sessionID)
}

// Missing returns the absent required fields in the fixed priority order.
// This order is the sole tie-break the conversation agent uses when
// deciding what to ask next.
func (t *Tracker) Missing(ctx context.Context, sessionID string) ([]string, error) {
	params, _, err := t.store.Parameters(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return params.Missing(), nil
}

// IsComplete reports whether all five required parameters are present.
func (t *Tracker) IsComplete(ctx context.Context, sessionID string) (bool, error) {
	_, tracking, err := t.store.Parameters(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return tracking.IsComplete(), nil
}
