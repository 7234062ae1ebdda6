// Copyright (C) 2025 Finsage Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store persists sessions, conversation history, loan parameters,
// tracking rows, and match results.
//
// Two implementations share the Store interface: PostgresStore for
// production and MemoryStore for tests and single-node development. Both
// give the same guarantees: mutations leave the dependent rows consistent,
// history is append-only with strictly increasing ids, and a parameter
// write lands in the same transaction as its tracking update.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/finsagelabs/finsage/services/advisor/datatypes"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrNotFound means the session id does not exist.
	ErrNotFound = errors.New("store: session not found")

	// ErrExpired means the session exists but is past its expiry (or was
	// swept). Expired sessions never accept writes and read as gone.
	ErrExpired = errors.New("store: session expired")

	// ErrClosed means the session was explicitly completed. Reads still
	// work; writes are refused.
	ErrClosed = errors.New("store: session closed")

	// ErrUnavailable means the backing storage could not be reached.
	ErrUnavailable = errors.New("store: storage unavailable")
)

// =============================================================================
// Store Interface
// =============================================================================

// Fingerprint is the optional client identity recorded at session open.
type Fingerprint struct {
	UserAgent string
	ClientIP  string
}

// Store is the session persistence contract.
//
// Read operations return copies; callers can never alias internal state.
// Write operations against an expired session fail with ErrExpired, against
// a completed session with ErrClosed.
type Store interface {
	// Open allocates a fresh session with status active and expiry
	// now + SessionTTL, atomically creating the empty parameter and
	// tracking rows.
	Open(ctx context.Context, fp Fingerprint) (datatypes.Session, error)

	// Load returns the session with its parameters, tracking row, and
	// ordered history. Fails with ErrNotFound or ErrExpired. Completed
	// sessions load normally so their history and results stay readable.
	Load(ctx context.Context, sessionID string) (*datatypes.SessionSnapshot, error)

	// AppendMessage atomically appends one history record and returns it
	// with its assigned id and timestamp.
	AppendMessage(ctx context.Context, sessionID string, role datatypes.MessageRole,
		content string, agentType datatypes.AgentType, metadata json.RawMessage) (datatypes.ChatMessage, error)

	// Touch updates the session's last-touched timestamp.
	Touch(ctx context.Context, sessionID string) error

	// Close marks the session completed. Idempotent.
	Close(ctx context.Context, sessionID string) error

	// Delete removes the session and all dependent rows.
	Delete(ctx context.Context, sessionID string) error

	// SweepExpired flips every active session past its expiry to expired
	// and returns how many were flipped.
	SweepExpired(ctx context.Context, now time.Time) (int, error)

	// ActiveCount reports how many sessions are active and unexpired at
	// now. The expiry sweep re-bases the active-sessions gauge from it.
	ActiveCount(ctx context.Context, now time.Time) (int, error)

	// SetParameter persists a validated parameter value and its tracking
	// boolean/percent in one transaction, and returns the updated
	// tracking row.
	SetParameter(ctx context.Context, sessionID string, value datatypes.ParameterValue) (datatypes.ParameterTracking, error)

	// Parameters returns the current parameter set and tracking row.
	Parameters(ctx context.Context, sessionID string) (*datatypes.LoanParameters, datatypes.ParameterTracking, error)

	// ReplaceMatches atomically replaces all match rows for the session.
	ReplaceMatches(ctx context.Context, sessionID string, matches []datatypes.LenderMatch) error

	// Matches returns the persisted match rows ordered by rank.
	Matches(ctx context.Context, sessionID string) ([]datatypes.LenderMatch, error)

	// LockSession serialises write batches for one session. The returned
	// func releases the lock. The lock is a logical per-key mutex; it is
	// never held across LLM calls - callers batch their reads and writes
	// at the turn boundaries instead.
	LockSession(sessionID string) func()

	// Ping reports storage reachability for health checks.
	Ping(ctx context.Context) error
}
