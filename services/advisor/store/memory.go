// Copyright (C) 2025 Finsage Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/finsagelabs/finsage/services/advisor/datatypes"
)

// MemoryStore is an in-memory implementation of Store for tests and
// single-node development. All state lives behind one RWMutex; per-session
// turn serialisation uses a separate lazily-created mutex per key.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memSession

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

type memSession struct {
	session  datatypes.Session
	params   *datatypes.LoanParameters
	tracking datatypes.ParameterTracking
	history  []datatypes.ChatMessage
	matches  []datatypes.LenderMatch
	nextID   int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*memSession),
		locks:    make(map[string]*sync.Mutex),
	}
}

// Open implements Store.
func (s *MemoryStore) Open(_ context.Context, fp Fingerprint) (datatypes.Session, error) {
	now := time.Now().UTC()
	sess := datatypes.Session{
		ID:          uuid.NewString(),
		Status:      datatypes.SessionActive,
		CreatedAt:   now,
		LastTouched: now,
		ExpiresAt:   now.Add(datatypes.SessionTTL),
		UserAgent:   fp.UserAgent,
		ClientIP:    fp.ClientIP,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = &memSession{
		session: sess,
		params:  &datatypes.LoanParameters{},
		nextID:  1,
	}
	return sess, nil
}

// get returns the live record, applying expiry lazily so a sweeping delay
// never extends a session's life.
func (s *MemoryStore) get(sessionID string) (*memSession, error) {
	rec, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if rec.session.Status == datatypes.SessionExpired ||
		!time.Now().Before(rec.session.ExpiresAt) {
		return nil, ErrExpired
	}
	return rec, nil
}

// getWritable additionally refuses completed sessions.
func (s *MemoryStore) getWritable(sessionID string) (*memSession, error) {
	rec, err := s.get(sessionID)
	if err != nil {
		return nil, err
	}
	if rec.session.Status == datatypes.SessionCompleted {
		return nil, ErrClosed
	}
	return rec, nil
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context, sessionID string) (*datatypes.SessionSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := s.get(sessionID)
	if err != nil {
		return nil, err
	}
	snap := &datatypes.SessionSnapshot{
		Session:    rec.session,
		Parameters: rec.params.Clone(),
		Tracking:   rec.tracking,
		History:    append([]datatypes.ChatMessage(nil), rec.history...),
	}
	return snap, nil
}

// AppendMessage implements Store.
func (s *MemoryStore) AppendMessage(_ context.Context, sessionID string, role datatypes.MessageRole,
	content string, agentType datatypes.AgentType, metadata json.RawMessage) (datatypes.ChatMessage, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.getWritable(sessionID)
	if err != nil {
		return datatypes.ChatMessage{}, err
	}

	msg := datatypes.ChatMessage{
		ID:        rec.nextID,
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		AgentType: agentType,
		Metadata:  append(json.RawMessage(nil), metadata...),
		CreatedAt: time.Now().UTC(),
	}
	rec.nextID++
	rec.history = append(rec.history, msg)
	return msg, nil
}

// Touch implements Store.
func (s *MemoryStore) Touch(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.get(sessionID)
	if err != nil {
		return err
	}
	rec.session.LastTouched = time.Now().UTC()
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.get(sessionID)
	if err != nil {
		return err
	}
	rec.session.Status = datatypes.SessionCompleted
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return ErrNotFound
	}
	delete(s.sessions, sessionID)
	return nil
}

// SweepExpired implements Store.
func (s *MemoryStore) SweepExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	swept := 0
	for _, rec := range s.sessions {
		if rec.session.Status == datatypes.SessionActive && !now.Before(rec.session.ExpiresAt) {
			rec.session.Status = datatypes.SessionExpired
			swept++
		}
	}
	return swept, nil
}

// ActiveCount implements Store. Sessions past expiry but not yet swept
// do not count; the gauge should track usable sessions.
func (s *MemoryStore) ActiveCount(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, rec := range s.sessions {
		if rec.session.Status == datatypes.SessionActive && now.Before(rec.session.ExpiresAt) {
			n++
		}
	}
	return n, nil
}

// SetParameter implements Store. The value write and the tracking update
// happen under the same lock, so readers observe them together.
func (s *MemoryStore) SetParameter(_ context.Context, sessionID string,
	value datatypes.ParameterValue) (datatypes.ParameterTracking, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.getWritable(sessionID)
	if err != nil {
		return datatypes.ParameterTracking{}, err
	}

	value.Apply(rec.params)
	rec.tracking = datatypes.TrackingFor(rec.params)
	return rec.tracking, nil
}

// Parameters implements Store.
func (s *MemoryStore) Parameters(_ context.Context, sessionID string) (*datatypes.LoanParameters, datatypes.ParameterTracking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := s.get(sessionID)
	if err != nil {
		return nil, datatypes.ParameterTracking{}, err
	}
	return rec.params.Clone(), rec.tracking, nil
}

// ReplaceMatches implements Store.
func (s *MemoryStore) ReplaceMatches(_ context.Context, sessionID string, matches []datatypes.LenderMatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.get(sessionID)
	if err != nil {
		return err
	}
	rec.matches = append([]datatypes.LenderMatch(nil), matches...)
	return nil
}

// Matches implements Store.
func (s *MemoryStore) Matches(_ context.Context, sessionID string) ([]datatypes.LenderMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := s.get(sessionID)
	if err != nil {
		return nil, err
	}
	return append([]datatypes.LenderMatch(nil), rec.matches...), nil
}

// LockSession implements Store.
func (s *MemoryStore) LockSession(sessionID string) func() {
	s.lockMu.Lock()
	m, ok := s.locks[sessionID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[sessionID] = m
	}
	s.lockMu.Unlock()

	m.Lock()
	return m.Unlock
}

// Ping implements Store.
func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
