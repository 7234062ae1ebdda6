// Copyright (C) 2025 Finsage Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "time"

// =============================================================================
// Session Model
// =============================================================================

// SessionTTL is the hard lifetime of a session from creation.
const SessionTTL = 24 * time.Hour

// SessionStatus enumerates the session lifecycle states.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionExpired   SessionStatus = "expired"
)

// Session is the per-conversation root record. A session is usable iff
// Status == active and now < ExpiresAt.
type Session struct {
	ID          string        `json:"sessionId"`
	Status      SessionStatus `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`
	LastTouched time.Time     `json:"lastTouched"`
	ExpiresAt   time.Time     `json:"expiresAt"`
	UserAgent   string        `json:"userAgent,omitempty"`
	ClientIP    string        `json:"clientIP,omitempty"`
}

// Usable reports whether the session accepts new turns at the given time.
func (s *Session) Usable(now time.Time) bool {
	return s.Status == SessionActive && now.Before(s.ExpiresAt)
}

// =============================================================================
// Parameter Tracking
// =============================================================================

// ParameterTracking mirrors the five required-field booleans plus the
// derived completion percent. The booleans and the percent are always
// written in the same transaction as the underlying parameter value, so a
// reader can never observe them out of sync.
type ParameterTracking struct {
	HasLoanAmount       bool `json:"hasLoanAmount"`
	HasAnnualIncome     bool `json:"hasAnnualIncome"`
	HasEmploymentStatus bool `json:"hasEmploymentStatus"`
	HasCreditScore      bool `json:"hasCreditScore"`
	HasLoanPurpose      bool `json:"hasLoanPurpose"`
	CompletionPercent   int  `json:"completionPercent"`
}

// TrackingFor derives a consistent tracking row from a parameter set.
func TrackingFor(p *LoanParameters) ParameterTracking {
	t := ParameterTracking{
		HasLoanAmount:       p.Has(FieldLoanAmount),
		HasAnnualIncome:     p.Has(FieldAnnualIncome),
		HasEmploymentStatus: p.Has(FieldEmploymentStatus),
		HasCreditScore:      p.Has(FieldCreditScore),
		HasLoanPurpose:      p.Has(FieldLoanPurpose),
	}
	count := 0
	for _, b := range []bool{
		t.HasLoanAmount, t.HasAnnualIncome, t.HasEmploymentStatus,
		t.HasCreditScore, t.HasLoanPurpose,
	} {
		if b {
			count++
		}
	}
	t.CompletionPercent = 20 * count
	return t
}

// IsComplete reports whether every required boolean is set.
func (t ParameterTracking) IsComplete() bool {
	return t.CompletionPercent == 100
}

// Has reports the boolean for the named required field.
func (t ParameterTracking) Has(field string) bool {
	switch field {
	case FieldLoanAmount:
		return t.HasLoanAmount
	case FieldAnnualIncome:
		return t.HasAnnualIncome
	case FieldEmploymentStatus:
		return t.HasEmploymentStatus
	case FieldCreditScore:
		return t.HasCreditScore
	case FieldLoanPurpose:
		return t.HasLoanPurpose
	}
	return false
}

// =============================================================================
// Session Snapshot
// =============================================================================

// SessionSnapshot bundles the session row with its dependent state, as
// returned by Store.Load. Parameters and History are copies; mutating them
// does not touch persisted state.
type SessionSnapshot struct {
	Session    Session
	Parameters *LoanParameters
	Tracking   ParameterTracking
	History    []ChatMessage
}
