// Copyright (C) 2025 Finsage Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "time"

// =============================================================================
// Lender Catalogue Model
// =============================================================================

// EmploymentAny is the wildcard entry in a lender's accepted employment
// types: the lender accepts every employment status.
const EmploymentAny = "any"

// Lender feature markers recognised by the specialisation scorer.
const (
	FeaturePremium = "premium"
	FeatureLarge   = "large"
)

// Lender is one static catalogue record. The catalogue is read-mostly
// after boot; nothing in the service mutates it.
type Lender struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	InterestRate       float64  `json:"interestRate"`
	MinLoanAmount      int64    `json:"minLoanAmount"`
	MaxLoanAmount      int64    `json:"maxLoanAmount"`
	MinIncome          int64    `json:"minIncome"` // monthly, INR
	MinCreditScore     int      `json:"minCreditScore"`
	EmploymentTypes    []string `json:"employmentTypes"`
	LoanPurpose        string   `json:"loanPurpose,omitempty"`        // specialisation, empty = none
	SpecialEligibility string   `json:"specialEligibility,omitempty"` // bonus tag, empty = none
	ProcessingTimeDays int      `json:"processingTimeDays"`
	Features           []string `json:"features"`
}

// AcceptsEmployment reports whether the lender serves the given employment
// status, honouring the "any" wildcard.
func (l *Lender) AcceptsEmployment(status string) bool {
	for _, t := range l.EmploymentTypes {
		if t == EmploymentAny || t == status {
			return true
		}
	}
	return false
}

// HasFeature reports whether the lender carries the named feature marker.
func (l *Lender) HasFeature(name string) bool {
	for _, f := range l.Features {
		if f == name {
			return true
		}
	}
	return false
}

// =============================================================================
// Lender Matches
// =============================================================================

// LenderMatch is one scored (session, lender) row. All four scores and the
// confidence live in [0, 100]. A scoring run replaces every row for the
// session atomically.
type LenderMatch struct {
	SessionID           string    `json:"sessionId,omitempty"`
	LenderID            string    `json:"lenderId"`
	LenderName          string    `json:"lenderName"`
	InterestRate        float64   `json:"interestRate"`
	EligibilityScore    int       `json:"eligibilityScore"`
	AffordabilityScore  int       `json:"affordabilityScore"`
	SpecializationScore int       `json:"specializationScore"`
	FinalScore          int       `json:"finalScore"`
	Confidence          int       `json:"confidence"`
	Reasons             []string  `json:"reasons"`
	Warnings            []string  `json:"warnings,omitempty"`
	Rank                int       `json:"rank"`
	CalculatedAt        time.Time `json:"calculatedAt"`
}
