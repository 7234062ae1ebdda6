// Copyright (C) 2025 Finsage Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides the data structures for the advisor service.
//
// This file contains the loan parameter model: the five required fields the
// conversational flow collects, the two optional ones, the per-field domain
// validation, and the colloquial amount normalisation (lakh / crore) applied
// before validation.
package datatypes

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// =============================================================================
// Field Names and Domains
// =============================================================================

// Canonical parameter field names. These appear in API payloads, in the
// parameter_tracking relation, and in extraction results.
const (
	FieldLoanAmount         = "loanAmount"
	FieldAnnualIncome       = "annualIncome"
	FieldEmploymentStatus   = "employmentStatus"
	FieldCreditScore        = "creditScore"
	FieldLoanPurpose        = "loanPurpose"
	FieldDebtToIncomeRatio  = "debtToIncomeRatio"
	FieldEmploymentDuration = "employmentDuration"
)

// RequiredFields is the fixed priority order used when deciding which
// parameter to ask for next. The order is load-bearing: the conversation
// agent always requests the first missing entry.
var RequiredFields = []string{
	FieldLoanAmount,
	FieldAnnualIncome,
	FieldEmploymentStatus,
	FieldCreditScore,
	FieldLoanPurpose,
}

// Amount bounds, in INR.
const (
	MinLoanAmount   int64 = 100_000
	MaxLoanAmount   int64 = 100_000_000
	MinAnnualIncome int64 = 100_000
	MaxAnnualIncome int64 = 50_000_000

	MinCreditScore = 300
	MaxCreditScore = 850
)

// EmploymentStatuses enumerates the accepted employment values.
var EmploymentStatuses = []string{
	"salaried", "self-employed", "freelancer", "student", "unemployed",
}

// LoanPurposes enumerates the accepted loan purpose values.
var LoanPurposes = []string{
	"home", "vehicle", "education", "business", "startup",
	"eco", "emergency", "gold-backed", "personal",
}

// =============================================================================
// Loan Parameters
// =============================================================================

// LoanParameters holds the structured loan profile collected from the
// conversation. A nil pointer means the field has not been collected yet;
// a present field is always valid (invalid values are rejected before any
// write, see Validate and the tracker).
type LoanParameters struct {
	LoanAmount         *int64   `json:"loanAmount,omitempty"`
	AnnualIncome       *int64   `json:"annualIncome,omitempty"`
	EmploymentStatus   *string  `json:"employmentStatus,omitempty"`
	CreditScore        *int     `json:"creditScore,omitempty"`
	LoanPurpose        *string  `json:"loanPurpose,omitempty"`
	DebtToIncomeRatio  *float64 `json:"debtToIncomeRatio,omitempty"`
	EmploymentDuration *int     `json:"employmentDuration,omitempty"`
}

// Has reports whether the named required field has been collected.
func (p *LoanParameters) Has(field string) bool {
	switch field {
	case FieldLoanAmount:
		return p.LoanAmount != nil
	case FieldAnnualIncome:
		return p.AnnualIncome != nil
	case FieldEmploymentStatus:
		return p.EmploymentStatus != nil
	case FieldCreditScore:
		return p.CreditScore != nil
	case FieldLoanPurpose:
		return p.LoanPurpose != nil
	case FieldDebtToIncomeRatio:
		return p.DebtToIncomeRatio != nil
	case FieldEmploymentDuration:
		return p.EmploymentDuration != nil
	}
	return false
}

// IsComplete reports whether all five required fields are present.
func (p *LoanParameters) IsComplete() bool {
	for _, f := range RequiredFields {
		if !p.Has(f) {
			return false
		}
	}
	return true
}

// Missing returns the absent required fields in priority order.
func (p *LoanParameters) Missing() []string {
	var missing []string
	for _, f := range RequiredFields {
		if !p.Has(f) {
			missing = append(missing, f)
		}
	}
	return missing
}

// Collected returns the present required fields in priority order.
func (p *LoanParameters) Collected() []string {
	var have []string
	for _, f := range RequiredFields {
		if p.Has(f) {
			have = append(have, f)
		}
	}
	return have
}

// Clone returns a deep copy. The store hands out clones so callers can
// never alias persisted state.
func (p *LoanParameters) Clone() *LoanParameters {
	out := &LoanParameters{}
	if p.LoanAmount != nil {
		v := *p.LoanAmount
		out.LoanAmount = &v
	}
	if p.AnnualIncome != nil {
		v := *p.AnnualIncome
		out.AnnualIncome = &v
	}
	if p.EmploymentStatus != nil {
		v := *p.EmploymentStatus
		out.EmploymentStatus = &v
	}
	if p.CreditScore != nil {
		v := *p.CreditScore
		out.CreditScore = &v
	}
	if p.LoanPurpose != nil {
		v := *p.LoanPurpose
		out.LoanPurpose = &v
	}
	if p.DebtToIncomeRatio != nil {
		v := *p.DebtToIncomeRatio
		out.DebtToIncomeRatio = &v
	}
	if p.EmploymentDuration != nil {
		v := *p.EmploymentDuration
		out.EmploymentDuration = &v
	}
	return out
}

// =============================================================================
// Parameter Values
// =============================================================================

// ParameterValue is a validated, normalised value for a single field,
// ready to be committed by the tracker. Exactly one of the typed fields is
// meaningful depending on Field.
type ParameterValue struct {
	Field  string
	Int    int64
	Float  float64
	String string
}

// ValidationError reports a value that failed its field's domain check.
// The field name is surfaced to API callers on 400 responses.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid value for %s: %s", e.Field, e.Reason)
}

// ParseParameter validates a raw value against the named field's domain and
// returns the normalised ParameterValue. Monetary fields get the lakh/crore
// magnitude normalisation first. Unknown field names and out-of-domain
// values yield a *ValidationError.
func ParseParameter(field string, raw any) (ParameterValue, error) {
	switch field {
	case FieldLoanAmount:
		amt, ok := coerceAmount(raw)
		if !ok {
			return ParameterValue{}, &ValidationError{Field: field, Reason: "not a number"}
		}
		if amt < MinLoanAmount || amt > MaxLoanAmount {
			return ParameterValue{}, &ValidationError{
				Field:  field,
				Reason: fmt.Sprintf("must be between %d and %d INR", MinLoanAmount, MaxLoanAmount),
			}
		}
		return ParameterValue{Field: field, Int: amt}, nil

	case FieldAnnualIncome:
		amt, ok := coerceAmount(raw)
		if !ok {
			return ParameterValue{}, &ValidationError{Field: field, Reason: "not a number"}
		}
		if amt < MinAnnualIncome || amt > MaxAnnualIncome {
			return ParameterValue{}, &ValidationError{
				Field:  field,
				Reason: fmt.Sprintf("must be between %d and %d INR", MinAnnualIncome, MaxAnnualIncome),
			}
		}
		return ParameterValue{Field: field, Int: amt}, nil

	case FieldEmploymentStatus:
		s, ok := coerceString(raw)
		if !ok || !contains(EmploymentStatuses, s) {
			return ParameterValue{}, &ValidationError{
				Field:  field,
				Reason: "must be one of " + strings.Join(EmploymentStatuses, ", "),
			}
		}
		return ParameterValue{Field: field, String: s}, nil

	case FieldCreditScore:
		n, ok := coerceInt(raw)
		if !ok {
			return ParameterValue{}, &ValidationError{Field: field, Reason: "not a number"}
		}
		if n < MinCreditScore || n > MaxCreditScore {
			return ParameterValue{}, &ValidationError{
				Field:  field,
				Reason: fmt.Sprintf("must be between %d and %d", MinCreditScore, MaxCreditScore),
			}
		}
		return ParameterValue{Field: field, Int: int64(n)}, nil

	case FieldLoanPurpose:
		s, ok := coerceString(raw)
		if !ok || !contains(LoanPurposes, s) {
			return ParameterValue{}, &ValidationError{
				Field:  field,
				Reason: "must be one of " + strings.Join(LoanPurposes, ", "),
			}
		}
		return ParameterValue{Field: field, String: s}, nil

	case FieldDebtToIncomeRatio:
		f, ok := coerceFloat(raw)
		if !ok || f < 0 || f > 1 {
			return ParameterValue{}, &ValidationError{Field: field, Reason: "must be between 0 and 1"}
		}
		return ParameterValue{Field: field, Float: f}, nil

	case FieldEmploymentDuration:
		n, ok := coerceInt(raw)
		if !ok || n < 0 {
			return ParameterValue{}, &ValidationError{Field: field, Reason: "must be a non-negative number of months"}
		}
		return ParameterValue{Field: field, Int: int64(n)}, nil
	}

	return ParameterValue{}, &ValidationError{Field: field, Reason: "unknown parameter"}
}

// Apply writes the value into the parameter set. The value must have come
// from ParseParameter; Apply performs no validation of its own.
func (v ParameterValue) Apply(p *LoanParameters) {
	switch v.Field {
	case FieldLoanAmount:
		n := v.Int
		p.LoanAmount = &n
	case FieldAnnualIncome:
		n := v.Int
		p.AnnualIncome = &n
	case FieldEmploymentStatus:
		s := v.String
		p.EmploymentStatus = &s
	case FieldCreditScore:
		n := int(v.Int)
		p.CreditScore = &n
	case FieldLoanPurpose:
		s := v.String
		p.LoanPurpose = &s
	case FieldDebtToIncomeRatio:
		f := v.Float
		p.DebtToIncomeRatio = &f
	case FieldEmploymentDuration:
		n := int(v.Int)
		p.EmploymentDuration = &n
	}
}

// =============================================================================
// Amount Normalisation
// =============================================================================

// NormalizeAmount maps a colloquial magnitude onto INR. Users (and the LLM
// echoing them) say "2 crore" or "15 lakhs"; a bare value v is interpreted:
//
//	v <= 10          crores  (x 1e7)
//	10 < v <= 1000   lakhs   (x 1e5)
//	v >= 1e5         already INR
//
// Values landing in the dead zone (1000, 1e5) are returned unchanged and
// will fail bounds validation downstream.
func NormalizeAmount(v float64) int64 {
	switch {
	case v <= 0:
		return int64(math.Round(v))
	case v <= 10:
		return int64(math.Round(v * 1e7))
	case v <= 1000:
		return int64(math.Round(v * 1e5))
	default:
		return int64(math.Round(v))
	}
}

// coerceAmount accepts numeric or numeric-string input and applies
// NormalizeAmount.
func coerceAmount(raw any) (int64, bool) {
	f, ok := coerceFloat(raw)
	if !ok {
		return 0, false
	}
	return NormalizeAmount(f), true
}

func coerceFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(v, ",", ""))
		s = strings.TrimPrefix(s, "₹")
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func coerceInt(raw any) (int, bool) {
	f, ok := coerceFloat(raw)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

func coerceString(raw any) (string, bool) {
	s, ok := raw.(string)
	if !ok {
		return "", false
	}
	s = strings.ToLower(strings.TrimSpace(s))
	return s, s != ""
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
