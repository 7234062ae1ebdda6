// Copyright (C) 2025 Finsage Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package scoring ranks the lender catalogue against a complete loan
// profile.
//
// Two paths share one contract: the deterministic rule-based scorer, which
// is always available, and the optional neural scorer. When the neural
// path is enabled but fails for a request, that request silently falls
// back to the rules; rankings are idempotent for fixed inputs either way.
package scoring

import (
	"math"
	"sort"
	"time"

	"github.com/finsagelabs/finsage/services/advisor/datatypes"
)

// =============================================================================
// Scoring Weights and Thresholds
// =============================================================================

const (
	weightEligibility    = 0.40
	weightAffordability  = 0.35
	weightSpecialization = 0.25

	// minChecksToQualify is how many of the five eligibility checks a
	// lender must pass to stay in the ranking.
	minChecksToQualify = 4

	// Reference catalogue rate range for the affordability inversion.
	// Used when the live catalogue range is degenerate.
	referenceMinRate = 2.99
	referenceMaxRate = 15.99

	// Specialisation adjustments.
	specBase               = 50
	specPurposeMatch       = 100
	specPurposeMismatch    = 20
	specEligibilityBonus   = 30
	specPremiumCreditBonus = 20
	specLargeAmountBonus   = 15

	premiumCreditThreshold = 750
	largeAmountThreshold   = 100_000

	// Special-eligibility user conditions.
	highIncomeThreshold   = 100_000
	luxuryAmountThreshold = 50_000
)

// =============================================================================
// Rule-Based Scorer
// =============================================================================

// RuleScorer is the deterministic reference scorer.
type RuleScorer struct {
	minRate float64
	maxRate float64
}

// NewRuleScorer builds a scorer using the observed catalogue rate range.
func NewRuleScorer(minRate, maxRate float64) *RuleScorer {
	if maxRate <= minRate {
		minRate, maxRate = referenceMinRate, referenceMaxRate
	}
	return &RuleScorer{minRate: minRate, maxRate: maxRate}
}

// checks holds the five boolean eligibility predicates for one lender.
type checks struct {
	amountInRange  bool
	incomeMeetsMin bool
	creditMeetsMin bool
	employmentOK   bool
	purposeOK      bool
}

func (c checks) passed() int {
	n := 0
	for _, b := range []bool{c.amountInRange, c.incomeMeetsMin, c.creditMeetsMin, c.employmentOK, c.purposeOK} {
		if b {
			n++
		}
	}
	return n
}

// evaluate runs the five checks. The profile must be complete; the
// orchestrator guarantees that before scoring.
func evaluate(p *datatypes.LoanParameters, l *datatypes.Lender) checks {
	monthlyIncome := *p.AnnualIncome / 12
	return checks{
		amountInRange:  *p.LoanAmount >= l.MinLoanAmount && *p.LoanAmount <= l.MaxLoanAmount,
		incomeMeetsMin: monthlyIncome >= l.MinIncome,
		creditMeetsMin: *p.CreditScore >= l.MinCreditScore,
		employmentOK:   l.AcceptsEmployment(*p.EmploymentStatus),
		purposeOK:      l.LoanPurpose == "" || l.LoanPurpose == *p.LoanPurpose,
	}
}

// Score ranks every lender and returns the top k qualifying matches.
func (s *RuleScorer) Score(params *datatypes.LoanParameters, lenders []datatypes.Lender, k int) []datatypes.LenderMatch {
	now := time.Now().UTC()
	var matches []datatypes.LenderMatch

	for i := range lenders {
		l := &lenders[i]
		c := evaluate(params, l)
		if c.passed() < minChecksToQualify {
			continue
		}

		eligibility := 100 * c.passed() / 5
		affordability := s.affordability(l.InterestRate)
		specialization := s.specialization(params, l)
		final := int(math.Round(weightEligibility*float64(eligibility) +
			weightAffordability*float64(affordability) +
			weightSpecialization*float64(specialization)))
		if final <= 0 {
			continue
		}

		m := datatypes.LenderMatch{
			LenderID:            l.ID,
			LenderName:          l.Name,
			InterestRate:        l.InterestRate,
			EligibilityScore:    eligibility,
			AffordabilityScore:  affordability,
			SpecializationScore: specialization,
			FinalScore:          final,
			Confidence:          confidence(params, eligibility),
			Reasons:             buildReasons(params, l, c, eligibility, affordability),
			Warnings:            buildWarnings(params, l),
			CalculatedAt:        now,
		}
		matches = append(matches, m)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].FinalScore != matches[j].FinalScore {
			return matches[i].FinalScore > matches[j].FinalScore
		}
		return matches[i].LenderID < matches[j].LenderID
	})

	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	for i := range matches {
		matches[i].Rank = i + 1
	}
	return matches
}

// affordability inverts the interest rate linearly over the catalogue
// range: the cheapest rate scores 100, the most expensive 0.
func (s *RuleScorer) affordability(rate float64) int {
	score := 100 * (s.maxRate - rate) / (s.maxRate - s.minRate)
	return clamp(int(math.Round(score)))
}

// specialization applies the purpose and feature adjustments.
func (s *RuleScorer) specialization(p *datatypes.LoanParameters, l *datatypes.Lender) int {
	score := specBase
	if l.LoanPurpose != "" {
		if l.LoanPurpose == *p.LoanPurpose {
			score = specPurposeMatch
		} else {
			score = specPurposeMismatch
		}
	}
	if specialBonusApplies(p, l) {
		score += specEligibilityBonus
	}
	if *p.CreditScore >= premiumCreditThreshold && l.HasFeature(datatypes.FeaturePremium) {
		score += specPremiumCreditBonus
	}
	if *p.LoanAmount >= largeAmountThreshold && l.HasFeature(datatypes.FeatureLarge) {
		score += specLargeAmountBonus
	}
	return clamp(score)
}

// specialBonusApplies implements the special-eligibility table: a lender
// tag grants the bonus only when the matching user condition holds.
// The veteran/military tags have no user signal in the profile and never
// apply.
func specialBonusApplies(p *datatypes.LoanParameters, l *datatypes.Lender) bool {
	switch l.SpecialEligibility {
	case "high-income":
		return *p.AnnualIncome >= highIncomeThreshold
	case "student":
		return *p.LoanPurpose == "education"
	case "business":
		return *p.EmploymentStatus == "self-employed"
	case "startup":
		return *p.LoanPurpose == "startup"
	case "eco":
		return *p.LoanPurpose == "eco"
	case "luxury":
		return *p.LoanPurpose == "vehicle" && *p.LoanAmount >= luxuryAmountThreshold
	}
	return false
}

// confidence starts from eligibility and applies the profile-quality
// adjustments.
func confidence(p *datatypes.LoanParameters, eligibility int) int {
	conf := float64(eligibility)
	if p.DebtToIncomeRatio != nil && *p.DebtToIncomeRatio < 0.4 {
		conf += 10
	}
	if p.EmploymentDuration != nil && *p.EmploymentDuration >= 24 {
		conf += 5
	}
	if eligibility < 90 {
		conf *= 0.9
	}
	return clamp(int(math.Round(conf)))
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
