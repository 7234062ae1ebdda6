// Copyright (C) 2025 Finsage Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package scoring

import (
	"fmt"

	"github.com/finsagelabs/finsage/services/advisor/datatypes"
)

// Reason and warning generation is deterministic: the same profile and
// lender always yield the same strings, and both scoring paths share this
// generator so users see consistent explanations. All currency is INR.

func buildReasons(p *datatypes.LoanParameters, l *datatypes.Lender,
	c checks, eligibility, affordability int) []string {

	var reasons []string

	if eligibility == 100 {
		reasons = append(reasons, "meets all eligibility criteria")
	}
	if c.creditMeetsMin {
		reasons = append(reasons, fmt.Sprintf(
			"your credit score of %d clears the lender's minimum of %d",
			*p.CreditScore, l.MinCreditScore))
	}
	switch {
	case affordability >= 80:
		reasons = append(reasons, fmt.Sprintf(
			"competitive interest rate of %.2f%%", l.InterestRate))
	case affordability >= 50:
		reasons = append(reasons, fmt.Sprintf(
			"moderate interest rate of %.2f%%", l.InterestRate))
	}
	if l.LoanPurpose != "" && l.LoanPurpose == *p.LoanPurpose {
		reasons = append(reasons, fmt.Sprintf("specialises in %s loans", l.LoanPurpose))
	}
	if specialBonusApplies(p, l) {
		reasons = append(reasons, fmt.Sprintf(
			"you qualify for the lender's %s programme", l.SpecialEligibility))
	}
	if *p.CreditScore >= premiumCreditThreshold && l.HasFeature(datatypes.FeaturePremium) {
		reasons = append(reasons, "premium benefits available for high credit scores")
	}
	if l.ProcessingTimeDays <= 3 {
		reasons = append(reasons, fmt.Sprintf(
			"fast processing in %d day(s)", l.ProcessingTimeDays))
	}
	return reasons
}

func buildWarnings(p *datatypes.LoanParameters, l *datatypes.Lender) []string {
	var warnings []string

	if float64(*p.LoanAmount) > 0.9*float64(l.MaxLoanAmount) {
		warnings = append(warnings, fmt.Sprintf(
			"requested amount of ₹%d is close to this lender's maximum of ₹%d",
			*p.LoanAmount, l.MaxLoanAmount))
	}

	monthlyIncome := *p.AnnualIncome / 12
	if l.MinIncome > 0 &&
		monthlyIncome >= l.MinIncome &&
		float64(monthlyIncome) < 1.5*float64(l.MinIncome) {
		warnings = append(warnings, fmt.Sprintf(
			"monthly income of ₹%d is close to the lender's minimum of ₹%d",
			monthlyIncome, l.MinIncome))
	}

	creditMargin := *p.CreditScore - l.MinCreditScore
	if creditMargin >= 0 && creditMargin < 50 {
		warnings = append(warnings, fmt.Sprintf(
			"credit score of %d is only %d point(s) above the lender's minimum",
			*p.CreditScore, creditMargin))
	}
	return warnings
}
