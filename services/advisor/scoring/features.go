// Copyright (C) 2025 Finsage Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package scoring

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/finsagelabs/finsage/services/advisor/datatypes"
)

// =============================================================================
// Feature Vector
// =============================================================================

// FeatureCount is the model's fixed input width.
const FeatureCount = 10

// FeatureVector derives the 10-dimensional input for one (profile, lender)
// pair: four normalised magnitudes, three binary compatibilities, three
// ratios. The income ratio is guarded against lenders with no minimum
// income.
func FeatureVector(p *datatypes.LoanParameters, l *datatypes.Lender) [FeatureCount]float32 {
	loan := float64(*p.LoanAmount)
	income := float64(*p.AnnualIncome)
	credit := float64(*p.CreditScore)

	var employmentMatch, purposeMatch, specialPresent float32
	if l.AcceptsEmployment(*p.EmploymentStatus) {
		employmentMatch = 1
	}
	if l.LoanPurpose == "" || l.LoanPurpose == *p.LoanPurpose {
		purposeMatch = 1
	}
	if l.SpecialEligibility != "" {
		specialPresent = 1
	}

	var incomeMultiple float32
	if l.MinIncome > 0 {
		incomeMultiple = float32(income / float64(l.MinIncome))
	}
	var amountUtilisation float32
	if l.MaxLoanAmount > 0 {
		amountUtilisation = float32(loan / float64(l.MaxLoanAmount))
	}

	return [FeatureCount]float32{
		float32(loan / 1e6),
		float32(income / 5e5),
		float32(credit / 850),
		float32(l.InterestRate / 20),
		employmentMatch,
		purposeMatch,
		specialPresent,
		amountUtilisation,
		incomeMultiple,
		float32((credit - float64(l.MinCreditScore)) / 550),
	}
}

// =============================================================================
// Standardisation
// =============================================================================

// Standardizer holds the per-feature mean and standard deviation stored
// alongside the model. Feature order must match FeatureVector.
type Standardizer struct {
	FeatureNames []string  `json:"feature_names"`
	Mean         []float64 `json:"mean"`
	Std          []float64 `json:"std"`
	InputSize    int       `json:"input_size"`
}

// LoadStandardizer reads and validates the standardisation descriptor.
func LoadStandardizer(path string) (*Standardizer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read standardizer %s: %w", path, err)
	}
	var s Standardizer
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("failed to parse standardizer %s: %w", path, err)
	}
	if s.InputSize != FeatureCount ||
		len(s.Mean) != FeatureCount || len(s.Std) != FeatureCount {
		return nil, fmt.Errorf("standardizer %s has wrong dimensions: input_size=%d mean=%d std=%d",
			path, s.InputSize, len(s.Mean), len(s.Std))
	}
	return &s, nil
}

// Apply standardises a feature vector in place. A zero stored deviation
// leaves that feature untouched rather than dividing by zero.
func (s *Standardizer) Apply(v *[FeatureCount]float32) {
	for i := 0; i < FeatureCount; i++ {
		if s.Std[i] == 0 {
			continue
		}
		v[i] = float32((float64(v[i]) - s.Mean[i]) / s.Std[i])
	}
}
