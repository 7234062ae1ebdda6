// Copyright (C) 2025 Finsage Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package scoring

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeatureVector(t *testing.T) {
	p := vehicleProfile()
	l := vehicleLender()

	v := FeatureVector(p, &l)

	assert.InDelta(t, 2.0, v[0], 1e-6)        // loan / 1e6
	assert.InDelta(t, 3.0, v[1], 1e-6)        // income / 5e5
	assert.InDelta(t, 760.0/850, v[2], 1e-6)  // credit / 850
	assert.InDelta(t, 8.5/20, v[3], 1e-6)     // rate / 20
	assert.InDelta(t, 1.0, v[4], 1e-6)        // employment match
	assert.InDelta(t, 1.0, v[5], 1e-6)        // purpose match
	assert.InDelta(t, 0.0, v[6], 1e-6)        // no special eligibility
	assert.InDelta(t, 0.2, v[7], 1e-6)        // loan / lender max
	assert.InDelta(t, 50.0, v[8], 1e-6)       // income / lender min income
	assert.InDelta(t, 110.0/550, v[9], 1e-6)  // credit headroom
}

func TestFeatureVectorGuardsZeroMinIncome(t *testing.T) {
	p := vehicleProfile()
	l := vehicleLender()
	l.MinIncome = 0

	v := FeatureVector(p, &l)
	assert.Zero(t, v[8])
}

func TestFeatureVectorGuardsZeroMaxLoanAmount(t *testing.T) {
	p := vehicleProfile()
	l := vehicleLender()
	l.MaxLoanAmount = 0

	v := FeatureVector(p, &l)
	assert.Zero(t, v[7])
	assert.False(t, math.IsInf(float64(v[7]), 1))
}

func TestFeatureVectorMismatches(t *testing.T) {
	p := vehicleProfile()
	l := vehicleLender()
	l.EmploymentTypes = []string{"student"}
	l.LoanPurpose = "home"
	l.SpecialEligibility = "luxury"

	v := FeatureVector(p, &l)
	assert.Zero(t, v[4])
	assert.Zero(t, v[5])
	assert.InDelta(t, 1.0, v[6], 1e-6)
}

func writeStandardizer(t *testing.T, s Standardizer) string {
	t.Helper()
	raw, err := json.Marshal(s)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "standardizer.json")
	require.NoError(t, os.WriteFile(path, raw, 0o644))
	return path
}

func identityStandardizer() Standardizer {
	s := Standardizer{
		Mean:      make([]float64, FeatureCount),
		Std:       make([]float64, FeatureCount),
		InputSize: FeatureCount,
	}
	for i := range s.Std {
		s.Std[i] = 1
	}
	return s
}

func TestLoadStandardizer(t *testing.T) {
	t.Run("valid descriptor", func(t *testing.T) {
		path := writeStandardizer(t, identityStandardizer())
		s, err := LoadStandardizer(path)
		require.NoError(t, err)
		assert.Equal(t, FeatureCount, s.InputSize)
	})

	t.Run("wrong dimensions rejected", func(t *testing.T) {
		bad := identityStandardizer()
		bad.Mean = bad.Mean[:4]
		path := writeStandardizer(t, bad)
		_, err := LoadStandardizer(path)
		assert.ErrorContains(t, err, "wrong dimensions")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadStandardizer(filepath.Join(t.TempDir(), "absent.json"))
		assert.Error(t, err)
	})
}

func TestStandardizerApply(t *testing.T) {
	s := identityStandardizer()
	s.Mean[0] = 1
	s.Std[0] = 2
	s.Std[3] = 0 // zero deviation leaves the feature untouched

	v := [FeatureCount]float32{5, 1, 1, 7}
	s.Apply(&v)

	assert.InDelta(t, 2.0, v[0], 1e-6)
	assert.InDelta(t, 1.0, v[1], 1e-6)
	assert.InDelta(t, 7.0, v[3], 1e-6)
}
