// Copyright (C) 2025 Finsage Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package catalogue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsagelabs/finsage/services/advisor/datatypes"
)

func TestLoadEmbeddedSeed(t *testing.T) {
	cat, err := Load()
	require.NoError(t, err)
	require.NotEmpty(t, cat.List())

	minRate, maxRate := cat.Rates()
	assert.InDelta(t, 2.99, minRate, 1e-9)
	assert.InDelta(t, 15.99, maxRate, 1e-9)

	seen := make(map[string]bool)
	for _, l := range cat.List() {
		assert.NotEmpty(t, l.ID)
		assert.NotEmpty(t, l.Name)
		assert.False(t, seen[l.ID], "duplicate id %s", l.ID)
		seen[l.ID] = true
		assert.Greater(t, l.InterestRate, 0.0)
		assert.Greater(t, l.MaxLoanAmount, int64(0))
		assert.NotEmpty(t, l.EmploymentTypes)
	}
}

func TestSeedCoversEveryPurpose(t *testing.T) {
	cat, err := Load()
	require.NoError(t, err)

	covered := make(map[string]bool)
	anyPurpose := false
	for _, l := range cat.List() {
		if l.LoanPurpose == "" {
			anyPurpose = true
			continue
		}
		covered[l.LoanPurpose] = true
	}

	// A generalist lender plus specialists means no purpose can produce an
	// empty candidate pool on eligibility grounds alone.
	assert.True(t, anyPurpose, "seed needs at least one any-purpose lender")
	for _, purpose := range datatypes.LoanPurposes {
		if !covered[purpose] && !anyPurpose {
			t.Errorf("purpose %s has no lender", purpose)
		}
	}
}

func TestByID(t *testing.T) {
	cat, err := Load()
	require.NoError(t, err)

	first := cat.List()[0]
	got, ok := cat.ByID(first.ID)
	require.True(t, ok)
	assert.Equal(t, first.Name, got.Name)

	_, ok = cat.ByID("no-such-lender")
	assert.False(t, ok)
}

func TestParseRejectsBadSeeds(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "{{{{"},
		{"empty list", "[]"},
		{"missing id", `[{"name":"X","interestRate":9.0,"maxLoanAmount":100}]`},
		{"duplicate id", `[{"id":"a","name":"A","interestRate":9.0,"maxLoanAmount":100},{"id":"a","name":"B","interestRate":8.0,"maxLoanAmount":100}]`},
		{"zero max amount", `[{"id":"a","name":"A","interestRate":9.0}]`},
		{"negative max amount", `[{"id":"a","name":"A","interestRate":9.0,"maxLoanAmount":-1}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse([]byte(tt.raw))
			assert.Error(t, err)
		})
	}
}
