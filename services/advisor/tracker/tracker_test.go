// Copyright (C) 2025 Finsage Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tracker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsagelabs/finsage/services/advisor/datatypes"
	"github.com/finsagelabs/finsage/services/advisor/store"
)

func newTracker(t *testing.T) (*Tracker, string) {
	t.Helper()
	st := store.NewMemoryStore()
	sess, err := st.Open(context.Background(), store.Fingerprint{ClientIP: "127.0.0.1"})
	require.NoError(t, err)
	return New(st), sess.ID
}

func TestSetValidParameter(t *testing.T) {
	tr, id := newTracker(t)
	ctx := context.Background()

	tracking, err := tr.Set(ctx, id, datatypes.FieldLoanAmount, 2_000_000)
	require.NoError(t, err)
	assert.True(t, tracking.HasLoanAmount)
	assert.Equal(t, 20, tracking.CompletionPercent)

	params, _, err := tr.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, params.LoanAmount)
	assert.Equal(t, int64(2_000_000), *params.LoanAmount)
}

func TestSetInvalidValueChangesNothing(t *testing.T) {
	tr, id := newTracker(t)
	ctx := context.Background()

	_, err := tr.Set(ctx, id, datatypes.FieldCreditScore, 9000)
	var verr *datatypes.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, datatypes.FieldCreditScore, verr.Field)

	params, tracking, err := tr.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, params.CreditScore)
	assert.Equal(t, 0, tracking.CompletionPercent)
}

func TestSetUnknownField(t *testing.T) {
	tr, id := newTracker(t)

	_, err := tr.Set(context.Background(), id, "shoeSize", 42)
	var verr *datatypes.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestOverwriteKeepsNewestValue(t *testing.T) {
	tr, id := newTracker(t)
	ctx := context.Background()

	_, err := tr.Set(ctx, id, datatypes.FieldAnnualIncome, 1_200_000)
	require.NoError(t, err)
	tracking, err := tr.Set(ctx, id, datatypes.FieldAnnualIncome, 1_500_000)
	require.NoError(t, err)

	// Overwriting an already-present field does not move the percent.
	assert.Equal(t, 20, tracking.CompletionPercent)

	params, _, err := tr.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(1_500_000), *params.AnnualIncome)
}

func TestMissingFollowsPriorityOrder(t *testing.T) {
	tr, id := newTracker(t)
	ctx := context.Background()

	missing, err := tr.Missing(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{
		datatypes.FieldLoanAmount,
		datatypes.FieldAnnualIncome,
		datatypes.FieldEmploymentStatus,
		datatypes.FieldCreditScore,
		datatypes.FieldLoanPurpose,
	}, missing)

	// Filling a middle field removes just that entry, order preserved.
	_, err = tr.Set(ctx, id, datatypes.FieldEmploymentStatus, "salaried")
	require.NoError(t, err)
	missing, err = tr.Missing(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{
		datatypes.FieldLoanAmount,
		datatypes.FieldAnnualIncome,
		datatypes.FieldCreditScore,
		datatypes.FieldLoanPurpose,
	}, missing)
}

func TestIsComplete(t *testing.T) {
	tr, id := newTracker(t)
	ctx := context.Background()

	values := map[string]any{
		datatypes.FieldLoanAmount:       2_000_000,
		datatypes.FieldAnnualIncome:     1_500_000,
		datatypes.FieldEmploymentStatus: "salaried",
		datatypes.FieldCreditScore:      760,
		datatypes.FieldLoanPurpose:      "vehicle",
	}
	for field, raw := range values {
		done, err := tr.IsComplete(ctx, id)
		require.NoError(t, err)
		require.False(t, done, "complete before all fields set")
		_, err = tr.Set(ctx, id, field, raw)
		require.NoError(t, err)
	}

	done, err := tr.IsComplete(ctx, id)
	require.NoError(t, err)
	assert.True(t, done)

	missing, err := tr.Missing(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestSetOnUnknownSession(t *testing.T) {
	tr := New(store.NewMemoryStore())
	_, err := tr.Set(context.Background(), "33333333-3333-4333-8333-333333333333", datatypes.FieldLoanAmount, 500_000)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
