// Copyright (C) 2025 Finsage Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observability

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMetricsIsSingleton(t *testing.T) {
	first := DefaultMetrics()
	second := DefaultMetrics()
	require.NotNil(t, first)
	assert.Same(t, first, second)

	// InitMetrics shares the same instance; calling it repeatedly must not
	// re-register collectors.
	InitMetrics()
	assert.Same(t, first, DefaultMetrics())
}

func TestRecordHelpers(t *testing.T) {
	m := DefaultMetrics()

	// These must not panic regardless of label values or error state.
	m.RecordRequest("/api/chat/message", 200)
	m.RecordRequest("/api/chat/message", 429)
	m.RecordLLMCall("extraction", 0.42, nil)
	m.RecordLLMCall("conversation", 1.2, errors.New("boom"))
}
