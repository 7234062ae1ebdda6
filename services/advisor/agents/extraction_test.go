// Copyright (C) 2025 Finsage Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agents

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsagelabs/finsage/services/advisor/datatypes"
	"github.com/finsagelabs/finsage/services/llm"
)

// scriptedClient returns canned replies in order, then keeps repeating the
// last one. A non-nil err is returned on every call instead.
type scriptedClient struct {
	replies []string
	err     error
	calls   int
	prompts []string
}

func (c *scriptedClient) Generate(_ context.Context, prompt string, _ llm.GenerationParams) (string, error) {
	c.calls++
	c.prompts = append(c.prompts, prompt)
	if c.err != nil {
		return "", c.err
	}
	idx := c.calls - 1
	if idx >= len(c.replies) {
		idx = len(c.replies) - 1
	}
	return c.replies[idx], nil
}

func (c *scriptedClient) HealthCheck(context.Context) bool { return c.err == nil }

func TestParseExtractionReply(t *testing.T) {
	t.Run("clean object", func(t *testing.T) {
		out := ParseExtractionReply(`{"loanAmount": 2000000, "creditScore": 760}`)
		require.Len(t, out, 2)
		assert.Equal(t, int64(2_000_000), out[datatypes.FieldLoanAmount].Int)
		assert.Equal(t, int64(760), out[datatypes.FieldCreditScore].Int)
	})

	t.Run("fenced block with prose", func(t *testing.T) {
		reply := "Here is what I found:\n```json\n{\"loan_amount\": 500000}\n```\nHope that helps."
		out := ParseExtractionReply(reply)
		require.Len(t, out, 1)
		assert.Equal(t, int64(500_000), out[datatypes.FieldLoanAmount].Int)
	})

	t.Run("aliases and synonyms", func(t *testing.T) {
		out := ParseExtractionReply(`{"income": 1500000, "employment": "software engineer", "purpose": "car"}`)
		require.Len(t, out, 3)
		assert.Equal(t, int64(1_500_000), out[datatypes.FieldAnnualIncome].Int)
		assert.Equal(t, "salaried", out[datatypes.FieldEmploymentStatus].String)
		assert.Equal(t, "vehicle", out[datatypes.FieldLoanPurpose].String)
	})

	t.Run("lakh magnitude normalised", func(t *testing.T) {
		// 20 is far below the rupee floor, so it is read as 20 lakh.
		out := ParseExtractionReply(`{"loanAmount": 20}`)
		require.Len(t, out, 1)
		assert.Equal(t, int64(2_000_000), out[datatypes.FieldLoanAmount].Int)
	})

	t.Run("invalid values dropped, valid kept", func(t *testing.T) {
		out := ParseExtractionReply(`{"creditScore": 9000, "loanPurpose": "home"}`)
		require.Len(t, out, 1)
		assert.Equal(t, "home", out[datatypes.FieldLoanPurpose].String)
	})

	t.Run("unknown keys ignored", func(t *testing.T) {
		out := ParseExtractionReply(`{"favouriteColour": "blue", "dti": 0.35}`)
		require.Len(t, out, 1)
		assert.InDelta(t, 0.35, out[datatypes.FieldDebtToIncomeRatio].Float, 1e-9)
	})

	t.Run("unrecognised enum discarded not guessed", func(t *testing.T) {
		out := ParseExtractionReply(`{"employmentStatus": "astronaut"}`)
		assert.Empty(t, out)
	})

	t.Run("no JSON at all", func(t *testing.T) {
		assert.Empty(t, ParseExtractionReply("I could not find any parameters, sorry."))
	})

	t.Run("malformed JSON", func(t *testing.T) {
		assert.Empty(t, ParseExtractionReply(`{"loanAmount": `))
	})

	t.Run("empty object", func(t *testing.T) {
		assert.Empty(t, ParseExtractionReply(`{}`))
	})
}

func TestFirstJSONObject(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		found bool
	}{
		{"bare object", `{"a":1}`, `{"a":1}`, true},
		{"leading prose", `sure: {"a":1} trailing`, `{"a":1}`, true},
		{"nested braces", `{"a":{"b":2}}`, `{"a":{"b":2}}`, true},
		{"brace inside string", `{"a":"}"}`, `{"a":"}"}`, true},
		{"escaped quote in string", `{"a":"\"}"}`, `{"a":"\"}"}`, true},
		{"unbalanced", `{"a":1`, "", false},
		{"no object", "nothing here", "", false},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := FirstJSONObject(tc.input)
			assert.Equal(t, tc.found, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCanonicalSynonyms(t *testing.T) {
	for raw, want := range map[string]string{
		"Car": "vehicle", "MBA": "education", "solar": "eco",
		"wedding": "personal", "gold loan": "gold-backed",
	} {
		got, ok := CanonicalPurpose(raw)
		require.True(t, ok, raw)
		assert.Equal(t, want, got)
	}

	for raw, want := range map[string]string{
		"Business Owner": "self-employed", "gig": "freelancer",
		"between jobs": "unemployed", "employee": "salaried",
	} {
		got, ok := CanonicalEmployment(raw)
		require.True(t, ok, raw)
		assert.Equal(t, want, got)
	}

	_, ok := CanonicalPurpose("yacht")
	assert.False(t, ok)
}

func TestExtractUsesRecentWindow(t *testing.T) {
	client := &scriptedClient{replies: []string{`{"creditScore": 720}`}}
	agent := NewExtractionAgent(client)

	history := make([]datatypes.ChatMessage, 0, 8)
	for i := 0; i < 8; i++ {
		content := "old message"
		if i >= 3 {
			content = "recent message"
		}
		history = append(history, datatypes.ChatMessage{Role: datatypes.RoleUser, Content: content})
	}

	out, err := agent.Extract(context.Background(), history, "my score is 720")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(720), out[datatypes.FieldCreditScore].Int)

	require.Len(t, client.prompts, 1)
	assert.Contains(t, client.prompts[0], "my score is 720")
	assert.Contains(t, client.prompts[0], "recent message")
	assert.NotContains(t, client.prompts[0], "old message")
}

func TestExtractPromptsUtteranceOnce(t *testing.T) {
	client := &scriptedClient{replies: []string{`{}`}}
	agent := NewExtractionAgent(client)

	// Turn handling appends the user message before extraction runs, so
	// the history arrives already ending with the current utterance.
	history := []datatypes.ChatMessage{
		{Role: datatypes.RoleBot, Content: "What amount do you need?"},
		{Role: datatypes.RoleUser, Content: "I need 20 lakhs"},
	}

	_, err := agent.Extract(context.Background(), history, "I need 20 lakhs")
	require.NoError(t, err)

	require.Len(t, client.prompts, 1)
	assert.Equal(t, 1, strings.Count(client.prompts[0], "I need 20 lakhs"))
	assert.Contains(t, client.prompts[0], "What amount do you need?")
}

func TestExtractPropagatesClientError(t *testing.T) {
	client := &scriptedClient{err: errors.New("backend down")}
	agent := NewExtractionAgent(client)

	_, err := agent.Extract(context.Background(), nil, "hello")
	assert.Error(t, err)
}
