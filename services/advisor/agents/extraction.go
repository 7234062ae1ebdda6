// Copyright (C) 2025 Finsage Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package agents contains the two LLM-backed agents of the advisor: the
// extraction agent that mines structured loan parameters from dialogue,
// and the conversation agent that produces the user-facing reply or a
// tool-call directive.
//
// Both agents treat LLM output as untrusted text: everything is parsed
// defensively and sanitised before it can reach a user or the tracker.
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/finsagelabs/finsage/services/advisor/datatypes"
	"github.com/finsagelabs/finsage/services/llm"
)

// =============================================================================
// Extraction Agent
// =============================================================================

// ExtractionAgent mines loan parameters from recent dialogue. It never
// fails on malformed model output; the worst case is an empty result,
// observable only as "no new parameters learned".
type ExtractionAgent struct {
	client llm.Client
}

// NewExtractionAgent creates an extraction agent over the gateway.
func NewExtractionAgent(client llm.Client) *ExtractionAgent {
	return &ExtractionAgent{client: client}
}

// Extract prompts the model over the last few turns plus the current
// utterance and returns the validated parameters it found, keyed by field
// name. Entries that fail coercion, canonicalisation, or domain validation
// are dropped silently.
func (a *ExtractionAgent) Extract(ctx context.Context, history []datatypes.ChatMessage,
	utterance string) (map[string]datatypes.ParameterValue, error) {

	prompt := buildExtractionPrompt(history, utterance)
	reply, err := a.client.Generate(ctx, prompt, llm.ExtractionParams())
	if err != nil {
		return nil, err
	}
	return ParseExtractionReply(reply), nil
}

// ParseExtractionReply applies the full post-processing pipeline to a raw
// model reply: first-JSON-object extraction, per-key coercion, monetary
// normalisation, enum canonicalisation, and domain validation.
func ParseExtractionReply(reply string) map[string]datatypes.ParameterValue {
	obj, ok := FirstJSONObject(reply)
	if !ok {
		slog.Debug("extraction reply contained no JSON object")
		return map[string]datatypes.ParameterValue{}
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		slog.Debug("extraction reply JSON did not parse", "error", err)
		return map[string]datatypes.ParameterValue{}
	}

	out := make(map[string]datatypes.ParameterValue)
	for key, val := range raw {
		field, candidate, ok := canonicalise(key, val)
		if !ok {
			continue
		}
		parsed, err := datatypes.ParseParameter(field, candidate)
		if err != nil {
			slog.Debug("extracted value failed validation", "field", field, "error", err)
			continue
		}
		out[field] = parsed
	}
	return out
}

// canonicalise maps a raw key/value pair onto a known field and, for enum
// fields, resolves synonyms. Returns ok=false for anything unrecognised.
func canonicalise(key string, val any) (string, any, bool) {
	field, ok := fieldAliases[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return "", nil, false
	}

	switch field {
	case datatypes.FieldEmploymentStatus:
		s, isStr := val.(string)
		if !isStr {
			return "", nil, false
		}
		canon, found := CanonicalEmployment(s)
		if !found {
			return "", nil, false
		}
		return field, canon, true

	case datatypes.FieldLoanPurpose:
		s, isStr := val.(string)
		if !isStr {
			return "", nil, false
		}
		canon, found := CanonicalPurpose(s)
		if !found {
			return "", nil, false
		}
		return field, canon, true
	}
	return field, val, true
}

// fieldAliases tolerates the key spellings models actually produce.
var fieldAliases = map[string]string{
	"loanamount":          datatypes.FieldLoanAmount,
	"loan_amount":         datatypes.FieldLoanAmount,
	"amount":              datatypes.FieldLoanAmount,
	"annualincome":        datatypes.FieldAnnualIncome,
	"annual_income":       datatypes.FieldAnnualIncome,
	"income":              datatypes.FieldAnnualIncome,
	"employmentstatus":    datatypes.FieldEmploymentStatus,
	"employment_status":   datatypes.FieldEmploymentStatus,
	"employment":          datatypes.FieldEmploymentStatus,
	"creditscore":         datatypes.FieldCreditScore,
	"credit_score":        datatypes.FieldCreditScore,
	"loanpurpose":         datatypes.FieldLoanPurpose,
	"loan_purpose":        datatypes.FieldLoanPurpose,
	"purpose":             datatypes.FieldLoanPurpose,
	"debttoincomeratio":   datatypes.FieldDebtToIncomeRatio,
	"debt_to_income":      datatypes.FieldDebtToIncomeRatio,
	"dti":                 datatypes.FieldDebtToIncomeRatio,
	"employmentduration":  datatypes.FieldEmploymentDuration,
	"employment_duration": datatypes.FieldEmploymentDuration,
}

// =============================================================================
// Synonym Tables
// =============================================================================

// purposeSynonyms canonicalises colloquial purpose mentions. Keys are
// lowercased; unknown strings are discarded, never guessed.
var purposeSynonyms = map[string]string{
	"home": "home", "house": "home", "flat": "home", "apartment": "home",
	"property": "home", "mortgage": "home",

	"vehicle": "vehicle", "car": "vehicle", "bike": "vehicle", "auto": "vehicle",
	"automobile": "vehicle", "bmw": "vehicle", "suv": "vehicle",
	"motorcycle": "vehicle", "scooter": "vehicle",

	"education": "education", "study": "education", "studies": "education",
	"mba": "education", "degree": "education", "college": "education",
	"university": "education", "course": "education", "tuition": "education",

	"business": "business", "shop": "business", "expansion": "business",

	"startup": "startup", "start-up": "startup", "venture": "startup",

	"eco": "eco", "solar": "eco", "green": "eco", "electric": "eco", "ev": "eco",

	"emergency": "emergency", "medical": "emergency", "hospital": "emergency",
	"urgent": "emergency",

	"gold": "gold-backed", "gold-backed": "gold-backed", "gold loan": "gold-backed",

	"personal": "personal", "wedding": "personal", "travel": "personal",
	"vacation": "personal", "renovation": "personal",
}

// employmentSynonyms canonicalises employment mentions.
var employmentSynonyms = map[string]string{
	"salaried": "salaried", "employed": "salaried", "employee": "salaried",
	"job": "salaried", "software engineer": "salaried", "engineer": "salaried",
	"working professional": "salaried", "full-time": "salaried",

	"self-employed": "self-employed", "self employed": "self-employed",
	"business owner": "self-employed", "entrepreneur": "self-employed",
	"proprietor": "self-employed",

	"freelancer": "freelancer", "freelance": "freelancer",
	"contractor": "freelancer", "consultant": "freelancer", "gig": "freelancer",

	"student": "student", "studying": "student",

	"unemployed": "unemployed", "jobless": "unemployed",
	"between jobs": "unemployed",
}

// CanonicalPurpose resolves a purpose mention to its canonical enum value.
func CanonicalPurpose(s string) (string, bool) {
	v, ok := purposeSynonyms[strings.ToLower(strings.TrimSpace(s))]
	return v, ok
}

// CanonicalEmployment resolves an employment mention to its canonical
// enum value.
func CanonicalEmployment(s string) (string, bool) {
	v, ok := employmentSynonyms[strings.ToLower(strings.TrimSpace(s))]
	return v, ok
}

// =============================================================================
// Prompt Construction
// =============================================================================

func buildExtractionPrompt(history []datatypes.ChatMessage, utterance string) string {
	// The caller persists the utterance before extraction, so the history
	// already ends with it. Trim that entry; the prompt presents the
	// current message once, as the marked trailing line.
	if n := len(history); n > 0 && history[n-1].Role == datatypes.RoleUser &&
		history[n-1].Content == utterance {
		history = history[:n-1]
	}

	var b strings.Builder
	b.WriteString(`You extract loan application parameters from a conversation.
Return ONLY a JSON object. Include a key only when the user clearly stated its value.

Keys:
  loanAmount         integer, INR (convert lakh = x100000, crore = x10000000)
  annualIncome       integer, INR per year (convert lakh/crore)
  employmentStatus   one of: salaried, self-employed, freelancer, student, unemployed
  creditScore        integer 300-850
  loanPurpose        one of: home, vehicle, education, business, startup, eco, emergency, gold-backed, personal
  debtToIncomeRatio  number 0-1, only if clearly stated
  employmentDuration integer months, only if clearly stated

If nothing is stated, return {}.

Conversation:
`)
	for _, msg := range recentWindow(history, datatypes.ExtractionWindowTurns) {
		fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Content)
	}
	fmt.Fprintf(&b, "user: %s\n\nJSON:", utterance)
	return b.String()
}

// recentWindow returns the trailing n messages.
func recentWindow(history []datatypes.ChatMessage, n int) []datatypes.ChatMessage {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

// =============================================================================
// JSON Scanning
// =============================================================================

// FirstJSONObject returns the first balanced JSON object literal in s,
// tolerating fenced code blocks and surrounding prose.
func FirstJSONObject(s string) (string, bool) {
	s = stripFences(s)

	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// stripFences removes markdown code fences so the brace scan sees only
// content.
func stripFences(s string) string {
	if !strings.Contains(s, "```") {
		return s
	}
	var b strings.Builder
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}
