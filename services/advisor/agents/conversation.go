// Copyright (C) 2025 Finsage Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/finsagelabs/finsage/services/advisor/datatypes"
	"github.com/finsagelabs/finsage/services/llm"
)

// =============================================================================
// Tool-Call Directive
// =============================================================================

// ToolExtractParameters is the single tool the conversation agent may
// request. Tool calling here is a text-level protocol: the model embeds a
// JSON directive in its reply and the orchestrator parses it back out.
const ToolExtractParameters = "extract_parameters"

// ToolCallDirective is the parsed form of a tool request found in a
// conversation reply.
type ToolCallDirective struct {
	Tool    string `json:"tool_call"`
	Message string `json:"message"`
}

// =============================================================================
// Conversation Agent
// =============================================================================

// ConversationAgent produces the user-facing side of a turn: either a
// tool-call directive or a natural-language reply, never both.
type ConversationAgent struct {
	client llm.Client
}

// NewConversationAgent creates a conversation agent over the gateway.
func NewConversationAgent(client llm.Client) *ConversationAgent {
	return &ConversationAgent{client: client}
}

// Reply asks the model for the next conversational move given the dialogue
// and the current tracker state. Exactly one of the results is set: a
// directive when the model wants extraction run, otherwise sanitised prose.
func (a *ConversationAgent) Reply(ctx context.Context, history []datatypes.ChatMessage,
	params *datatypes.LoanParameters, missing []string) (string, *ToolCallDirective, error) {

	prompt := buildConversationPrompt(history, params, missing)
	raw, err := a.client.Generate(ctx, prompt, llm.ConversationParams())
	if err != nil {
		return "", nil, err
	}

	if directive, ok := ParseToolCall(raw); ok {
		return "", directive, nil
	}
	return SanitizeReply(raw), nil, nil
}

// Acknowledge synthesises a short confirmation of newly-learned values and
// a question for the next missing field. It runs under the extraction
// profile so phrasing stays stable.
func (a *ConversationAgent) Acknowledge(ctx context.Context,
	learned map[string]datatypes.ParameterValue, nextMissing string) (string, error) {

	var b strings.Builder
	b.WriteString("You are a friendly loan advisor. In one or two sentences, confirm the details just captured")
	if nextMissing != "" {
		fmt.Fprintf(&b, " and ask the user for their %s", FieldQuestionTopic(nextMissing))
	} else {
		b.WriteString(" and tell the user their profile is complete")
	}
	b.WriteString(". Plain prose only, no JSON, no lists.\n\nCaptured details:\n")
	for field, v := range learned {
		fmt.Fprintf(&b, "- %s: %s\n", field, describeValue(v))
	}

	raw, err := a.client.Generate(ctx, b.String(), llm.ExtractionParams())
	if err != nil {
		return "", err
	}
	return SanitizeReply(raw), nil
}

// FallbackQuestion is the deterministic template used when the model is
// unavailable or returned nothing usable. The user always gets a reply.
func FallbackQuestion(missing []string) string {
	if len(missing) == 0 {
		return "Great news - I have everything I need. Let me find the best lenders for you."
	}
	return fieldQuestions[missing[0]]
}

// fieldQuestions are the canned prompts per missing field, in deployment
// locale (INR).
var fieldQuestions = map[string]string{
	datatypes.FieldLoanAmount:       "How much would you like to borrow? You can say it in rupees, lakhs, or crores.",
	datatypes.FieldAnnualIncome:     "What is your annual income in INR?",
	datatypes.FieldEmploymentStatus: "What best describes your employment: salaried, self-employed, freelancer, student, or unemployed?",
	datatypes.FieldCreditScore:      "Do you know your credit score? It is a number between 300 and 850.",
	datatypes.FieldLoanPurpose:      "What is the loan for - a home, a vehicle, education, business, or something else?",
}

// FieldQuestionTopic renders a field name as conversational English.
func FieldQuestionTopic(field string) string {
	switch field {
	case datatypes.FieldLoanAmount:
		return "desired loan amount"
	case datatypes.FieldAnnualIncome:
		return "annual income"
	case datatypes.FieldEmploymentStatus:
		return "employment status"
	case datatypes.FieldCreditScore:
		return "credit score"
	case datatypes.FieldLoanPurpose:
		return "loan purpose"
	}
	return field
}

func describeValue(v datatypes.ParameterValue) string {
	switch v.Field {
	case datatypes.FieldLoanAmount, datatypes.FieldAnnualIncome:
		return fmt.Sprintf("₹%d", v.Int)
	case datatypes.FieldCreditScore, datatypes.FieldEmploymentDuration:
		return fmt.Sprintf("%d", v.Int)
	case datatypes.FieldDebtToIncomeRatio:
		return fmt.Sprintf("%.2f", v.Float)
	}
	return v.String
}

// =============================================================================
// Prompt Construction
// =============================================================================

func buildConversationPrompt(history []datatypes.ChatMessage,
	params *datatypes.LoanParameters, missing []string) string {

	var b strings.Builder
	b.WriteString(`You are Finsage, a warm and concise loan advisor helping a user in India.

Rules:
- If the user's LAST message contains loan details not yet captured below, reply with ONLY this JSON and nothing else:
  {"tool_call": "extract_parameters", "message": "<the user's message fragment to analyse>"}
- Otherwise reply in plain prose: briefly acknowledge what is already captured, then ask ONE question for the first item in the missing list.
- If nothing is missing, congratulate the user and say you are finding their matches.
- Never mix JSON and prose. Never mention tools, extraction, or internal state.

Captured so far:
`)
	writeCaptured(&b, params)

	b.WriteString("\nStill missing, in priority order: ")
	if len(missing) == 0 {
		b.WriteString("nothing")
	} else {
		b.WriteString(strings.Join(missing, ", "))
	}
	b.WriteString("\n\nConversation:\n")
	for _, msg := range recentWindow(history, datatypes.ExtractionWindowTurns) {
		fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Content)
	}
	b.WriteString("\nYour reply:")
	return b.String()
}

func writeCaptured(b *strings.Builder, params *datatypes.LoanParameters) {
	if params.LoanAmount != nil {
		fmt.Fprintf(b, "- loan amount: ₹%d\n", *params.LoanAmount)
	}
	if params.AnnualIncome != nil {
		fmt.Fprintf(b, "- annual income: ₹%d\n", *params.AnnualIncome)
	}
	if params.EmploymentStatus != nil {
		fmt.Fprintf(b, "- employment: %s\n", *params.EmploymentStatus)
	}
	if params.CreditScore != nil {
		fmt.Fprintf(b, "- credit score: %d\n", *params.CreditScore)
	}
	if params.LoanPurpose != nil {
		fmt.Fprintf(b, "- purpose: %s\n", *params.LoanPurpose)
	}
	if !params.Has(datatypes.FieldLoanAmount) && !params.Has(datatypes.FieldAnnualIncome) &&
		!params.Has(datatypes.FieldEmploymentStatus) && !params.Has(datatypes.FieldCreditScore) &&
		!params.Has(datatypes.FieldLoanPurpose) {
		b.WriteString("- nothing yet\n")
	}
}

// =============================================================================
// Reply Parsing and Sanitisation
// =============================================================================

// ParseToolCall detects a tool-call directive in a raw model reply.
func ParseToolCall(raw string) (*ToolCallDirective, bool) {
	obj, ok := FirstJSONObject(raw)
	if !ok {
		return nil, false
	}
	var directive ToolCallDirective
	if err := json.Unmarshal([]byte(obj), &directive); err != nil {
		return nil, false
	}
	if directive.Tool != ToolExtractParameters {
		return nil, false
	}
	return &directive, true
}

// SanitizeReply strips code fences, stray tool-call fragments, and trailing
// action/progress annotations from model prose before it reaches a user.
func SanitizeReply(raw string) string {
	s := stripFences(raw)

	// Remove any embedded tool-call JSON the model leaked into prose.
	for {
		obj, ok := FirstJSONObject(s)
		if !ok {
			break
		}
		var directive ToolCallDirective
		if err := json.Unmarshal([]byte(obj), &directive); err != nil || directive.Tool == "" {
			break
		}
		s = strings.Replace(s, obj, "", 1)
	}

	var lines []string
	for _, line := range strings.Split(s, "\n") {
		trimmed := strings.TrimSpace(line)
		if isAnnotation(trimmed) {
			continue
		}
		lines = append(lines, line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// isAnnotation spots trailing bookkeeping lines some models append.
func isAnnotation(line string) bool {
	lower := strings.ToLower(line)
	for _, prefix := range []string{
		"action:", "progress:", "completion:", "tool_call", "[tool", "status:",
	} {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}
