// Copyright (C) 2025 Finsage Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package scoring

import (
	"errors"
	"log/slog"

	"github.com/finsagelabs/finsage/services/advisor/catalogue"
	"github.com/finsagelabs/finsage/services/advisor/datatypes"
	"github.com/finsagelabs/finsage/services/advisor/observability"
)

// DefaultTopK is how many matches a scoring run returns unless the caller
// overrides it.
const DefaultTopK = 5

// ErrIncomplete means scoring was requested before all five required
// parameters were collected.
var ErrIncomplete = errors.New("scoring: loan parameters incomplete")

// Engine is the single scoring contract. It prefers the neural path when
// one was loaded and falls back to the rules for any request the neural
// path cannot serve; the failure is logged, never surfaced.
type Engine struct {
	cat    *catalogue.Catalogue
	rules  *RuleScorer
	neural *NeuralScorer // nil when the feature flag is off or assets are missing
}

// NewEngine builds the engine over the catalogue. neural may be nil.
func NewEngine(cat *catalogue.Catalogue, neural *NeuralScorer) *Engine {
	minRate, maxRate := cat.Rates()
	return &Engine{
		cat:    cat,
		rules:  NewRuleScorer(minRate, maxRate),
		neural: neural,
	}
}

// Score ranks the full lender set for a complete profile and returns the
// top k matches. Idempotent for fixed inputs.
func (e *Engine) Score(params *datatypes.LoanParameters, k int) ([]datatypes.LenderMatch, error) {
	if params == nil || !params.IsComplete() {
		return nil, ErrIncomplete
	}
	if k <= 0 {
		k = DefaultTopK
	}
	lenders := e.cat.List()

	if e.neural != nil {
		matches, err := e.neural.Score(params, lenders, k, e.rules)
		if err == nil {
			observability.DefaultMetrics().ScoringPath.WithLabelValues("neural").Inc()
			return matches, nil
		}
		slog.Warn("neural scoring failed, falling back to rules", "error", err)
		observability.DefaultMetrics().ScoringPath.WithLabelValues("neural_fallback").Inc()
		return e.rules.Score(params, lenders, k), nil
	}
	observability.DefaultMetrics().ScoringPath.WithLabelValues("rules").Inc()
	return e.rules.Score(params, lenders, k), nil
}

// NeuralEnabled reports whether the neural path is live, for health and
// status surfaces.
func (e *Engine) NeuralEnabled() bool {
	return e.neural != nil
}
