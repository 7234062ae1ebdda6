// Copyright (C) 2025 Finsage Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package scoring

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"sort"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/finsagelabs/finsage/services/advisor/datatypes"
)

// =============================================================================
// Neural Scorer
// =============================================================================

// Presentation factors: the neural path produces one probability per
// lender; the three component scores shown to users are synthesised from
// the final score so both paths present the same shape.
const (
	neuralEligibilityFactor    = 0.80
	neuralAffordabilityFactor  = 0.75
	neuralSpecializationFactor = 0.65
)

// ortInit guards process-wide ONNX runtime environment setup. The
// inference session is shared and thread-safe at the Run boundary; callers
// never mutate it.
var (
	ortInitOnce sync.Once
	ortInitErr  error
)

func initRuntime() error {
	ortInitOnce.Do(func() {
		if libPath := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY"); libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// NeuralScorer runs the pre-trained lender scoring model. Construct via
// NewNeuralScorer; a nil *NeuralScorer means the neural path is disabled
// and the engine uses rules only.
type NeuralScorer struct {
	session      *ort.DynamicAdvancedSession
	standardizer *Standardizer

	mu sync.Mutex // ONNX session Run is serialised per session handle
}

// NewNeuralScorer loads the model graph and the standardisation
// descriptor. Both assets must resolve or the neural path stays disabled;
// the caller treats any error as "run rules only".
func NewNeuralScorer(modelPath, standardizerPath string) (*NeuralScorer, error) {
	if modelPath == "" || standardizerPath == "" {
		return nil, fmt.Errorf("neural scorer: model assets not configured")
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("neural scorer: model asset missing: %w", err)
	}

	standardizer, err := LoadStandardizer(standardizerPath)
	if err != nil {
		return nil, fmt.Errorf("neural scorer: %w", err)
	}

	if err := initRuntime(); err != nil {
		return nil, fmt.Errorf("neural scorer: runtime init failed: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{"input"}, []string{"output"}, nil)
	if err != nil {
		return nil, fmt.Errorf("neural scorer: session load failed: %w", err)
	}

	slog.Info("Neural scorer loaded", "model", modelPath)
	return &NeuralScorer{session: session, standardizer: standardizer}, nil
}

// Shutdown releases the inference session.
func (n *NeuralScorer) Shutdown() {
	if n == nil || n.session == nil {
		return
	}
	if err := n.session.Destroy(); err != nil {
		slog.Warn("failed to destroy ONNX session", "error", err)
	}
}

// Score ranks every lender by model probability and returns the top k.
// Reasons come from the shared deterministic generator so explanations
// match the rule-based path.
func (n *NeuralScorer) Score(params *datatypes.LoanParameters, lenders []datatypes.Lender,
	k int, rules *RuleScorer) ([]datatypes.LenderMatch, error) {

	now := time.Now().UTC()
	type scored struct {
		match datatypes.LenderMatch
		prob  float64
	}
	results := make([]scored, 0, len(lenders))

	for i := range lenders {
		l := &lenders[i]
		prob, err := n.infer(params, l)
		if err != nil {
			return nil, err
		}

		final := clamp(int(math.Round(prob * 100)))
		c := evaluate(params, l)
		eligibility := 100 * c.passed() / 5
		affordability := rules.affordability(l.InterestRate)

		m := datatypes.LenderMatch{
			LenderID:            l.ID,
			LenderName:          l.Name,
			InterestRate:        l.InterestRate,
			EligibilityScore:    clamp(int(math.Round(neuralEligibilityFactor * float64(final)))),
			AffordabilityScore:  clamp(int(math.Round(neuralAffordabilityFactor * float64(final)))),
			SpecializationScore: clamp(int(math.Round(neuralSpecializationFactor * float64(final)))),
			FinalScore:          final,
			Confidence:          final,
			Reasons:             buildReasons(params, l, c, eligibility, affordability),
			Warnings:            buildWarnings(params, l),
			CalculatedAt:        now,
		}
		results = append(results, scored{match: m, prob: prob})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].prob != results[j].prob {
			return results[i].prob > results[j].prob
		}
		return results[i].match.LenderID < results[j].match.LenderID
	})

	if k > 0 && len(results) > k {
		results = results[:k]
	}
	matches := make([]datatypes.LenderMatch, len(results))
	for i, r := range results {
		matches[i] = r.match
		matches[i].Rank = i + 1
	}
	return matches, nil
}

// infer runs one forward pass and returns the match probability.
func (n *NeuralScorer) infer(params *datatypes.LoanParameters, l *datatypes.Lender) (float64, error) {
	features := FeatureVector(params, l)
	n.standardizer.Apply(&features)

	input, err := ort.NewTensor(ort.NewShape(1, FeatureCount), features[:])
	if err != nil {
		return 0, fmt.Errorf("failed to build input tensor: %w", err)
	}
	defer input.Destroy()

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		return 0, fmt.Errorf("failed to build output tensor: %w", err)
	}
	defer output.Destroy()

	n.mu.Lock()
	err = n.session.Run([]ort.Value{input}, []ort.Value{output})
	n.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("inference failed for lender %s: %w", l.ID, err)
	}

	data := output.GetData()
	if len(data) == 0 {
		return 0, fmt.Errorf("inference returned no output for lender %s", l.ID)
	}
	prob := float64(data[0])
	if prob < 0 {
		prob = 0
	}
	if prob > 1 {
		prob = 1
	}
	return prob, nil
}
