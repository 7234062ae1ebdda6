// Copyright (C) 2025 Finsage Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package catalogue serves the static lender set.
//
// The catalogue is loaded once at startup from the embedded seed (or an
// operator-supplied file) and is immutable afterwards, so readers never
// take a lock.
package catalogue

import (
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/finsagelabs/finsage/services/advisor/datatypes"
)

//go:embed seed.json
var seedFS embed.FS

// Catalogue is the read-only lender set. Construct via Load or LoadFile;
// the zero value is empty.
type Catalogue struct {
	lenders []datatypes.Lender
	byID    map[string]int
	minRate float64
	maxRate float64
}

// Load builds the catalogue from the embedded seed.
func Load() (*Catalogue, error) {
	raw, err := seedFS.ReadFile("seed.json")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded lender seed: %w", err)
	}
	return parse(raw)
}

// LoadFile builds the catalogue from an operator-supplied JSON file.
func LoadFile(path string) (*Catalogue, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lender seed %s: %w", path, err)
	}
	return parse(raw)
}

func parse(raw []byte) (*Catalogue, error) {
	var lenders []datatypes.Lender
	if err := json.Unmarshal(raw, &lenders); err != nil {
		return nil, fmt.Errorf("failed to parse lender seed: %w", err)
	}
	if len(lenders) == 0 {
		return nil, fmt.Errorf("lender seed is empty")
	}

	c := &Catalogue{
		lenders: lenders,
		byID:    make(map[string]int, len(lenders)),
		minRate: lenders[0].InterestRate,
		maxRate: lenders[0].InterestRate,
	}
	for i, l := range lenders {
		if l.ID == "" {
			return nil, fmt.Errorf("lender at index %d has no id", i)
		}
		if _, dup := c.byID[l.ID]; dup {
			return nil, fmt.Errorf("duplicate lender id %q", l.ID)
		}
		// Scoring divides by this bound.
		if l.MaxLoanAmount <= 0 {
			return nil, fmt.Errorf("lender %q has non-positive maxLoanAmount", l.ID)
		}
		c.byID[l.ID] = i
		if l.InterestRate < c.minRate {
			c.minRate = l.InterestRate
		}
		if l.InterestRate > c.maxRate {
			c.maxRate = l.InterestRate
		}
	}

	slog.Info("Lender catalogue loaded",
		"lenders", len(lenders),
		"min_rate", c.minRate,
		"max_rate", c.maxRate)
	return c, nil
}

// List returns the full lender set. Callers must not mutate the slice.
func (c *Catalogue) List() []datatypes.Lender {
	return c.lenders
}

// ByID looks up a lender by id.
func (c *Catalogue) ByID(id string) (datatypes.Lender, bool) {
	i, ok := c.byID[id]
	if !ok {
		return datatypes.Lender{}, false
	}
	return c.lenders[i], true
}

// Rates returns the observed catalogue-wide interest rate range, used by
// the affordability score's linear inversion.
func (c *Catalogue) Rates() (min, max float64) {
	return c.minRate, c.maxRate
}
