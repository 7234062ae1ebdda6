// Copyright (C) 2025 Finsage Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package sweeper runs the background session-expiry sweep.
//
// The sweeper periodically flips active sessions past their hard expiry
// to expired status. Sweeps log and continue on error; a broken storage
// backend never takes the sweeper down. Expired sessions also read as
// expired lazily on access, so the sweeper is a hygiene mechanism, not a
// correctness one.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/finsagelabs/finsage/services/advisor/observability"
	"github.com/finsagelabs/finsage/services/advisor/store"
)

// =============================================================================
// Configuration
// =============================================================================

// Config holds sweeper configuration.
//
// # Fields
//
//   - Interval: how often to run a sweep cycle. Default: 1 hour.
type Config struct {
	Interval time.Duration
}

// DefaultConfig returns production defaults. Hourly is a deliberate
// balance: sessions live 24 h, so an hour of slack in the status flip is
// invisible to clients, which see lazy expiry anyway.
func DefaultConfig() Config {
	return Config{Interval: 1 * time.Hour}
}

// =============================================================================
// Sweeper
// =============================================================================

// Sweeper owns the background expiry goroutine. Uses the ticker + done
// channel pattern for graceful shutdown.
//
// # Thread Safety
//
// All public methods are thread-safe. Only one sweep cycle runs at a time.
type Sweeper struct {
	store   store.Store
	config  Config
	done    chan struct{}
	mu      sync.Mutex
	running bool
}

// New creates a sweeper over the store. Zero-value config fields get
// defaults.
func New(st store.Store, cfg Config) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	return &Sweeper{
		store:  st,
		config: cfg,
		done:   make(chan struct{}),
	}
}

// Start begins the background sweep loop. Returns an error if the
// sweeper is already running. The loop stops on Stop() or context
// cancellation.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("sweeper is already running")
	}
	s.running = true
	s.done = make(chan struct{}) // reset for potential restart
	s.mu.Unlock()

	slog.Info("session expiry sweeper starting",
		"interval", s.config.Interval.String())

	go s.runLoop(ctx)
	return nil
}

// Stop signals the loop to exit. Safe to call multiple times. Does not
// interrupt an in-progress sweep.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	slog.Info("session expiry sweeper stopping")
	close(s.done)
	s.running = false
}

// runLoop is the sweeper goroutine. An initial sweep runs immediately so
// a restart catches sessions that expired while the process was down.
func (s *Sweeper) runLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.sweep(ctx)

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// sweep runs one cycle, logging and continuing on failure.
func (s *Sweeper) sweep(ctx context.Context) {
	started := time.Now()
	swept, err := s.store.SweepExpired(ctx, started)
	if err != nil {
		slog.Error("expiry sweep failed", "error", err)
		return
	}
	if swept > 0 {
		observability.DefaultMetrics().SessionsSwept.Add(float64(swept))
		slog.Info("expiry sweep complete",
			"swept", swept,
			"duration_ms", time.Since(started).Milliseconds())
	}

	// Re-base the active-sessions gauge. Open and close adjust it between
	// sweeps; sessions that expire without an explicit close would
	// otherwise never come off it.
	active, err := s.store.ActiveCount(ctx, started)
	if err != nil {
		slog.Warn("active session count failed", "error", err)
		return
	}
	observability.DefaultMetrics().ActiveSessions.Set(float64(active))
}
