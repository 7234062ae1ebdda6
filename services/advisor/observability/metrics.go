// Copyright (C) 2025 Finsage Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the advisor.
//
// # Description
//
// Metrics cover the chat pipeline end to end:
//   - Request counters by endpoint and status
//   - Turn and LLM latency histograms
//   - Scoring run counters by path and outcome
//   - Rate-limit rejections by bucket
//   - Session lifecycle (active gauge, sweep counter)
//
// # Integration
//
// Exposed via the /metrics endpoint. All metrics register against the
// default Prometheus registry.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "finsage"

// Subsystem for advisor metrics
const advisorSubsystem = "advisor"

// AdvisorMetrics holds all Prometheus metrics for the advisor service.
//
// # Fields
//
//   - RequestsTotal: Counter of HTTP requests by endpoint and status
//   - TurnDuration: Histogram of full chat-turn duration
//   - LLMLatency: Histogram of LLM call latency by agent
//   - LLMErrors: Counter of LLM failures by agent
//   - ScoringRuns: Counter of matching runs by outcome
//   - ScoringPath: Counter of scoring path selection (rules, neural, fallback)
//   - RateLimited: Counter of 429 rejections by bucket
//   - ActiveSessions: Gauge of live sessions
//   - SessionsSwept: Counter of sessions expired by the sweeper
//
// # Thread Safety
//
// All operations are thread-safe.
type AdvisorMetrics struct {
	// RequestsTotal counts HTTP requests.
	// Labels: endpoint (chat, session, match, history, ...), status (2xx, 4xx, 5xx)
	RequestsTotal *prometheus.CounterVec

	// TurnDuration measures full chat-turn duration in seconds, LLM calls
	// included.
	TurnDuration prometheus.Histogram

	// LLMLatency measures individual LLM call latency.
	// Labels: agent (conversation, extraction)
	LLMLatency *prometheus.HistogramVec

	// LLMErrors counts LLM call failures.
	// Labels: agent (conversation, extraction)
	LLMErrors *prometheus.CounterVec

	// ScoringRuns counts matching runs.
	// Labels: outcome (ok, failed)
	ScoringRuns *prometheus.CounterVec

	// ScoringPath counts which scorer actually served a run.
	// Labels: path (rules, neural, neural_fallback)
	ScoringPath *prometheus.CounterVec

	// RateLimited counts requests rejected by the rate limiter.
	// Labels: bucket (chat, matching, general)
	RateLimited *prometheus.CounterVec

	// ActiveSessions tracks sessions currently in active status. Open and
	// close adjust it; the expiry sweep re-bases it from the store.
	ActiveSessions prometheus.Gauge

	// SessionsSwept counts sessions flipped to expired by the sweeper.
	SessionsSwept prometheus.Counter
}

var (
	defaultMetrics *AdvisorMetrics
	metricsOnce    sync.Once
)

// DefaultMetrics returns the process-wide metrics instance, creating and
// registering it on first use. Lazy so test binaries that never touch
// metrics do not register anything.
func DefaultMetrics() *AdvisorMetrics {
	metricsOnce.Do(func() {
		defaultMetrics = newMetrics()
	})
	return defaultMetrics
}

// InitMetrics eagerly initializes the default metrics instance. Call once
// at startup so the /metrics endpoint has every series from the first
// scrape.
func InitMetrics() *AdvisorMetrics {
	return DefaultMetrics()
}

func newMetrics() *AdvisorMetrics {
	return &AdvisorMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: advisorSubsystem,
				Name:      "requests_total",
				Help:      "Total HTTP requests by endpoint and status class",
			},
			[]string{"endpoint", "status"},
		),

		TurnDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: advisorSubsystem,
				Name:      "turn_duration_seconds",
				Help:      "Full chat turn duration in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
			},
		),

		LLMLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: advisorSubsystem,
				Name:      "llm_latency_seconds",
				Help:      "LLM call latency in seconds by agent",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"agent"},
		),

		LLMErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: advisorSubsystem,
				Name:      "llm_errors_total",
				Help:      "Total LLM call failures by agent",
			},
			[]string{"agent"},
		),

		ScoringRuns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: advisorSubsystem,
				Name:      "scoring_runs_total",
				Help:      "Total lender matching runs by outcome",
			},
			[]string{"outcome"},
		),

		ScoringPath: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: advisorSubsystem,
				Name:      "scoring_path_total",
				Help:      "Scoring path selection counts",
			},
			[]string{"path"},
		),

		RateLimited: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: advisorSubsystem,
				Name:      "rate_limited_total",
				Help:      "Requests rejected by the rate limiter, by bucket",
			},
			[]string{"bucket"},
		),

		ActiveSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: advisorSubsystem,
				Name:      "active_sessions",
				Help:      "Sessions currently in active status",
			},
		),

		SessionsSwept: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: advisorSubsystem,
				Name:      "sessions_swept_total",
				Help:      "Sessions flipped to expired by the background sweeper",
			},
		),
	}
}

// =============================================================================
// Helper Methods
// =============================================================================

// RecordRequest records one completed HTTP request.
func (m *AdvisorMetrics) RecordRequest(endpoint string, statusCode int) {
	class := "2xx"
	switch {
	case statusCode >= 500:
		class = "5xx"
	case statusCode >= 400:
		class = "4xx"
	}
	m.RequestsTotal.WithLabelValues(endpoint, class).Inc()
}

// RecordLLMCall records one LLM call's latency, and its failure if any.
func (m *AdvisorMetrics) RecordLLMCall(agent string, seconds float64, err error) {
	m.LLMLatency.WithLabelValues(agent).Observe(seconds)
	if err != nil {
		m.LLMErrors.WithLabelValues(agent).Inc()
	}
}
