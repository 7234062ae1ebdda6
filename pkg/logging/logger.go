// Copyright (C) 2025 Finsage Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging builds the slog logger the advisor service runs on.
//
// # Description
//
// The service logs to a single stream (stderr by default, the container
// runtime collects it) in either human-readable text or JSON. Every
// record carries a "service" attribute, and records logged with a
// request context inherit the OpenTelemetry trace and span IDs of the
// active span, so a log line can be joined against its trace in the
// collector.
//
// # Basic Usage
//
//	logger := logging.New(logging.Config{
//	    Level:   logging.ParseLevel(os.Getenv("LOG_LEVEL")),
//	    Service: "advisor",
//	    JSON:    true,
//	})
//	slog.SetDefault(logger)
//
//	slog.InfoContext(ctx, "turn complete", "sessionId", id)
//	// {"msg":"turn complete","service":"advisor","trace_id":"4bf9...","sessionId":...}
//
// # Security Considerations
//
// Nothing here redacts attribute values. Callers must not log secrets
// or raw PII; log presence, not content.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// =============================================================================
// Log Levels
// =============================================================================

// Level is the minimum severity a logger emits. The zero value is Info,
// so an unconfigured Level does the right thing in production.
type Level int

const (
	LevelInfo Level = iota
	LevelDebug
	LevelWarn
	LevelError
)

// ParseLevel maps a LOG_LEVEL environment string to a Level.
// Unrecognised or empty input falls back to Info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// String returns the canonical lowercase name of the level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// =============================================================================
// Configuration
// =============================================================================

// Config configures the logger. The zero value emits Info+ text records
// to stderr with no service attribute.
type Config struct {
	// Level is the minimum severity emitted.
	Level Level

	// Service is stamped on every record as the "service" attribute.
	// Empty omits the attribute.
	Service string

	// JSON switches output from text to JSON records. Deployments set
	// this; local runs usually leave it off.
	JSON bool

	// Output overrides the destination. Default: os.Stderr.
	Output io.Writer
}

// New builds a slog.Logger for the configuration. The returned logger
// stamps trace and span IDs on every record whose context carries a
// valid OpenTelemetry span.
func New(config Config) *slog.Logger {
	out := config.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: config.Level.slogLevel()}

	var handler slog.Handler
	if config.JSON {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	handler = &traceHandler{inner: handler}

	if config.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{
			slog.String("service", config.Service),
		})
	}
	return slog.New(handler)
}

// =============================================================================
// Trace Correlation (Internal)
// =============================================================================

// traceHandler decorates records with the trace_id and span_id of the
// span in the record's context. Records logged without a span pass
// through untouched.
type traceHandler struct {
	inner slog.Handler
}

func (h *traceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *traceHandler) Handle(ctx context.Context, r slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r = r.Clone()
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return h.inner.Handle(ctx, r)
}

func (h *traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *traceHandler) WithGroup(name string) slog.Handler {
	return &traceHandler{inner: h.inner.WithGroup(name)}
}
