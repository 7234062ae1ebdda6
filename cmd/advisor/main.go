// Copyright (C) 2025 Finsage Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command advisor runs the Finsage loan-advisor HTTP service.
//
// All configuration comes from environment variables:
//
//	PORT                     HTTP port (default 12310)
//	DATABASE_HOST            Postgres host; empty runs the in-memory store
//	DATABASE_PORT            Postgres port (default 5432)
//	DATABASE_NAME            database name (default finsage)
//	DATABASE_USER            database user
//	DATABASE_PASSWORD        database password
//	DATABASE_SSLMODE         "disable" or "verify-full" (default disable)
//	LLM_API_KEY              LLM provider API key (or /run/secrets/llm_api_key)
//	LLM_MODEL                model tag (default gpt-4o-mini)
//	LLM_BASE_URL             override for OpenAI-compatible gateways
//	SESSION_SECRET           at least 32 characters, required
//	CORS_ORIGINS             comma-separated origin list
//	NEURAL_SCORING           "true" enables the neural scoring path
//	MODEL_PATH               neural model graph file
//	STANDARDIZER_PATH        feature standardisation descriptor file
//	OTEL_EXPORTER_OTLP_ENDPOINT  collector endpoint; empty disables export
//	LOG_LEVEL                debug | info | warn | error (default info)
//	LOG_FORMAT               "json" for JSON records (default text)
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/finsagelabs/finsage/pkg/logging"
	"github.com/finsagelabs/finsage/services/advisor"
	"github.com/finsagelabs/finsage/services/advisor/store"
)

func main() {
	slog.SetDefault(logging.New(logging.Config{
		Level:   logging.ParseLevel(os.Getenv("LOG_LEVEL")),
		Service: "advisor",
		JSON:    strings.EqualFold(os.Getenv("LOG_FORMAT"), "json"),
	}))

	cfg, err := configFromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	svc, err := advisor.New(cfg)
	if err != nil {
		slog.Error("advisor initialization failed", "error", err)
		os.Exit(1)
	}

	if err := run(svc, cfg.Port); err != nil {
		slog.Error("advisor exited with error", "error", err)
		os.Exit(1)
	}
}

// run serves HTTP until SIGINT/SIGTERM, then drains in-flight requests.
func run(svc advisor.Service, port int) error {
	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           svc.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("advisor listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, draining")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		svc.Shutdown(shutdownCtx)
		return nil
	})

	return g.Wait()
}

// configFromEnv assembles the service configuration from the environment.
func configFromEnv() (advisor.Config, error) {
	cfg := advisor.Config{
		Port:             envInt("PORT", 12310),
		SessionSecret:    os.Getenv("SESSION_SECRET"),
		NeuralScoring:    envBool("NEURAL_SCORING"),
		ModelPath:        os.Getenv("MODEL_PATH"),
		StandardizerPath: os.Getenv("STANDARDIZER_PATH"),
		OTelEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
	cfg.EnableTracing = cfg.OTelEndpoint != ""

	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	}

	if host := os.Getenv("DATABASE_HOST"); host != "" {
		cfg.Postgres = store.PostgresConfig{
			Host:     host,
			Port:     envInt("DATABASE_PORT", 5432),
			Database: envDefault("DATABASE_NAME", "finsage"),
			User:     os.Getenv("DATABASE_USER"),
			Password: os.Getenv("DATABASE_PASSWORD"),
			SSLMode:  envDefault("DATABASE_SSLMODE", "disable"),
		}
	}

	if len(cfg.SessionSecret) < advisor.MinSessionSecretLength {
		return cfg, fmt.Errorf("SESSION_SECRET must be set and at least %d characters",
			advisor.MinSessionSecretLength)
	}
	return cfg, nil
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		slog.Warn("ignoring non-numeric environment value", "key", key, "value", v)
	}
	return fallback
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "true" || v == "1" || v == "yes"
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
