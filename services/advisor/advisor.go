// Copyright (C) 2025 Finsage Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package advisor provides the core advisor service for Finsage.
//
// This package contains the main service type that coordinates all
// components: HTTP routing, the LLM gateway, the dual-agent orchestrator,
// the parameter tracker, the scoring engine, the session store, and
// observability infrastructure.
//
// # Usage
//
//	cfg := advisor.Config{Port: 12310}
//	svc, err := advisor.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	svc.Run()
package advisor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/finsagelabs/finsage/services/advisor/agents"
	"github.com/finsagelabs/finsage/services/advisor/catalogue"
	"github.com/finsagelabs/finsage/services/advisor/middleware"
	"github.com/finsagelabs/finsage/services/advisor/observability"
	"github.com/finsagelabs/finsage/services/advisor/orchestrator"
	"github.com/finsagelabs/finsage/services/advisor/routes"
	"github.com/finsagelabs/finsage/services/advisor/scoring"
	"github.com/finsagelabs/finsage/services/advisor/store"
	"github.com/finsagelabs/finsage/services/advisor/sweeper"
	"github.com/finsagelabs/finsage/services/advisor/tracker"
	"github.com/finsagelabs/finsage/services/llm"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the advisor service.
//
// # Description
//
// Service abstracts the advisor lifecycle, enabling testing and
// alternative implementations. Only essential lifecycle methods are
// exposed.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and
// should only be called once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying Gin engine for testing.
	Router() *gin.Engine

	// Shutdown stops background work and releases held resources. Safe
	// to call after Run() returns.
	Shutdown(ctx context.Context)
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds advisor configuration options.
//
// # Description
//
// Config centralizes all configuration for the advisor service. Values
// can be populated from environment variables, config files, or
// programmatically for testing. Zero values use defaults applied by
// New(); Postgres is only used when Host is set, otherwise the in-memory
// store backs the service.
type Config struct {
	// Port is the HTTP server port. Default: 12310
	Port int

	// Postgres is the database configuration. When Host is empty the
	// service runs on the in-memory store.
	Postgres store.PostgresConfig

	// SessionSecret signs nothing yet but must still be long enough that
	// rotating it in later does not force a config change. Min 32 chars.
	SessionSecret string

	// CORSOrigins is the permitted cross-origin list. Empty disables CORS.
	CORSOrigins []string

	// NeuralScoring enables the neural scoring path. The path also needs
	// both model assets present; otherwise it is silently disabled.
	NeuralScoring bool

	// ModelPath is the neural model graph location.
	ModelPath string

	// StandardizerPath is the feature standardisation descriptor location.
	StandardizerPath string

	// CatalogueFile overrides the embedded lender catalogue. Empty uses
	// the embedded seed.
	CatalogueFile string

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Default: "finsage-otel-collector:4317"
	OTelEndpoint string

	// EnableTracing controls whether spans are exported. Default: false
	// (spans are still created but never leave the process).
	EnableTracing bool

	// SweepInterval is how often the expiry sweeper runs. Default: 1 hour.
	SweepInterval time.Duration

	// GinMode sets the Gin framework mode: "debug", "release", "test".
	GinMode string
}

// MinSessionSecretLength is the enforced floor for Config.SessionSecret.
const MinSessionSecretLength = 32

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12310
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "finsage-otel-collector:4317"
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = 1 * time.Hour
	}
	if cfg.GinMode == "" {
		cfg.GinMode = gin.ReleaseMode
	}
	return cfg
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// # Thread Safety
//
// Thread-safe after construction. All fields are read-only after New()
// returns.
type service struct {
	config        Config
	router        *gin.Engine
	store         store.Store
	llmClient     llm.Client
	catalogue     *catalogue.Catalogue
	neural        *scoring.NeuralScorer
	orchestrator  *orchestrator.Orchestrator
	tracker       *tracker.Tracker
	sweeper       *sweeper.Sweeper
	tracerCleanup func(context.Context)
	startedAt     time.Time
}

var _ Service = (*service)(nil)

// =============================================================================
// Constructor
// =============================================================================

// New creates a new advisor Service with the given configuration.
//
// # Description
//
// New initializes all advisor components:
//  1. Applies default configuration for missing values
//  2. Initializes OpenTelemetry tracing and Prometheus metrics
//  3. Loads the lender catalogue
//  4. Connects the session store (Postgres or in-memory)
//  5. Creates the LLM client and both agents
//  6. Builds the scoring engine, neural path included when available
//  7. Starts the expiry sweeper and registers HTTP routes
//
// # Inputs
//
//   - cfg: Service configuration. Zero values use defaults.
//
// # Outputs
//
//   - Service: Ready-to-run advisor service
//   - error: Non-nil if initialization fails
//
// # Limitations
//
//   - A Postgres config with an unreachable host fails construction;
//     there is no silent fallback to the in-memory store.
func New(cfg Config) (Service, error) {
	cfg = applyConfigDefaults(cfg)
	if len(cfg.SessionSecret) < MinSessionSecretLength {
		return nil, fmt.Errorf("session secret must be at least %d characters", MinSessionSecretLength)
	}

	s := &service{
		config:    cfg,
		startedAt: time.Now(),
	}

	if cfg.EnableTracing {
		cleanup, err := s.initTracer()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}
		s.tracerCleanup = cleanup
	}

	observability.InitMetrics()

	if err := s.initCatalogue(); err != nil {
		return nil, fmt.Errorf("failed to load lender catalogue: %w", err)
	}

	if err := s.initStore(); err != nil {
		s.Shutdown(context.Background())
		return nil, fmt.Errorf("failed to initialize session store: %w", err)
	}

	client, err := llm.NewOpenAIClient()
	if err != nil {
		s.Shutdown(context.Background())
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	s.llmClient = client

	s.initScoring()

	s.tracker = tracker.New(s.store)
	s.orchestrator = orchestrator.New(
		s.store,
		s.tracker,
		agents.NewExtractionAgent(s.llmClient),
		agents.NewConversationAgent(s.llmClient),
		scoring.NewEngine(s.catalogue, s.neural),
	)

	s.sweeper = sweeper.New(s.store, sweeper.Config{Interval: cfg.SweepInterval})
	if err := s.sweeper.Start(context.Background()); err != nil {
		slog.Warn("expiry sweeper failed to start", "error", err)
	}

	s.initRouter()
	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until it stops.
func (s *service) Run() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("starting advisor server",
		"port", s.config.Port,
		"store", s.storeKind(),
		"neural_scoring", s.neural != nil)

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// Shutdown stops background work and releases held resources.
func (s *service) Shutdown(ctx context.Context) {
	if s.sweeper != nil {
		s.sweeper.Stop()
	}
	if s.neural != nil {
		s.neural.Shutdown()
	}
	if pg, ok := s.store.(*store.PostgresStore); ok {
		if err := pg.Shutdown(); err != nil {
			slog.Warn("postgres shutdown error", "error", err)
		}
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(ctx)
	}
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// initTracer sets up the OTLP trace exporter for the configured collector.
// Uses an insecure gRPC connection, appropriate for internal networks.
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("advisor-service")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}

	return cleanup, nil
}

// initCatalogue loads the lender catalogue, embedded or from file.
func (s *service) initCatalogue() error {
	var err error
	if s.config.CatalogueFile != "" {
		s.catalogue, err = catalogue.LoadFile(s.config.CatalogueFile)
	} else {
		s.catalogue, err = catalogue.Load()
	}
	if err != nil {
		return err
	}
	slog.Info("lender catalogue loaded", "lenders", len(s.catalogue.List()))
	return nil
}

// initStore connects Postgres when configured, mirrors the catalogue into
// its lenders relation, and falls back to the in-memory store otherwise.
func (s *service) initStore() error {
	if s.config.Postgres.Host == "" {
		slog.Info("no database configured, using in-memory session store")
		s.store = store.NewMemoryStore()
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pg, err := store.NewPostgresStore(ctx, s.config.Postgres)
	if err != nil {
		return err
	}
	if err := pg.SeedLenders(ctx, s.catalogue.List()); err != nil {
		slog.Warn("lender catalogue seeding failed", "error", err)
	}
	s.store = pg
	return nil
}

// initScoring attempts the neural path when the flag is on. Any asset or
// runtime problem disables it for the process; the rule path always works.
func (s *service) initScoring() {
	if !s.config.NeuralScoring {
		return
	}
	neural, err := scoring.NewNeuralScorer(s.config.ModelPath, s.config.StandardizerPath)
	if err != nil {
		slog.Warn("neural scoring unavailable, using rule-based path only",
			"error", err)
		return
	}
	s.neural = neural
	slog.Info("neural scoring enabled",
		"model", s.config.ModelPath,
		"standardizer", s.config.StandardizerPath)
}

// initRouter sets up the Gin engine, middleware, and all routes.
func (s *service) initRouter() {
	gin.SetMode(s.config.GinMode)
	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.router.Use(otelgin.Middleware("advisor-service"))
	if len(s.config.CORSOrigins) > 0 {
		s.router.Use(middleware.CORS(s.config.CORSOrigins))
	}

	routes.SetupRoutes(s.router, s.store, s.tracker, s.orchestrator,
		s.catalogue, s.llmClient, middleware.NewRateLimiter(), s.startedAt)
}

// storeKind names the active store implementation for the startup log.
func (s *service) storeKind() string {
	if _, ok := s.store.(*store.PostgresStore); ok {
		return "postgres"
	}
	return "memory"
}
