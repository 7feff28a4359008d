// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator provides the streaming chat backend for MeetHub.
//
// This package contains the main Service type that coordinates all
// components: HTTP routing, the LLM client, intent classification, the
// conversation store, document retrieval, Mattermost delivery, the content
// policy engine, and observability infrastructure.
//
// # Usage
//
//	cfg := orchestrator.Config{Port: 12210, LLMBackend: "ollama"}
//	svc, err := orchestrator.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/meethub/services/llm"
	"github.com/AleutianAI/meethub/services/orchestrator/conversation"
	"github.com/AleutianAI/meethub/services/orchestrator/handlers"
	"github.com/AleutianAI/meethub/services/orchestrator/observability"
	"github.com/AleutianAI/meethub/services/orchestrator/policy"
	"github.com/AleutianAI/meethub/services/orchestrator/retrieval"
	"github.com/AleutianAI/meethub/services/orchestrator/routes"
	"github.com/AleutianAI/meethub/services/orchestrator/services"
	"github.com/AleutianAI/meethub/services/orchestrator/stream"
	"github.com/AleutianAI/meethub/services/orchestrator/ttl"
	"github.com/AleutianAI/meethub/services/orchestrator/workflow"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the orchestrator service.
//
// # Description
//
// Service abstracts the orchestrator lifecycle, enabling testing and
// alternative implementations. Only essential lifecycle methods are
// exposed.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and should
// only be called once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying Gin engine for testing.
	//
	// Callers must not modify the router after construction.
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds orchestrator configuration options.
//
// # Description
//
// Config centralizes all configuration for the orchestrator service.
// Values can be populated from environment variables or programmatically
// for testing. All fields are optional with defaults applied by New().
//
// External service endpoints (search API, Weaviate, Mattermost) are read
// from the environment by their respective clients, so presence of those
// variables determines which backends are wired.
//
// # Examples
//
//	// Minimal config (uses all defaults)
//	cfg := Config{}
//
//	// Custom port and LLM backend
//	cfg := Config{
//	    Port:       8080,
//	    LLMBackend: "openai",
//	}
type Config struct {
	// Port is the HTTP server port. Default: 12210
	Port int

	// LLMBackend specifies the LLM provider.
	// Valid values: "ollama", "openai"
	// Default: "ollama"
	LLMBackend string

	// RedisAddr is the Redis address for the conversation store.
	// If empty, sessions are held in process memory.
	// Example: "localhost:6379"
	RedisAddr string

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Default: "meethub-otel-collector:4317"
	OTelEndpoint string

	// APIToken, when set, requires a matching bearer token on /v1 routes.
	APIToken string

	// PolicyRulesPath overrides the embedded content policy rules.
	PolicyRulesPath string

	// GinMode sets the Gin framework mode.
	// Valid values: "debug", "release", "test"
	// Default: uses GIN_MODE env var or "debug"
	GinMode string

	// SessionTTL is how long idle sessions are retained.
	// Default: 24 hours
	SessionTTL time.Duration

	// SweepInterval is how often the in-memory session sweeper runs.
	// Default: 15 minutes
	SweepInterval time.Duration

	// TTLEnabled enables the background session sweeper for the
	// in-memory store. Redis expires keys natively.
	// Default: true
	TTLEnabled bool
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// # Description
//
// service is the main implementation that coordinates:
//   - HTTP routing via Gin
//   - LLM client and intent classification
//   - Conversation store (memory or Redis)
//   - Document retrieval (search API or Weaviate)
//   - Mattermost minutes delivery (optional)
//   - Content policy scanning
//   - OpenTelemetry tracing and Prometheus metrics
//
// # Thread Safety
//
// Thread-safe after construction. All fields are read-only after New()
// returns.
type service struct {
	config        Config
	router        *gin.Engine
	store         conversation.Store
	llmClient     llm.LLMClient
	searcher      services.DocumentSearcher
	distributor   services.MinutesDistributor
	policyEngine  *policy.Engine
	sweeper       ttl.SessionSweeper
	tracerCleanup func(context.Context)
}

// =============================================================================
// Constructor
// =============================================================================

// New creates a new orchestrator Service with the given configuration.
//
// # Description
//
// New initializes all orchestrator components:
//  1. Applies default configuration for missing values
//  2. Initializes OpenTelemetry tracing
//  3. Initializes Prometheus metrics
//  4. Creates the conversation store and session sweeper
//  5. Creates the LLM client based on backend type
//  6. Creates the document searcher from the environment
//  7. Creates the Mattermost distributor if configured
//  8. Initializes the content policy engine
//  9. Sets up HTTP routes
//
// Retrieval and Mattermost are optional. When their environment is absent
// the service runs without them and the affected intents degrade with
// explanatory stream content instead of failing at startup.
//
// # Inputs
//
//   - cfg: Service configuration. Zero values use defaults.
//
// # Outputs
//
//   - Service: Ready-to-run orchestrator service
//   - error: Non-nil if initialization fails
//
// # Assumptions
//
//   - Environment variables are set for the chosen LLM provider
func New(cfg Config) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}

	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	// Pre-register the metric collectors so /metrics is populated from
	// the first scrape.
	observability.DefaultMetrics()

	if err := s.initStore(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize conversation store: %w", err)
	}

	if err := s.initLLMClient(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	s.initSearcher()
	s.initDistributor()

	if err := s.initPolicyEngine(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize policy engine: %w", err)
	}

	s.initRouter()

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting orchestrator server", "port", s.config.Port)

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12210
	}
	if cfg.LLMBackend == "" {
		cfg.LLMBackend = "ollama"
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "meethub-otel-collector:4317"
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = 15 * time.Minute
	}
	cfg.TTLEnabled = true

	return cfg
}

// initTracer initializes OpenTelemetry distributed tracing.
//
// # Description
//
// Sets up an OTLP trace exporter to send spans to the configured
// collector over an insecure gRPC connection, appropriate for internal
// networks.
//
// # Outputs
//
//   - func(context.Context): Cleanup function to call on shutdown
//   - error: Non-nil if tracer setup fails
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
		resource.WithAttributes(semconv.ServiceNameKey.String("meethub-orchestrator")))
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

// initStore creates the conversation store and, for the in-memory
// variant, starts the idle session sweeper.
func (s *service) initStore() error {
	if s.config.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: s.config.RedisAddr})
		if err := client.Ping(context.Background()).Err(); err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}
		s.store = conversation.NewRedisStore(client, s.config.SessionTTL)
		slog.Info("Using Redis conversation store", "addr", s.config.RedisAddr)
		return nil
	}

	memStore := conversation.NewMemoryStore()
	s.store = memStore
	slog.Info("Using in-memory conversation store")

	if s.config.TTLEnabled {
		s.sweeper = ttl.NewSessionSweeper(memStore, nil, ttl.SweeperConfig{
			Interval:    s.config.SweepInterval,
			IdleTimeout: s.config.SessionTTL,
		})
		if err := s.sweeper.Start(context.Background()); err != nil {
			slog.Warn("Session sweeper failed to start", "error", err)
		}
	}
	return nil
}

// initLLMClient initializes the LLM provider client.
func (s *service) initLLMClient() error {
	var err error

	switch s.config.LLMBackend {
	case "openai":
		s.llmClient, err = llm.NewOpenAIClient()
		slog.Info("Using OpenAI LLM backend")
	case "ollama":
		s.llmClient, err = llm.NewOllamaClient()
		slog.Info("Using Ollama LLM backend")
	default:
		slog.Warn("Unknown LLM backend, defaulting to ollama", "backend", s.config.LLMBackend)
		s.llmClient, err = llm.NewOllamaClient()
	}

	return err
}

// initSearcher selects the document retrieval backend from the
// environment: the search API when SEARCH_API_URL is set, Weaviate when
// WEAVIATE_HOST is set, otherwise none.
func (s *service) initSearcher() {
	if os.Getenv("SEARCH_API_URL") != "" {
		client, err := services.NewSearchClient()
		if err != nil {
			slog.Warn("Search API client initialization failed", "error", err)
			return
		}
		s.searcher = client
		slog.Info("Using search API retrieval backend")
		return
	}

	if os.Getenv("WEAVIATE_HOST") != "" {
		searcher, err := retrieval.NewWeaviateSearcher()
		if err != nil {
			slog.Warn("Weaviate searcher initialization failed", "error", err)
			return
		}
		if err := searcher.EnsureSchema(context.Background()); err != nil {
			slog.Warn("Weaviate schema check failed", "error", err)
		}
		s.searcher = searcher
		slog.Info("Using Weaviate retrieval backend")
		return
	}

	slog.Info("No retrieval backend configured, answering without document context")
}

// initDistributor creates the Mattermost client when its environment is
// present. Minutes distribution degrades gracefully without it.
func (s *service) initDistributor() {
	client, err := services.NewMattermostClient()
	if err != nil {
		slog.Info("Mattermost not configured, minutes distribution disabled",
			"reason", err)
		return
	}
	s.distributor = client
	slog.Info("Mattermost distributor initialized")
}

// initPolicyEngine loads the content policy rules.
func (s *service) initPolicyEngine() error {
	var err error
	if s.config.PolicyRulesPath != "" {
		s.policyEngine, err = policy.NewEngineFromFile(s.config.PolicyRulesPath)
	} else {
		s.policyEngine, err = policy.NewEngine()
	}
	return err
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}

	manager := workflow.NewManager(workflow.Deps{
		Store:       s.store,
		Searcher:    s.searcher,
		Distributor: s.distributor,
		LLM:         s.llmClient,
		Classifier:  llm.NewIntentClassifier(s.llmClient),
	})
	chat := handlers.NewChatHandlers(manager, s.store, s.policyEngine,
		stream.DefaultSuppressionPolicy())

	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("meethub-orchestrator"))

	routes.SetupRoutes(s.router, chat, s.config.APIToken)
}

// cleanup releases all resources held by the service.
//
// Called when Run() exits or on initialization failure.
func (s *service) cleanup() {
	if s.sweeper != nil {
		if err := s.sweeper.Stop(); err != nil {
			slog.Warn("Session sweeper stop error", "error", err)
		}
	}

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			slog.Warn("Conversation store close error", "error", err)
		}
	}

	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
