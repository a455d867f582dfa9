// Interview funnel server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/interview-funnel/internal/api"
	"github.com/ashureev/interview-funnel/internal/backend"
	"github.com/ashureev/interview-funnel/internal/config"
	"github.com/ashureev/interview-funnel/internal/identity"
	"github.com/ashureev/interview-funnel/internal/interview"
	"github.com/ashureev/interview-funnel/internal/middleware"
	"github.com/ashureev/interview-funnel/internal/modality"
	"github.com/ashureev/interview-funnel/internal/progress"
	"github.com/ashureev/interview-funnel/internal/sessionctx"
	"github.com/ashureev/interview-funnel/internal/store"
	"github.com/ashureev/interview-funnel/internal/telemetry"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger, logCloser := telemetry.InitLogger(cfg.Log)
	defer func() { _ = logCloser.Close() }()

	tracer, shutdownTracing, err := telemetry.InitTracing(context.Background(), cfg.TraceFile)
	if err != nil {
		slog.Error("Failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer shutdownTracing()

	metrics := telemetry.NewRecorder()

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	httpClient := backend.NewHTTPClient(cfg.Backend.RequestTimeout)

	// Reasoning transport: gRPC when configured, HTTP otherwise or when the
	// gRPC service is unreachable at startup.
	var reasoner backend.Reasoner
	var reasoningHealth api.HealthChecker
	if addr := cfg.Backend.ReasoningGRPCAddr; addr != "" {
		grpcReasoner, err := backend.NewGrpcReasoner(backend.DefaultGrpcClientConfig(addr), logger)
		if err != nil {
			if cfg.Backend.ReasoningURL == "" {
				slog.Error("Failed to connect to reasoning service", "error", err)
				os.Exit(1)
			}
			slog.Warn("gRPC reasoning unavailable, using HTTP", "error", err)
		} else {
			defer grpcReasoner.Close()
			reasoner = grpcReasoner
			reasoningHealth = grpcReasoner
		}
	}
	if reasoner == nil {
		// Exchanges carry their own EXCHANGE_TIMEOUT deadline.
		reasoner = backend.NewHTTPReasoner(cfg.Backend.ReasoningURL, nil)
		slog.Info("Using HTTP reasoning transport", "url", cfg.Backend.ReasoningURL)
	}

	research := backend.NewResearchClient(cfg.Backend.ResearchURL, httpClient)
	checkout := backend.NewCheckoutClient(cfg.Backend.CheckoutURL, httpClient)
	transcriber := backend.NewTranscriptionClient(cfg.Backend.TranscribeURL, httpClient)

	// Initialize services.
	loader := sessionctx.NewLoader(repo, research, logger)
	sessions := interview.NewRegistry(loader, interview.Options{
		Reasoner:        reasoner,
		Transcripts:     repo,
		GreetingDelay:   cfg.Interview.GreetingDelay,
		ExchangeTimeout: cfg.Interview.ExchangeTimeout,
		FinalizeTimeout: cfg.Interview.FinalizeTimeout,
		ContextWindow:   cfg.Interview.ContextWindow,
		MaxQuestions:    cfg.Interview.MaxQuestions,
		Tracer:          tracer,
		Metrics:         metrics,
		Logger:          logger,
	})
	inputs := modality.NewRegistry(transcriber, modality.Options{
		MaxAudioBytes: cfg.Interview.MaxAudioBytes,
		Metrics:       metrics,
		Logger:        logger,
	})
	limiter := api.NewRateLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst)
	sessions.OnEvict(func(sessionID string) {
		inputs.Remove(sessionID)
		limiter.Forget(sessionID)
	})

	streamClient := progress.NewStreamClient()
	simulated := progress.NewSimulatedSource(cfg.Progress.SimulatedStepInterval)
	newMonitor := func(reportID string, onUpdate func(progress.Snapshot)) *progress.Monitor {
		live := progress.NewLiveSource(cfg.Backend.ReportStreamURL, streamClient, logger)
		return progress.NewMonitor(reportID, live, simulated, progress.MonitorOptions{
			OnUpdate: onUpdate,
			Tracer:   tracer,
			Metrics:  metrics,
			Logger:   logger,
		})
	}

	// Initialize handlers.
	baseHandler := api.NewHandler(repo, sessions, inputs, limiter, cfg)
	healthHandler := api.NewHealthHandler(repo, reasoningHealth)
	interviewHandler := api.NewInterviewHandler(baseHandler)
	funnelHandler := api.NewFunnelHandler(baseHandler, checkout)
	progressHandler := api.NewProgressHandler(newMonitor, cfg.SSE)
	voiceHandler := api.NewVoiceHandler(baseHandler, cfg.FrontendURL, cfg.IsDevelopment(), cfg.Interview.MaxAudioBytes)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(allowedOrigins(cfg)))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	// Public routes.
	healthHandler.RegisterHealth(r)
	if cfg.Metrics {
		r.Handle("/metrics", metrics.Handler())
	}

	funnelHandler.RegisterRoutes(r)
	interviewHandler.RegisterRoutes(r)
	progressHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/interview/voice", voiceHandler.ServeHTTP)

	// Create server.
	// Note: SSE connections require long timeouts (no WriteTimeout)
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,                 // 0 = no timeout for SSE support
		IdleTimeout:  120 * time.Second, // 2 minutes for idle connections
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start idle session sweeper.
	go sessions.RunSweeper(ctx, cfg.Interview.SweepInterval, cfg.Interview.IdleTTL, repo)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

func allowedOrigins(cfg *config.Config) []string {
	if cfg.IsDevelopment() || cfg.FrontendURL == "" {
		return []string{"*"}
	}
	return []string{cfg.FrontendURL}
}
