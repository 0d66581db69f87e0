package main

import (
	"context"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"meridian/internal/config"
	"meridian/internal/handler"
	"meridian/internal/middleware"
	"meridian/internal/repository/postgres"
	videopg "meridian/internal/repository/postgres/video"
	workflowpg "meridian/internal/repository/postgres/workflow"
	"meridian/internal/service/coordinator"
	"meridian/internal/service/video/blobstore"
	"meridian/internal/service/video/llmgen"
	llmganthropic "meridian/internal/service/video/llmgen/anthropic"
	"meridian/internal/service/video/llmgen/lorem"
	"meridian/internal/service/video/objectstore"
	"meridian/internal/service/video/slideclient"
	"meridian/internal/service/video/transcriptclient"
	"meridian/internal/service/video/workflows"
	wfsvc "meridian/internal/service/workflow"
)

// newLLMProvider selects the fake lorem provider outside prod when no
// Anthropic API key is configured, and the real Anthropic provider
// otherwise, mirroring the teacher's
// provider-by-environment selection in its own llm package.
func newLLMProvider(cfg *config.Config, logger *slog.Logger) llmgen.Provider {
	if cfg.Environment != "prod" && cfg.AnthropicAPIKey == "" {
		logger.Warn("ANTHROPIC_API_KEY not set, using lorem fake provider")
		return lorem.New()
	}
	provider, err := llmganthropic.New(cfg.AnthropicAPIKey)
	if err != nil {
		log.Fatalf("failed to create anthropic provider: %v", err)
	}
	return provider
}

func main() {
	_ = godotenv.Load()

	cfg := config.MustLoad()

	logLevel := slog.LevelInfo
	if cfg.Environment == "dev" || cfg.Environment == "test" {
		logLevel = slog.LevelDebug
	}

	logOutput := io.Writer(os.Stdout)
	if cfg.Environment == "prod" {
		logFile, err := config.SetupLogFile("logs", 14)
		if err != nil {
			log.Fatalf("failed to set up log file: %v", err)
		}
		logOutput = io.MultiWriter(os.Stdout, logFile)
	}
	logger := slog.New(slog.NewJSONHandler(logOutput, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	logger.Info("server starting", "environment", cfg.Environment, "port", cfg.Port, "table_prefix", cfg.TablePrefix)

	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to create connection pool: %v", err)
	}
	defer pool.Close()

	tables := postgres.NewTableNames(cfg.TablePrefix)
	repoConfig := &postgres.RepositoryConfig{Pool: pool, Tables: tables, Logger: logger}

	transcripts := videopg.NewTranscriptRepository(repoConfig)
	versionedRuns := videopg.NewVersionedRunRepository(repoConfig)
	slideExtraction := videopg.NewSlideExtractionRepository(repoConfig)
	slides := videopg.NewSlideRepository(repoConfig)
	slideFeedback := videopg.NewSlideFeedbackRepository(repoConfig)
	slideAnalysis := videopg.NewSlideAnalysisRepository(repoConfig)
	runs := workflowpg.NewRunStore(repoConfig)
	events := workflowpg.NewEventStore(repoConfig)

	llmProvider := newLLMProvider(cfg, logger)

	retryPolicies, err := config.LoadRetryPolicies("config/retry_policies.yaml")
	if err != nil {
		logger.Error("failed to load retry policy overrides, using defaults", "error", err)
		retryPolicies = config.RetryPolicies{}
	}

	deps := &workflows.Deps{
		Transcripts:     transcripts,
		VersionedRuns:   versionedRuns,
		SlideExtraction: slideExtraction,
		Slides:          slides,
		SlideFeedback:   slideFeedback,
		SlideAnalysis:   slideAnalysis,

		TranscriptClient: transcriptclient.New(cfg.TranscriptAPIBaseURL, cfg.TranscriptAPIToken),
		SlideClient:      slideclient.New(cfg.SlideExtractorBaseURL, cfg.SlideExtractorToken),
		ObjectStore:      objectstore.New(cfg.ObjectStoreToken),
		BlobStore:        blobstore.New(cfg.BlobStoreBaseURL, cfg.BlobStoreToken, cfg.BlobStorePublicBaseURL),
		LLM:              llmProvider,

		RetryPolicies: retryPolicies,

		DefaultModel: cfg.DefaultModel,
		Logger:       logger,
	}

	runtime := wfsvc.NewRuntime(runs, events, logger)
	deps.Runtime = runtime
	deps.Tailer = wfsvc.NewTailer(events, runtime.Notifier())

	for _, def := range deps.Catalog() {
		runtime.Register(def.Name, def.Run)
	}

	if err := runtime.RecoverAll(ctx); err != nil {
		logger.Error("failed to recover in-flight runs", "error", err)
	}

	coord := coordinator.New(runtime, runs, versionedRuns, slideExtraction, logger)

	h := handler.New(coord, runtime, deps.Tailer, runs, versionedRuns, slideExtraction, slideFeedback, deps, logger)
	h.HealthCheck = func(ctx context.Context) error { return pool.Ping(ctx) }

	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler})
	app.Use(recover.New())
	app.Use(middleware.RequestLogger(logger))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     strings.Join([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}, ","),
		AllowHeaders:     "Origin, Content-Type, Accept",
		AllowCredentials: true,
	}))

	h.RegisterRoutes(app)

	logger.Info("routes registered, server listening", "port", cfg.Port)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- app.Listen(":" + cfg.Port)
	}()

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serverErr:
		if err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	case <-sigCtx.Done():
		logger.Info("shutdown signal received, draining connections")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
		}
	}
}
