package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"server/internal/adapter/repo"
	"server/internal/domain"
	"server/internal/finalize"
	"server/internal/http/handlers"
	httpapi "server/internal/http/httpapi"
	"server/internal/infra"
	"server/internal/infra/geoip"
	"server/internal/pipeline"
	"server/internal/providers/genai"
	"server/internal/providers/image"
	"server/internal/providers/likeness"
	"server/internal/providers/upscale"
	"server/internal/ratelimit"
	"server/internal/storage"
	"server/internal/watermark"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()

	// Job persistence: pgx pool when DATABASE_URL is set, otherwise the
	// in-memory repository for local runs.
	var jobs domain.JobRepository
	if cfg.DatabaseURL != "" {
		dbpool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer dbpool.Close()
		jobs = repo.NewJobRepository(dbpool)
	} else {
		logger.Warn().Msg("DATABASE_URL not set, using in-memory job store")
		jobs = repo.NewMemoryJobRepository()
	}

	var store storage.ArtifactStore
	switch cfg.StorageDriver {
	case "s3":
		s3store, err := storage.NewS3Store(ctx, storage.S3Config{
			Bucket:         cfg.S3Bucket,
			Region:         cfg.S3Region,
			Endpoint:       cfg.S3Endpoint,
			ForcePathStyle: cfg.S3Endpoint != "",
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to init s3 storage")
		}
		store = s3store
	default:
		fstore, err := storage.NewFileStore(cfg.StoragePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to init filesystem storage")
		}
		store = fstore
	}

	genaiClient, err := genai.NewClient(genai.Options{
		APIKey:            cfg.GeminiAPIKey,
		BaseURL:           cfg.GeminiBaseURL,
		Model:             cfg.GeminiModel,
		Logger:            &logger,
		RequestsPerSecond: cfg.GeminiRequestsPerS,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init gemini client")
	}
	generator := image.NewGeminiGenerator(genaiClient)

	var scorer likeness.Scorer
	if cfg.UseMockLikeness {
		logger.Warn().Msg("USE_MOCK_LIKENESS enabled, likeness scores are fixed")
		scorer = likeness.MockScorer{Value: 0.9}
	} else {
		scorer = likeness.NewClipScorer(cfg.ClipScorerURL, nil, logger)
	}

	orchestrator := pipeline.NewOrchestrator(jobs, store, generator, scorer, watermark.Options{
		Text:    cfg.WatermarkText,
		Opacity: cfg.WatermarkOpacity,
	}, logger)

	flags := finalize.Flags{
		TestMode:         cfg.TestMode,
		AllowDigitalOnly: cfg.AllowDigitalOnly,
		BypassPayment:    cfg.BypassPaymentForTest,
	}
	upscaler := upscale.NewClient(cfg.UpscalerURL, cfg.UpscalerKey, nil)
	finalizer := finalize.NewFinalizer(jobs, store, upscaler, cfg.UpscaleFactor, flags, logger)

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}

	limiter := ratelimit.NewFixedWindow(cfg.RateLimitMaxGenerations, cfg.RateLimitWindow)
	go func() {
		ticker := time.NewTicker(cfg.RateLimitWindow)
		defer ticker.Stop()
		for now := range ticker.C {
			limiter.Sweep(now)
		}
	}()

	app := &handlers.App{
		Jobs:      jobs,
		Store:     store,
		Pipeline:  orchestrator,
		Finalizer: finalizer,
		Scorer:    scorer,
		Flags:     flags,
		Cfg:       cfg,
		Log:       logger,
	}
	router := httpapi.NewRouter(app, limiter, resolver, logger)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
