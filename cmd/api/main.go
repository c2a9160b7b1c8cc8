package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dunamismax/iopbridge/internal/api"
	"github.com/dunamismax/iopbridge/internal/config"
	"github.com/dunamismax/iopbridge/internal/fetch"
	"github.com/dunamismax/iopbridge/internal/marketplace"
	"github.com/dunamismax/iopbridge/internal/pipeline"
	"github.com/dunamismax/iopbridge/internal/queue"
	"github.com/dunamismax/iopbridge/internal/storage"
	"github.com/dunamismax/iopbridge/internal/store"
	"github.com/dunamismax/iopbridge/internal/telemetry"
	"github.com/dunamismax/iopbridge/internal/webhook"
	"github.com/rs/zerolog"
)

func main() {
	cfg := config.Load()
	logger := zerolog.New(os.Stdout).Level(cfg.Log.ZerologLevel()).With().
		Timestamp().
		Str("service", "api").
		Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.Tracing, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("tracing setup failed")
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("tracing shutdown failed")
		}
	}()

	if err := pipeline.Startup(); err != nil {
		logger.Fatal().Err(err).Msg("image runtime startup failed")
	}
	defer pipeline.Shutdown()

	storageCfg := cfg.Storage.ClientConfig()
	var artifacts pipeline.ArtifactStore
	if client, err := storage.NewClient(storageCfg); err != nil {
		// Requests still run and fail their configuration check.
		logger.Warn().Err(err).Msg("object storage unavailable")
	} else {
		artifacts = client
	}

	processor := pipeline.NewProcessor(
		pipeline.Config{Storage: storageCfg},
		fetch.New(fetch.Config{MaxBytes: cfg.Fetch.MaxBytes}),
		artifacts,
		logger,
	)

	catalog := marketplace.NewClient(marketplace.Config{
		URL:       cfg.Marketplace.URL,
		AppKey:    cfg.Marketplace.AppKey,
		AppSecret: cfg.Marketplace.AppSecret,
	}, logger)
	if !catalog.Configured() {
		logger.Warn().Msg("marketplace credentials missing, product routes will fail")
	}

	hooks := webhook.NewClient(webhook.Config{
		SigningSecret: cfg.Webhook.SigningSecret,
		Timeout:       cfg.Webhook.Timeout,
	}, logger)

	jobStore, closeStore := openJobStore(ctx, cfg.Database, logger)
	defer closeStore()

	queueClient := queue.NewClient(cfg.Queue.RedisClientOpt(), cfg.Queue.Name)
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Warn().Err(err).Msg("queue client close failed")
		}
	}()

	app := api.NewServer(logger, api.Deps{
		Ingester:   processor,
		Catalog:    catalog,
		Forwarder:  hooks,
		ForwardURL: cfg.Webhook.URL,
		Queue:      queueClient,
		JobStore:   jobStore,
	})

	httpServer := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      app.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.API.Addr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info().Msg("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	// Each forward is bounded by the webhook timeout.
	app.Wait()
}

func openJobStore(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (store.JobStore, func()) {
	if cfg.DSN == "" {
		logger.Info().Msg("POSTGRES_DSN not set, using in-memory job store")
		return store.NewMemoryJobStore(), func() {}
	}

	pg, err := store.NewPostgresJobStore(ctx, cfg.DSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres job store unavailable")
	}
	return pg, func() {
		if err := pg.Close(); err != nil {
			logger.Warn().Err(err).Msg("postgres close failed")
		}
	}
}
