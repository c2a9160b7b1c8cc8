package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dunamismax/iopbridge/internal/config"
	"github.com/dunamismax/iopbridge/internal/fetch"
	"github.com/dunamismax/iopbridge/internal/pipeline"
	"github.com/dunamismax/iopbridge/internal/storage"
	"github.com/dunamismax/iopbridge/internal/store"
	"github.com/dunamismax/iopbridge/internal/telemetry"
	"github.com/dunamismax/iopbridge/internal/webhook"
	"github.com/dunamismax/iopbridge/internal/worker"
	"github.com/rs/zerolog"
)

func main() {
	cfg := config.Load()
	logger := zerolog.New(os.Stdout).Level(cfg.Log.ZerologLevel()).With().
		Timestamp().
		Str("service", "worker").
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
	storageClient, err := storage.NewClient(storageCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("object storage is required by the worker")
	}
	if err := storageClient.EnsureBucket(ctx); err != nil {
		logger.Fatal().Err(err).Str("bucket", storageClient.Bucket()).Msg("bucket check failed")
	}

	var jobStore store.JobStore = store.NewMemoryJobStore()
	if cfg.Database.DSN != "" {
		pg, err := store.NewPostgresJobStore(ctx, cfg.Database.DSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres job store unavailable")
		}
		defer pg.Close()
		jobStore = pg
	} else {
		logger.Warn().Msg("POSTGRES_DSN not set, job status is local to this worker")
	}

	processor := pipeline.NewProcessor(
		pipeline.Config{Storage: storageCfg},
		fetch.New(fetch.Config{MaxBytes: cfg.Fetch.MaxBytes}),
		storageClient,
		logger,
	)
	hooks := webhook.NewClient(webhook.Config{
		SigningSecret: cfg.Webhook.SigningSecret,
		Timeout:       cfg.Webhook.Timeout,
	}, logger)

	srv, err := worker.NewServer(logger, cfg.Queue, cfg.Worker, cfg.Webhook.URL, processor, hooks, jobStore)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker setup failed")
	}

	logger.Info().
		Int("concurrency", cfg.Worker.Concurrency).
		Str("queue", cfg.Queue.Name).
		Str("redis", cfg.Queue.RedisAddr).
		Msg("starting worker")

	metricsServer := &http.Server{
		Addr:              cfg.Worker.MetricsAddr,
		Handler:           srv.MetricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("addr", cfg.Worker.MetricsAddr).Msg("metrics server failed")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	// Run blocks until asynq sees SIGINT or SIGTERM.
	if err := srv.Run(); err != nil {
		logger.Fatal().Err(err).Msg("worker failed")
	}
}
