package worker

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dunamismax/iopbridge/internal/apperrors"
	"github.com/dunamismax/iopbridge/internal/config"
	"github.com/dunamismax/iopbridge/internal/domain"
	"github.com/dunamismax/iopbridge/internal/pipeline"
	"github.com/dunamismax/iopbridge/internal/queue"
	"github.com/dunamismax/iopbridge/internal/store"
	"github.com/dunamismax/iopbridge/internal/webhook"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Ingester interface {
	Process(ctx context.Context, req domain.ImageRequest) (domain.PipelineReport, error)
}

type webhookSender interface {
	Send(ctx context.Context, endpoint, event string, payload any) error
}

type Server struct {
	logger         zerolog.Logger
	server         *asynq.Server
	ingester       Ingester
	webhookClient  webhookSender
	defaultWebhook string
	jobStore       store.JobStore
	metrics        *metrics
	tracer         trace.Tracer
}

func NewServer(
	logger zerolog.Logger,
	queueCfg config.QueueConfig,
	workerCfg config.WorkerConfig,
	defaultWebhook string,
	ingester Ingester,
	webhookClient webhookSender,
	jobStore store.JobStore,
) (*Server, error) {
	if ingester == nil {
		return nil, fmt.Errorf("image ingester is required")
	}
	if jobStore == nil {
		return nil, fmt.Errorf("job store is required")
	}

	logger = logger.With().Str("component", "worker").Logger()
	s := &Server{
		logger: logger,
		server: asynq.NewServer(
			queueCfg.RedisClientOpt(),
			asynq.Config{
				Concurrency: max(1, workerCfg.Concurrency),
				Queues: map[string]int{
					queueCfg.Name: 1,
				},
				LogLevel: asynq.WarnLevel,
				ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
					logger.Error().Err(err).Str("task_type", task.Type()).Msg("task failed")
				}),
			},
		),
		ingester:       ingester,
		webhookClient:  webhookClient,
		defaultWebhook: strings.TrimSpace(defaultWebhook),
		jobStore:       jobStore,
		metrics:        newMetrics(),
		tracer:         otel.Tracer("iopbridge/worker"),
	}
	return s, nil
}

func (s *Server) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeIngestImage, s.handleIngestImage)
	return s.server.Run(mux)
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handleIngestImage(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.ParseIngestImagePayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}
	if err := s.ingest(ctx, payload); err != nil {
		return fmt.Errorf("ingest job %s: %v: %w", payload.JobID, err, asynq.SkipRetry)
	}
	return nil
}

// ingest runs one job to a terminal state. The returned error is the
// pipeline failure, already recorded on the job.
func (s *Server) ingest(ctx context.Context, payload queue.IngestImagePayload) error {
	startedAt := time.Now()
	outcome := domain.JobStatusFailed
	logger := s.logger.With().Str("job_id", payload.JobID).Str("variant_id", payload.VariantID).Logger()

	ctx, span := s.tracer.Start(ctx, "worker.ingest_image", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("job.id", payload.JobID),
		attribute.String("image.variant_id", payload.VariantID),
	)
	defer span.End()

	s.metrics.activeJobs.Inc()
	defer func() {
		s.metrics.activeJobs.Dec()
		s.metrics.jobDuration.WithLabelValues(outcome).Observe(time.Since(startedAt).Seconds())
	}()

	logger.Info().Msg("ingest started")
	s.updateJobStatus(ctx, logger, payload.JobID, domain.JobStatusProcessing)

	report, err := s.ingester.Process(ctx, payload.ImageRequest())
	if err != nil {
		fault := string(apperrors.KindOf(err))
		s.metrics.jobsTotal.WithLabelValues(outcome, fault).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "pipeline failed")

		logger.Error().Err(err).
			Str("fault", fault).
			Str("reached", string(pipeline.ReachedStage(err))).
			Msg("ingest failed")

		s.complete(ctx, logger, payload.JobID, domain.JobResult{
			Status: domain.JobStatusFailed,
			Error:  err.Error(),
			Fault:  fault,
		})
		s.dispatchWebhook(ctx, logger, payload, webhook.EventJobFailed, map[string]any{
			"job_id":       payload.JobID,
			"status":       domain.JobStatusFailed,
			"image_url":    payload.ImageURL,
			"variant_id":   payload.VariantID,
			"requested_at": payload.RequestedAt,
			"failed_at":    time.Now().UTC(),
			"error":        err.Error(),
			"fault":        fault,
		})
		return err
	}

	outcome = domain.JobStatusSucceeded
	s.metrics.jobsTotal.WithLabelValues(outcome, "").Inc()
	s.metrics.recordReport(report)
	span.SetStatus(codes.Ok, "ingested")

	logger.Info().
		Str("processed_url", report.ProcessedURL).
		Bool("resized", report.WasResized).
		Int("processed_bytes", report.ProcessedSizeBytes).
		Msg("ingest completed")

	s.complete(ctx, logger, payload.JobID, domain.JobResult{
		Status: domain.JobStatusSucceeded,
		Report: &report,
	})
	s.dispatchWebhook(ctx, logger, payload, webhook.EventJobCompleted, map[string]any{
		"job_id":       payload.JobID,
		"status":       domain.JobStatusSucceeded,
		"requested_at": payload.RequestedAt,
		"completed_at": time.Now().UTC(),
		"report":       report,
	})
	return nil
}

func (s *Server) updateJobStatus(ctx context.Context, logger zerolog.Logger, jobID, status string) {
	if _, err := s.jobStore.UpdateStatus(ctx, jobID, status); err != nil {
		logger.Warn().Err(err).Str("status", status).Msg("job status update failed")
	}
}

func (s *Server) complete(ctx context.Context, logger zerolog.Logger, jobID string, result domain.JobResult) {
	if _, err := s.jobStore.Complete(ctx, jobID, result); err != nil {
		logger.Warn().Err(err).Str("status", result.Status).Msg("job completion write failed")
	}
}

// dispatchWebhook prefers the job's own endpoint over the service default.
// Delivery failures are logged only; the job outcome is already stored.
func (s *Server) dispatchWebhook(ctx context.Context, logger zerolog.Logger, payload queue.IngestImagePayload, event string, body map[string]any) {
	endpoint := strings.TrimSpace(payload.WebhookURL)
	if endpoint == "" {
		endpoint = s.defaultWebhook
	}
	if endpoint == "" || s.webhookClient == nil {
		return
	}

	if err := s.webhookClient.Send(ctx, endpoint, event, body); err != nil {
		s.metrics.webhookFailures.Inc()
		logger.Warn().Err(err).Str("event", event).Msg("webhook delivery failed")
	}
}
