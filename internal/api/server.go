package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dunamismax/iopbridge/internal/apperrors"
	"github.com/dunamismax/iopbridge/internal/domain"
	"github.com/dunamismax/iopbridge/internal/id"
	"github.com/dunamismax/iopbridge/internal/marketplace"
	"github.com/dunamismax/iopbridge/internal/pipeline"
	"github.com/dunamismax/iopbridge/internal/queue"
	"github.com/dunamismax/iopbridge/internal/store"
	"github.com/dunamismax/iopbridge/internal/webhook"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const serviceMessage = "iopbridge marketplace image service is running"

type Ingester interface {
	Process(ctx context.Context, req domain.ImageRequest) (domain.PipelineReport, error)
}

type Catalog interface {
	ProductInfo(ctx context.Context, itemID, accessToken string) (marketplace.Response, error)
	SearchItems(ctx context.Context, shopID string, pageNo, pageSize int, accessToken string) (marketplace.Response, error)
	SearchAll(ctx context.Context, shopID, accessToken string) ([]any, error)
}

type queueEnqueuer interface {
	EnqueueIngestImage(ctx context.Context, payload queue.IngestImagePayload) (*asynq.TaskInfo, error)
}

type forwarder interface {
	Forward(ctx context.Context, endpoint, event string, payload any)
}

// Deps are the collaborators behind the routes. Queue may be nil, in which
// case the async job routes answer 503.
type Deps struct {
	Ingester   Ingester
	Catalog    Catalog
	Forwarder  forwarder
	ForwardURL string
	Queue      queueEnqueuer
	JobStore   store.JobStore
}

type Server struct {
	logger     zerolog.Logger
	ingester   Ingester
	catalog    Catalog
	forwarder  forwarder
	forwardURL string
	queue      queueEnqueuer
	jobStore   store.JobStore
	metrics    *metrics
	tracer     trace.Tracer
	mux        *http.ServeMux
	now        func() time.Time
	pending    sync.WaitGroup
}

func NewServer(logger zerolog.Logger, deps Deps) *Server {
	jobStore := deps.JobStore
	if jobStore == nil {
		jobStore = store.NewMemoryJobStore()
	}

	s := &Server{
		logger:     logger.With().Str("component", "api").Logger(),
		ingester:   deps.Ingester,
		catalog:    deps.Catalog,
		forwarder:  deps.Forwarder,
		forwardURL: strings.TrimSpace(deps.ForwardURL),
		queue:      deps.Queue,
		jobStore:   jobStore,
		metrics:    newMetrics(),
		tracer:     otel.Tracer("iopbridge/api"),
		mux:        http.NewServeMux(),
		now:        func() time.Time { return time.Now().UTC() },
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.withTracing(s.metrics.withHTTPMetrics(s.mux))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleRoot)
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())
	s.mux.HandleFunc("POST /processImage", s.handleProcessImage)
	s.mux.HandleFunc("POST /getProductInfo", s.handleProductInfo)
	s.mux.HandleFunc("POST /getProducts", s.handleProducts)
	s.mux.HandleFunc("POST /getAllProducts", s.handleAllProducts)
	s.mux.HandleFunc("POST /v1/jobs", s.handleCreateJob)
	s.mux.HandleFunc("GET /v1/jobs/{id}", s.handleGetJob)
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": serviceMessage})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleProcessImage(w http.ResponseWriter, r *http.Request) {
	var body domain.ProcessImageRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, apperrors.Input("request.decode", err))
		return
	}

	// A client hanging up does not abort a run that may already have
	// uploaded its raw artifact.
	report, err := s.ingester.Process(context.WithoutCancel(r.Context()), body.ImageRequest())
	if err != nil {
		kind := apperrors.KindOf(err)
		s.metrics.ingestTotal.WithLabelValues(outcomeLabel(kind)).Inc()
		s.logger.Error().Err(err).
			Str("fault", string(kind)).
			Str("reached", string(pipeline.ReachedStage(err))).
			Msg("process image failed")
		s.writeError(w, err)
		return
	}

	s.metrics.ingestTotal.WithLabelValues("success").Inc()
	s.metrics.recordReport(report)
	writeJSON(w, http.StatusOK, domain.Success("success", report))
}

func (s *Server) handleProductInfo(w http.ResponseWriter, r *http.Request) {
	var body domain.ProductInfoRequest
	if !s.decodeValid(w, r, &body) {
		return
	}
	if s.catalog == nil {
		s.writeError(w, apperrors.Config("marketplace", marketplace.ErrNotConfigured))
		return
	}

	resp, err := s.catalog.ProductInfo(r.Context(), body.ItemID, body.AccessToken)
	if err != nil {
		s.logger.Error().Err(err).Str("item_id", body.ItemID).Msg("product info failed")
		writeJSON(w, http.StatusInternalServerError, domain.Failure(err))
		return
	}

	writeJSON(w, http.StatusOK, domain.Success(resp.Type, map[string]any{"product": resp.Body}))
	s.forward(r.Context(), webhook.EventProductInfo, resp.Body)
}

func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	var body domain.ProductsRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, apperrors.Input("request.decode", err))
		return
	}
	body = body.WithDefaults()
	if err := body.Validate(); err != nil {
		s.writeError(w, apperrors.Input("request.validate", err))
		return
	}
	if s.catalog == nil {
		s.writeError(w, apperrors.Config("marketplace", marketplace.ErrNotConfigured))
		return
	}

	resp, err := s.catalog.SearchItems(r.Context(), body.ShopID, body.PageNo, body.PageSize, body.AccessToken)
	if err != nil {
		s.logger.Error().Err(err).Str("shop_id", body.ShopID).Int("page_no", body.PageNo).Msg("product search failed")
		writeJSON(w, http.StatusInternalServerError, domain.Failure(err))
		return
	}

	writeJSON(w, http.StatusOK, domain.Success(resp.Type, map[string]any{"products": resp.Body}))
	s.forward(r.Context(), webhook.EventProductsSearch, resp.Body)
}

func (s *Server) handleAllProducts(w http.ResponseWriter, r *http.Request) {
	var body domain.AllProductsRequest
	if !s.decodeValid(w, r, &body) {
		return
	}
	if s.catalog == nil {
		s.writeError(w, apperrors.Config("marketplace", marketplace.ErrNotConfigured))
		return
	}

	items, err := s.catalog.SearchAll(r.Context(), body.ShopID, body.AccessToken)
	if err != nil {
		s.logger.Error().Err(err).Str("shop_id", body.ShopID).Msg("shop listing failed")
		writeJSON(w, http.StatusInternalServerError, domain.Failure(err))
		return
	}

	writeJSON(w, http.StatusOK, domain.Success("success", map[string]any{
		"products":    items,
		"total_count": len(items),
	}))
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var body domain.CreateJobRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, apperrors.Input("request.decode", err))
		return
	}
	req := body.ImageRequest()
	if err := req.Validate(); err != nil {
		s.writeError(w, apperrors.Input("request.validate", err))
		return
	}
	if s.queue == nil {
		writeJSON(w, http.StatusServiceUnavailable, domain.Failure(errors.New("async jobs are disabled")))
		return
	}

	now := s.now()
	job := domain.Job{
		ID:         id.New(),
		Status:     domain.JobStatusCreated,
		ImageURL:   req.SourceURL,
		VariantID:  req.VariantID,
		Quality:    req.Quality,
		WebhookURL: strings.TrimSpace(body.WebhookURL),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.jobStore.Create(r.Context(), job); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("create job failed")
		writeJSON(w, http.StatusInternalServerError, domain.Failure(errors.New("failed to create job")))
		return
	}

	taskInfo, err := s.queue.EnqueueIngestImage(r.Context(), queue.PayloadForJob(job))
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("enqueue failed")
		if _, cerr := s.jobStore.Complete(r.Context(), job.ID, domain.JobResult{
			Status: domain.JobStatusFailed,
			Error:  fmt.Sprintf("enqueue: %v", err),
		}); cerr != nil {
			s.logger.Warn().Err(cerr).Str("job_id", job.ID).Msg("mark job failed")
		}
		writeJSON(w, http.StatusInternalServerError, domain.Failure(errors.New("failed to enqueue job")))
		return
	}
	s.metrics.queueEnqueued.WithLabelValues(taskInfo.Queue).Inc()

	if _, err := s.jobStore.UpdateStatus(r.Context(), job.ID, domain.JobStatusQueued); err != nil {
		s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("update status failed")
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":     job.ID,
		"status":     domain.JobStatusQueued,
		"task_id":    taskInfo.ID,
		"queue":      taskInfo.Queue,
		"status_url": "/v1/jobs/" + job.ID,
	})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimSpace(r.PathValue("id"))
	job, ok, err := s.jobStore.Get(r.Context(), jobID)
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("load job failed")
		writeJSON(w, http.StatusInternalServerError, domain.Failure(errors.New("failed to load job")))
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, domain.Failure(store.ErrJobNotFound))
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type validator interface {
	Validate() error
}

// decodeValid decodes into a pointer to a request type and validates it.
func (s *Server) decodeValid(w http.ResponseWriter, r *http.Request, into validator) bool {
	if err := decodeJSON(r, into); err != nil {
		s.writeError(w, apperrors.Input("request.decode", err))
		return false
	}
	if err := into.Validate(); err != nil {
		s.writeError(w, apperrors.Input("request.validate", err))
		return false
	}
	return true
}

// forward delivers body in the background. It outlives the request: the
// caller has its response already and a disconnect does not cancel delivery.
func (s *Server) forward(ctx context.Context, event string, body map[string]any) {
	if s.forwarder == nil || s.forwardURL == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		s.forwarder.Forward(ctx, s.forwardURL, event, body)
	}()
}

// Wait blocks until every background webhook forward has returned.
func (s *Server) Wait() {
	s.pending.Wait()
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	writeJSON(w, apperrors.HTTPStatus(err), domain.Failure(err))
}

func outcomeLabel(kind apperrors.Kind) string {
	if kind == "" {
		return "unknown"
	}
	return string(kind)
}

func decodeJSON(r *http.Request, into any) error {
	const maxBodyBytes = 1 << 20
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON body: multiple JSON values are not allowed")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
