package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dunamismax/iopbridge/internal/apperrors"
	"github.com/dunamismax/iopbridge/internal/domain"
	"github.com/dunamismax/iopbridge/internal/queue"
	"github.com/dunamismax/iopbridge/internal/store"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

type fakeIngester struct {
	report domain.PipelineReport
	err    error
	got    domain.ImageRequest
}

func (f *fakeIngester) Process(_ context.Context, req domain.ImageRequest) (domain.PipelineReport, error) {
	f.got = req
	return f.report, f.err
}

type sentWebhook struct {
	endpoint string
	event    string
	payload  map[string]any
}

type recordingWebhook struct {
	mu   sync.Mutex
	sent []sentWebhook
	err  error
}

func (r *recordingWebhook) Send(_ context.Context, endpoint, event string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentWebhook{endpoint: endpoint, event: event, payload: payload.(map[string]any)})
	return r.err
}

func newTestServer(t *testing.T, ingester Ingester, hooks *recordingWebhook, defaultWebhook string) (*Server, *store.MemoryJobStore) {
	t.Helper()
	jobs := store.NewMemoryJobStore()
	require.NoError(t, jobs.Create(context.Background(), domain.Job{
		ID:        "job-1",
		Status:    domain.JobStatusQueued,
		ImageURL:  "https://cdn.example.com/a.jpg",
		VariantID: "sku-1",
		Quality:   80,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}))

	return &Server{
		logger:         zerolog.Nop(),
		ingester:       ingester,
		webhookClient:  hooks,
		defaultWebhook: defaultWebhook,
		jobStore:       jobs,
		metrics:        newMetrics(),
		tracer:         noop.NewTracerProvider().Tracer("test"),
	}, jobs
}

func testPayload(webhookURL string) queue.IngestImagePayload {
	return queue.IngestImagePayload{
		JobID:       "job-1",
		ImageURL:    "https://cdn.example.com/a.jpg",
		VariantID:   "sku-1",
		Quality:     80,
		WebhookURL:  webhookURL,
		RequestedAt: time.Now().UTC(),
	}
}

func TestIngestSuccessStoresReportAndNotifies(t *testing.T) {
	ingester := &fakeIngester{report: domain.PipelineReport{
		ProcessedURL:       "https://bucket/p.webp",
		OriginalSizeBytes:  1000,
		ProcessedSizeBytes: 300,
		FinalDimensions:    domain.Dimensions{Width: 10, Height: 20},
		WasResized:         true,
	}}
	hooks := &recordingWebhook{}
	s, jobs := newTestServer(t, ingester, hooks, "https://hooks.example.com/default")

	require.NoError(t, s.ingest(context.Background(), testPayload("https://hooks.example.com/job")))

	assert.Equal(t, domain.ImageRequest{SourceURL: "https://cdn.example.com/a.jpg", VariantID: "sku-1", Quality: 80}, ingester.got)

	job, ok, err := jobs.Get(context.Background(), "job-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.JobStatusSucceeded, job.Status)
	require.NotNil(t, job.Report)
	assert.Equal(t, "https://bucket/p.webp", job.Report.ProcessedURL)

	require.Len(t, hooks.sent, 1)
	assert.Equal(t, "https://hooks.example.com/job", hooks.sent[0].endpoint)
	assert.Equal(t, "job.completed", hooks.sent[0].event)

	assert.InDelta(t, 700, testutil.ToFloat64(s.metrics.bytesSavedTotal), 0)
	assert.InDelta(t, 200, testutil.ToFloat64(s.metrics.pixelsProcessedTotal), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(s.metrics.resizedTotal), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(s.metrics.jobsTotal.WithLabelValues(domain.JobStatusSucceeded, "")), 0)
}

func TestIngestFailureRecordsFault(t *testing.T) {
	ingester := &fakeIngester{err: apperrors.Fetch("fetch.get", errors.New("returned status=404"))}
	hooks := &recordingWebhook{}
	s, jobs := newTestServer(t, ingester, hooks, "https://hooks.example.com/default")

	err := s.ingest(context.Background(), testPayload(""))
	require.Error(t, err)

	job, _, _ := jobs.Get(context.Background(), "job-1")
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Equal(t, "fetch", job.Fault)
	assert.Contains(t, job.Error, "404")
	assert.Nil(t, job.Report)

	require.Len(t, hooks.sent, 1)
	assert.Equal(t, "https://hooks.example.com/default", hooks.sent[0].endpoint)
	assert.Equal(t, "job.failed", hooks.sent[0].event)
	assert.Equal(t, "fetch", hooks.sent[0].payload["fault"])
	assert.InDelta(t, 1, testutil.ToFloat64(s.metrics.jobsTotal.WithLabelValues(domain.JobStatusFailed, "fetch")), 0)
}

func TestIngestWebhookFailureDoesNotFailJob(t *testing.T) {
	hooks := &recordingWebhook{err: errors.New("connection refused")}
	s, jobs := newTestServer(t, &fakeIngester{}, hooks, "")

	require.NoError(t, s.ingest(context.Background(), testPayload("https://hooks.example.com/job")))

	job, _, _ := jobs.Get(context.Background(), "job-1")
	assert.Equal(t, domain.JobStatusSucceeded, job.Status)
	assert.InDelta(t, 1, testutil.ToFloat64(s.metrics.webhookFailures), 0)
}

func TestIngestWithoutAnyWebhookSendsNothing(t *testing.T) {
	hooks := &recordingWebhook{}
	s, _ := newTestServer(t, &fakeIngester{}, hooks, "")

	require.NoError(t, s.ingest(context.Background(), testPayload("")))
	assert.Empty(t, hooks.sent)
}

func TestHandleIngestImageNeverRetries(t *testing.T) {
	s, _ := newTestServer(t, &fakeIngester{err: apperrors.Decode("decode", errors.New("bad header"))}, &recordingWebhook{}, "")

	task, err := queue.NewIngestImageTask(testPayload(""))
	require.NoError(t, err)
	err = s.handleIngestImage(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = s.handleIngestImage(context.Background(), asynq.NewTask(queue.TypeIngestImage, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}
