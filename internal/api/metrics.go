package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/iopbridge/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry        *prometheus.Registry
	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	ingestTotal     *prometheus.CounterVec
	resizedTotal    prometheus.Counter
	bytesSavedTotal prometheus.Counter
	pixelsTotal     prometheus.Counter
	queueEnqueued   *prometheus.CounterVec
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "iopbridge_api_requests_total",
			Help: "Total HTTP requests handled by the API.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "iopbridge_api_request_duration_seconds",
			Help:    "API request latency in seconds.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"method", "route", "status"}),
		ingestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "iopbridge_ingest_total",
			Help: "Synchronous image ingests by outcome (success or failure kind).",
		}, []string{"outcome"}),
		resizedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "iopbridge_ingest_resized_total",
			Help: "Ingested images that exceeded the dimension limit.",
		}),
		bytesSavedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "iopbridge_ingest_bytes_saved_total",
			Help: "Raw minus processed bytes across successful ingests, never negative.",
		}),
		pixelsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "iopbridge_ingest_pixels_total",
			Help: "Pixels written across successful ingests.",
		}),
		queueEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "iopbridge_queue_jobs_enqueued_total",
			Help: "Total ingest jobs enqueued.",
		}, []string{"queue"}),
	}
	registry.MustRegister(
		m.requestTotal,
		m.requestDuration,
		m.ingestTotal,
		m.resizedTotal,
		m.bytesSavedTotal,
		m.pixelsTotal,
		m.queueEnqueued,
	)
	return m
}

func (m *metrics) recordReport(report domain.PipelineReport) {
	if report.WasResized {
		m.resizedTotal.Inc()
	}
	m.bytesSavedTotal.Add(float64(max(0, report.OriginalSizeBytes-report.ProcessedSizeBytes)))
	m.pixelsTotal.Add(float64(report.FinalDimensions.Width) * float64(report.FinalDimensions.Height))
}

func (m *metrics) metricsHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metrics) withHTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := routeLabel(r.URL.Path)
		status := strconv.Itoa(recorder.status)

		m.requestTotal.WithLabelValues(r.Method, route, status).Inc()
		m.requestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
	})
}

var knownRoutes = map[string]bool{
	"/":               true,
	"/healthz":        true,
	"/metrics":        true,
	"/processImage":   true,
	"/getProductInfo": true,
	"/getProducts":    true,
	"/getAllProducts": true,
	"/v1/jobs":        true,
}

// routeLabel keeps label cardinality bounded: job IDs collapse into one
// route and unknown paths share a single label.
func routeLabel(path string) string {
	switch {
	case knownRoutes[path]:
		return path
	case strings.HasPrefix(path, "/v1/jobs/"):
		return "/v1/jobs/{id}"
	default:
		return "unmatched"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}
