package worker

import (
	"net/http"

	"github.com/dunamismax/iopbridge/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry             *prometheus.Registry
	jobsTotal            *prometheus.CounterVec
	jobDuration          *prometheus.HistogramVec
	activeJobs           prometheus.Gauge
	resizedTotal         prometheus.Counter
	pixelsProcessedTotal prometheus.Counter
	bytesSavedTotal      prometheus.Counter
	webhookFailures      prometheus.Counter
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "iopbridge_worker_jobs_total",
			Help: "Ingest jobs by final status and failure kind.",
		}, []string{"status", "fault"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "iopbridge_worker_job_duration_seconds",
			Help:    "Wall time of each ingest job.",
			Buckets: prometheus.DefBuckets,
		}, []string{"status"}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "iopbridge_worker_active_jobs",
			Help: "Ingest jobs currently running.",
		}),
		resizedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "iopbridge_worker_images_resized_total",
			Help: "Ingested images that exceeded the dimension limit.",
		}),
		pixelsProcessedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "iopbridge_worker_pixels_processed_total",
			Help: "Pixels written across successful ingests.",
		}),
		bytesSavedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "iopbridge_worker_bytes_saved_total",
			Help: "Raw minus processed bytes across successful ingests, never negative.",
		}),
		webhookFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "iopbridge_worker_webhook_failures_total",
			Help: "Job webhooks that could not be delivered.",
		}),
	}

	registry.MustRegister(
		m.jobsTotal,
		m.jobDuration,
		m.activeJobs,
		m.resizedTotal,
		m.pixelsProcessedTotal,
		m.bytesSavedTotal,
		m.webhookFailures,
	)
	return m
}

func (m *metrics) recordReport(report domain.PipelineReport) {
	if report.WasResized {
		m.resizedTotal.Inc()
	}
	m.pixelsProcessedTotal.Add(float64(report.FinalDimensions.Width) * float64(report.FinalDimensions.Height))
	m.bytesSavedTotal.Add(float64(max(0, report.OriginalSizeBytes-report.ProcessedSizeBytes)))
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
