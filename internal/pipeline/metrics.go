package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dgallion1/docmap/internal/anomaly"
)

var (
	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docmap_jobs_total",
		Help: "Analysis jobs finished, by final status",
	}, []string{"status"})

	phaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "docmap_phase_duration_seconds",
		Help:    "Time spent in each pipeline phase",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
	}, []string{"phase"})

	topicsExtracted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docmap_topics_extracted_total",
		Help: "Topic records extracted from documents",
	})

	anomaliesFound = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docmap_anomalies_total",
		Help: "Anomalies detected, by type and severity",
	}, []string{"type", "severity"})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "docmap_queue_depth",
		Help: "Jobs waiting for a worker",
	})

	publishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docmap_publish_errors_total",
		Help: "Failed writes while publishing maps to pathstore",
	})
)

func recordAnomalies(list []anomaly.Anomaly) {
	for _, a := range list {
		anomaliesFound.WithLabelValues(string(a.Kind), a.Severity.String()).Inc()
	}
}
