package ingest

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ingestJobsTotal     *prometheus.CounterVec
	ingestDedupTotal    *prometheus.CounterVec
	ingestAnalysisTotal *prometheus.CounterVec
	ingestFetchedBytes  prometheus.Counter

	metricsOnce sync.Once
)

// InitMetrics registers the Prometheus collectors for the pipeline.
// It is safe to call multiple times.
func InitMetrics() {
	metricsOnce.Do(func() {
		ingestJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_jobs_total",
				Help: "Total ingest jobs handled, labeled by terminal outcome.",
			},
			[]string{"status"},
		)

		ingestDedupTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_dedup_total",
				Help: "Duplicate-document lookups, labeled hit, reuse or miss.",
			},
			[]string{"result"},
		)

		ingestAnalysisTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_analysis_calls_total",
				Help: "Analysis service invocations, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		ingestFetchedBytes = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ingest_fetched_bytes_total",
				Help: "Total source document bytes fetched.",
			},
		)
	})
}

func recordJob(status string) {
	if ingestJobsTotal != nil {
		ingestJobsTotal.WithLabelValues(status).Inc()
	}
}

func recordDedup(result string) {
	if ingestDedupTotal != nil {
		ingestDedupTotal.WithLabelValues(result).Inc()
	}
}

func recordAnalysis(outcome string) {
	if ingestAnalysisTotal != nil {
		ingestAnalysisTotal.WithLabelValues(outcome).Inc()
	}
}

func recordFetchedBytes(n int) {
	if ingestFetchedBytes != nil {
		ingestFetchedBytes.Add(float64(n))
	}
}
