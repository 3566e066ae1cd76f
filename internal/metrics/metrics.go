package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsCreated counts accepted form analysis requests.
	RequestsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "easyform_requests_created_total",
		Help: "Number of form analysis requests accepted",
	})

	// RequestsFinished counts requests by terminal status.
	RequestsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "easyform_requests_finished_total",
		Help: "Number of form analysis requests reaching a terminal status",
	}, []string{"status"})

	// AgentRetries counts LLM call retries by agent.
	AgentRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "easyform_agent_retries_total",
		Help: "Number of LLM call retries",
	}, []string{"agent"})

	// ChunksIndexed counts indexed document chunks by type.
	ChunksIndexed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "easyform_chunks_indexed_total",
		Help: "Number of document chunks indexed",
	}, []string{"type"})

	// FilesProcessed counts ingested files by outcome.
	FilesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "easyform_files_processed_total",
		Help: "Number of uploaded files processed",
	}, []string{"outcome"})

	// PipelineDuration observes end-to-end pipeline latency.
	PipelineDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "easyform_pipeline_duration_seconds",
		Help:    "End-to-end form analysis pipeline duration",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})
)

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
