// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QueryRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "query_requests_total",
			Help: "Total number of /query requests by intent and outcome",
		},
		[]string{"intent", "outcome"},
	)

	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "query_duration_seconds",
			Help:    "End-to-end /query latency in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		},
		[]string{"intent"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "query_stage_duration_seconds",
			Help: "Duration of each orchestrator state in seconds",
		},
		[]string{"stage"},
	)

	StageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "query_stage_failures_total",
			Help: "Orchestrator failures by stage and error code",
		},
		[]string{"stage", "error_code"},
	)

	ReasoningCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reasoning_calls_total",
			Help: "Reasoning completions by outcome (ok, retry, rate_limited, unavailable, cache_hit)",
		},
		[]string{"outcome"},
	)

	AgentErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_errors_total",
			Help: "Agent failures by domain and error code",
		},
		[]string{"domain", "error_code"},
	)

	AgentRows = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agent_rows_returned",
			Help:    "Rows returned per agent call",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
		[]string{"domain"},
	)

	SEODatasetRows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "seo_dataset_rows",
			Help: "Rows in the currently loaded crawl snapshot",
		},
	)

	InFlightQueries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "query_in_flight",
			Help: "Number of /query requests currently being processed",
		},
	)
)
