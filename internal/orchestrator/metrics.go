package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts handled requests by path and result.
	// Labels: path (retrieved, counted, skipped), result (success, error)
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retrievald",
			Subsystem: "orchestrator",
			Name:      "requests_total",
			Help:      "Total number of handled requests by path and result",
		},
		[]string{"path", "result"},
	)

	// DegradedStepsTotal counts pipeline steps that degraded forward.
	// Labels: step (analyzing, retrieving, counting)
	DegradedStepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retrievald",
			Subsystem: "orchestrator",
			Name:      "degraded_steps_total",
			Help:      "Total number of pipeline steps that degraded to an empty contribution",
		},
		[]string{"step"},
	)

	// RequestDuration tracks end-to-end request latency.
	RequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "retrievald",
			Subsystem: "orchestrator",
			Name:      "request_duration_seconds",
			Help:      "End-to-end request handling duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// ContextTokens tracks assembled context sizes.
	ContextTokens = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "retrievald",
			Subsystem: "orchestrator",
			Name:      "context_tokens",
			Help:      "Estimated token size of assembled context",
			Buckets:   []float64{0, 100, 250, 500, 1000, 2000, 4000, 8000},
		},
	)
)
