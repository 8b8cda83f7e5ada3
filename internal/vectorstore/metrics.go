// Package vectorstore provides Prometheus metrics for store operations.
package vectorstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SearchDuration tracks similarity search latency per backend.
	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "retrievald",
			Subsystem: "vectorstore",
			Name:      "search_duration_seconds",
			Help:      "Duration of similarity search operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend", "collection"},
	)

	// SearchesTotal counts searches by backend and result.
	// Labels: backend, result (success, error)
	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retrievald",
			Subsystem: "vectorstore",
			Name:      "searches_total",
			Help:      "Total number of similarity search operations",
		},
		[]string{"backend", "result"},
	)

	// CountsTotal counts count operations by backend and result.
	CountsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retrievald",
			Subsystem: "vectorstore",
			Name:      "counts_total",
			Help:      "Total number of record count operations",
		},
		[]string{"backend", "result"},
	)

	// ResultsReturned tracks result set sizes after filtering.
	ResultsReturned = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "retrievald",
			Subsystem: "vectorstore",
			Name:      "results_returned",
			Help:      "Number of results returned per search after score filtering",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
		},
		[]string{"backend"},
	)
)
