package stats

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHitsTotal counts volume cache hits.
	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "retrievald",
			Subsystem: "stats",
			Name:      "cache_hits_total",
			Help:      "Total number of volume cache hits",
		},
	)

	// CacheMissesTotal counts volume cache misses.
	CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "retrievald",
			Subsystem: "stats",
			Name:      "cache_misses_total",
			Help:      "Total number of volume cache misses",
		},
	)

	// ProbesTotal counts probe operations by result.
	// Labels: result (success, error)
	ProbesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retrievald",
			Subsystem: "stats",
			Name:      "probes_total",
			Help:      "Total number of corpus volume probes",
		},
		[]string{"result"},
	)
)
