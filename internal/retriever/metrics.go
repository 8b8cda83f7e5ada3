package retriever

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SearchTasksTotal counts fan-out tasks by outcome.
	// Labels: outcome (succeeded, failed)
	SearchTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retrievald",
			Subsystem: "retriever",
			Name:      "search_tasks_total",
			Help:      "Total number of fan-out search tasks by outcome",
		},
		[]string{"outcome"},
	)

	// NodeRequestsTotal counts federated node requests by node and outcome.
	// Labels: node, outcome (succeeded, failed, skipped)
	NodeRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retrievald",
			Subsystem: "retriever",
			Name:      "node_requests_total",
			Help:      "Total number of federated node requests by outcome",
		},
		[]string{"node", "outcome"},
	)

	// NodeCircuitState reports each node's circuit state
	// (0=closed, 1=half-open, 2=open).
	NodeCircuitState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "retrievald",
			Subsystem: "retriever",
			Name:      "node_circuit_state",
			Help:      "Circuit breaker state per node (0=closed, 1=half-open, 2=open)",
		},
		[]string{"node"},
	)
)
