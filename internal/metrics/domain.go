// Package metrics exposes prometheus collectors for the question-answering
// pipeline and its HTTP surface. Collectors register with the default
// registry on import.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datchat_turns_total",
			Help: "Total number of answered or failed turns by mode and outcome.",
		},
		[]string{"mode", "outcome"},
	)
	generationAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "datchat_generation_attempts",
			Help:    "SQL generation attempts per turn, first attempt included.",
			Buckets: []float64{1, 2, 3, 4, 6, 8},
		},
	)
	regenerationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "datchat_regenerations_total",
			Help: "Total number of regeneration attempts after a query failed to execute.",
		},
	)
	unsafeQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datchat_unsafe_queries_total",
			Help: "Total number of generated queries rejected for containing write operations.",
		},
		[]string{"mode"},
	)
	queryExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datchat_query_executions_total",
			Help: "Total number of candidate query executions by outcome.",
		},
		[]string{"outcome"},
	)
	endpointLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "datchat_endpoint_latency_seconds",
			Help:    "Model endpoint completion latency, stream included.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"endpoint", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		turnsTotal,
		generationAttempts,
		regenerationsTotal,
		unsafeQueriesTotal,
		queryExecutionsTotal,
		endpointLatencySeconds,
	)
}

// ObserveTurn records one finished turn.
func ObserveTurn(mode, outcome string, attempts int) {
	turnsTotal.WithLabelValues(mode, outcome).Inc()
	if attempts > 0 {
		generationAttempts.Observe(float64(attempts))
	}
}

// IncrementRegeneration records one regeneration attempt.
func IncrementRegeneration() {
	regenerationsTotal.Inc()
}

// IncrementUnsafeQuery records one guard rejection.
func IncrementUnsafeQuery(mode string) {
	unsafeQueriesTotal.WithLabelValues(mode).Inc()
}

// ObserveExecution records one executability test.
func ObserveExecution(ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	queryExecutionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveEndpoint records the latency of one completion.
func ObserveEndpoint(endpoint string, elapsed time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	endpointLatencySeconds.WithLabelValues(endpoint, outcome).Observe(elapsed.Seconds())
}
