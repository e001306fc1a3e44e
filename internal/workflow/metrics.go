package workflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for workflow execution.

var (
	// runsTotal counts finished runs by final status.
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "conductord",
			Subsystem: "workflow",
			Name:      "runs_total",
			Help:      "Total number of finished workflow runs by final status",
		},
		[]string{"status"},
	)

	// stepsTotal counts finished steps by result.
	stepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "conductord",
			Subsystem: "workflow",
			Name:      "steps_total",
			Help:      "Total number of finished steps by result (succeeded, aborted)",
		},
		[]string{"result"},
	)

	// repairAttemptsTotal counts repair attempts across all steps.
	repairAttemptsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "conductord",
			Subsystem: "workflow",
			Name:      "repair_attempts_total",
			Help:      "Total number of repair attempts issued to the instructor",
		},
	)

	// oracleRequestsTotal counts oracle calls by requesting component.
	oracleRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "conductord",
			Subsystem: "oracle",
			Name:      "requests_total",
			Help:      "Total number of reasoning-provider requests by component",
		},
		[]string{"component"},
	)

	// oracleParseFailuresTotal counts malformed oracle answers by component.
	oracleParseFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "conductord",
			Subsystem: "oracle",
			Name:      "parse_failures_total",
			Help:      "Total number of malformed reasoning-provider answers by component",
		},
		[]string{"component"},
	)

	// runDuration tracks end-to-end run latency.
	runDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "conductord",
			Subsystem: "workflow",
			Name:      "run_duration_seconds",
			Help:      "End-to-end duration of workflow runs in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	// stepDuration tracks per-step latency including repairs.
	stepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "conductord",
			Subsystem: "workflow",
			Name:      "step_duration_seconds",
			Help:      "Duration of individual steps in seconds, repairs included",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		},
	)
)
