// Package metrics provides Prometheus instrumentation for the elicitation lifecycle.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	elicitationsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stepup_elicitations_created_total",
			Help: "Total number of elicitations created",
		},
		[]string{"type"},
	)

	elicitationTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stepup_elicitation_transitions_total",
			Help: "Total number of elicitation status transitions by target status",
		},
		[]string{"status"},
	)
)

var (
	resumeCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stepup_resume_calls_total",
			Help: "Total number of resume operations invoked",
		},
		[]string{"endpoint", "status"}, // status: success, failure
	)

	resumeDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stepup_resume_duration_seconds",
			Help:    "Resume operation duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"endpoint"},
	)
)

var (
	sweeperExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stepup_sweeper_expired_total",
			Help: "Total number of elicitations expired by the background sweeper",
		},
	)

	sweeperErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stepup_sweeper_errors_total",
			Help: "Total number of errors encountered while sweeping",
		},
	)

	sweeperCyclesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stepup_sweeper_cycles_total",
			Help: "Total number of sweep cycles run",
		},
	)
)

// RecordCreated counts a new elicitation of the given type.
func RecordCreated(elicitationType string) {
	elicitationsCreatedTotal.WithLabelValues(elicitationType).Inc()
}

// RecordTransition counts a successful status change.
func RecordTransition(status string) {
	elicitationTransitionsTotal.WithLabelValues(status).Inc()
}

// RecordResume records one resume call and its latency.
func RecordResume(endpoint string, success bool, d time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}
	resumeCallsTotal.WithLabelValues(endpoint, status).Inc()
	resumeDurationSeconds.WithLabelValues(endpoint).Observe(d.Seconds())
}

// RecordSweep records the outcome of one sweep cycle.
func RecordSweep(expired, errors int) {
	sweeperCyclesTotal.Inc()
	sweeperExpiredTotal.Add(float64(expired))
	sweeperErrorsTotal.Add(float64(errors))
}
