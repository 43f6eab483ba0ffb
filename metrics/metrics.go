// Package metrics exposes the Prometheus collectors shared by the publishing
// workflow.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PublishAttempts counts per-platform publish dispatches by outcome.
	PublishAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autopost_publish_attempts_total",
		Help: "Per-platform publish dispatches by result",
	}, []string{"platform", "result"})

	// PublishDuration records how long each per-platform dispatch took.
	PublishDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "autopost_publish_duration_seconds",
		Help:    "Per-platform publish latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"platform"})

	// Generations counts text and image generation calls.
	Generations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autopost_generations_total",
		Help: "Content generation calls by kind, mode and result",
	}, []string{"kind", "mode", "result"})

	// PersistFailures counts snapshot writes that failed and were swallowed.
	PersistFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autopost_persist_failures_total",
		Help: "Snapshot persistence failures by storage key",
	}, []string{"key"})

	// DueRuns counts scheduled entries processed by the due-post runner.
	DueRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autopost_due_runs_total",
		Help: "Scheduled entries published by the due runner, by result",
	}, []string{"result"})
)

// Result maps a boolean outcome onto the label value used above.
func Result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
