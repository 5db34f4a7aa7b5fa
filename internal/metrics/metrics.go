// Package metrics exposes Prometheus instrumentation for the pipeline
// engine: counters for attempts and outcomes, a histogram of attempt
// duration, and counts of finished background tasks by outcome. The CLI can
// serve these from an http.Server alongside the benchmark loop.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric the engine reports, registered against a
// dedicated prometheus.Registry rather than the global default so multiple
// Registries can coexist in tests.
type Registry struct {
	reg *prometheus.Registry

	AttemptsTotal       *prometheus.CounterVec
	PipelinesTotal      *prometheus.CounterVec
	BackgroundTasks     *prometheus.CounterVec
	AttemptDurationSecs prometheus.Histogram
}

// New creates a Registry with every metric registered and ready to observe.
func New() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,
		AttemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pipelinerunner_attempts_total",
			Help: "Total number of AI-flow attempts run, by outcome.",
		}, []string{"outcome"}),
		PipelinesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pipelinerunner_pipelines_total",
			Help: "Total number of pipeline runs, by match source.",
		}, []string{"match_source"}),
		BackgroundTasks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pipelinerunner_background_tasks_total",
			Help: "Total number of background tasks, by outcome.",
		}, []string{"outcome"}),
		AttemptDurationSecs: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "pipelinerunner_attempt_duration_seconds",
			Help:    "Duration of individual AI-flow attempts.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Handler returns an http.Handler serving this Registry's metrics in the
// Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// RecordAttempt records one AI-flow attempt's outcome and duration.
func (r *Registry) RecordAttempt(success bool, durationSecs float64) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	r.AttemptsTotal.WithLabelValues(outcome).Inc()
	r.AttemptDurationSecs.Observe(durationSecs)
}

// RecordPipeline records one finished pipeline run by its match source
// ("programmatic-flow", "claude", a background plugin id, or "" for a
// failed run, reported as "none").
func (r *Registry) RecordPipeline(matchSource string) {
	if matchSource == "" {
		matchSource = "none"
	}
	r.PipelinesTotal.WithLabelValues(matchSource).Inc()
}

// RecordBackgroundTask records one background task's terminal outcome.
func (r *Registry) RecordBackgroundTask(success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	r.BackgroundTasks.WithLabelValues(outcome).Inc()
}
