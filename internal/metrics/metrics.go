// Package metrics records pipeline stage outcomes for Prometheus scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder tracks stage executions, outcomes, and durations.
type Recorder struct {
	registry *prometheus.Registry

	stageTotal    *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	stageInFlight *prometheus.GaugeVec
}

// NewRecorder creates a recorder with its own registry.
func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()

	stageTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inkwell",
			Subsystem: "pipeline",
			Name:      "stage_total",
			Help:      "Completed stage executions by stage and status.",
		},
		[]string{"stage", "status"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "inkwell",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Stage execution duration in seconds by stage and status.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"stage", "status"},
	)
	stageInFlight := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "inkwell",
			Subsystem: "pipeline",
			Name:      "stage_in_flight",
			Help:      "Stage executions currently running.",
		},
		[]string{"stage"},
	)

	registry.MustRegister(stageTotal, stageDuration, stageInFlight)

	return &Recorder{
		registry:      registry,
		stageTotal:    stageTotal,
		stageDuration: stageDuration,
		stageInFlight: stageInFlight,
	}
}

// Handler returns an http.Handler serving the recorder's registry.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// StageStarted marks a stage execution as in flight.
func (r *Recorder) StageStarted(stage string) {
	r.stageInFlight.WithLabelValues(stage).Inc()
}

// StageFinished records the outcome and duration of a stage execution.
func (r *Recorder) StageFinished(stage string, duration time.Duration, err error) {
	r.stageInFlight.WithLabelValues(stage).Dec()

	status := "success"
	if err != nil {
		status = "error"
	}
	r.stageTotal.WithLabelValues(stage, status).Inc()
	r.stageDuration.WithLabelValues(stage, status).Observe(duration.Seconds())
}
