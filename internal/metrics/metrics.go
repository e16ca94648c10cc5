// Package metrics publishes Prometheus metrics for survey simulation runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	transientsProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "simsurvey_transients_processed_total",
			Help: "Total number of transients evaluated against the plan.",
		},
	)

	lightcurvesRealized = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "simsurvey_lightcurves_realized_total",
			Help: "Total number of realized lightcurves appended to a collection.",
		},
	)

	epochsRealized = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "simsurvey_epochs_realized_total",
			Help: "Total number of observation epochs with realized flux.",
		},
	)

	runDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "simsurvey_run_duration_seconds",
			Help:    "Duration of full survey runs in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		},
	)

	assignmentRebuilds = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "simsurvey_assignment_cache_rebuilds_total",
			Help: "Number of times the field/custom-pointing assignment caches were rebuilt.",
		},
	)

	planPointings = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "simsurvey_plan_pointings",
			Help: "Number of pointings in the active observation plan.",
		},
	)
)

func init() {
	prometheus.MustRegister(transientsProcessed)
	prometheus.MustRegister(lightcurvesRealized)
	prometheus.MustRegister(epochsRealized)
	prometheus.MustRegister(runDurationSeconds)
	prometheus.MustRegister(assignmentRebuilds)
	prometheus.MustRegister(planPointings)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRun records the outcome of one survey run.
func RecordRun(duration time.Duration, processed, realized, epochs int) {
	runDurationSeconds.Observe(duration.Seconds())
	transientsProcessed.Add(float64(processed))
	lightcurvesRealized.Add(float64(realized))
	epochsRealized.Add(float64(epochs))
}

// IncAssignmentRebuilds counts an assignment cache rebuild.
func IncAssignmentRebuilds() {
	assignmentRebuilds.Inc()
}

// SetPlanPointings publishes the active plan size.
func SetPlanPointings(n int) {
	planPointings.Set(float64(n))
}
