// Package metrics records orchestrator run metrics, exports them as a Prometheus
// textfile and reads them back from a Prometheus server.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const runsMetric = "spectra_runs_total"

// RunRecorder tracks run lifecycle events. It satisfies the orchestrator observer
// contract so it can be attached next to run history.
type RunRecorder struct {
	runsTotal    *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	reconTotal   *prometheus.CounterVec
	plansTotal   prometheus.Counter
	pollTicks    prometheus.Counter
	runsInFlight prometheus.Gauge
}

// NewRunRecorder registers run metrics with reg.
func NewRunRecorder(reg prometheus.Registerer) *RunRecorder {
	factory := promauto.With(reg)
	return &RunRecorder{
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: runsMetric,
				Help: "Total number of orchestrator runs by terminal status and reason",
			},
			[]string{"status", "reason"},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "spectra_run_duration_seconds",
				Help:    "Wall time of orchestrator runs",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"status"},
		),
		reconTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spectra_recon_total",
				Help: "Completed reconnaissance scans by scanner status",
			},
			[]string{"status"},
		),
		plansTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "spectra_plans_total",
			Help: "Plans accepted for dispatch",
		}),
		pollTicks: factory.NewCounter(prometheus.CounterOpts{
			Name: "spectra_poll_ticks_total",
			Help: "Session poll iterations",
		}),
		runsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "spectra_runs_in_flight",
			Help: "Runs currently executing",
		}),
	}
}

// RunStarted increments the in-flight gauge.
func (r *RunRecorder) RunStarted(context.Context, string, string, string, bool) {
	r.runsInFlight.Inc()
}

// ReconCompleted counts the scan by status.
func (r *RunRecorder) ReconCompleted(_ context.Context, _, _, status, _ string, _ any) {
	r.reconTotal.WithLabelValues(status).Inc()
}

// PlanReady counts an accepted plan.
func (r *RunRecorder) PlanReady(context.Context, string, map[string]any) {
	r.plansTotal.Inc()
}

// PollTick counts one poll iteration.
func (r *RunRecorder) PollTick(context.Context, string, int) {
	r.pollTicks.Inc()
}

// RunFinished records the terminal status, reason and duration.
func (r *RunRecorder) RunFinished(_ context.Context, _, status, reason string, _ map[string]any, elapsed time.Duration) {
	r.runsInFlight.Dec()
	r.runsTotal.WithLabelValues(status, reason).Inc()
	r.runDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}
