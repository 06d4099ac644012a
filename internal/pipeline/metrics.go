// SPDX-License-Identifier: MIT

package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments pipeline execution.
type Metrics struct {
	stepsTotal   *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
}

// NewMetrics registers the pipeline metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		stepsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "specdr_pipeline_steps_total",
			Help: "Pipeline steps executed, by step name and outcome.",
		}, []string{"step", "status"}),
		stepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "specdr_pipeline_step_duration_seconds",
			Help:    "Wall-clock duration of pipeline steps.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"step"}),
	}
}

func (m *Metrics) observeStep(step, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.stepsTotal.WithLabelValues(step, status).Inc()
	m.stepDuration.WithLabelValues(step).Observe(d.Seconds())
}
