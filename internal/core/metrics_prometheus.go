package core

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsRecorder exports store and service observations as
// Prometheus collectors.
type PrometheusMetricsRecorder struct {
	operations *prometheus.CounterVec
	attempts   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewPrometheusMetricsRecorder registers the entitystore collectors on reg, or
// on prometheus.DefaultRegisterer when reg is nil.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &PrometheusMetricsRecorder{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "entitystore",
			Name:      "operations_total",
			Help:      "Completed operations by outcome.",
		}, []string{"operation", "outcome"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "entitystore",
			Name:      "operation_attempts_total",
			Help:      "Backend calls made, including retries.",
		}, []string{"operation"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "entitystore",
			Name:      "operation_duration_seconds",
			Help:      "Operation latency including backoff waits.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 2, 4, 8},
		}, []string{"operation"}),
	}
	for _, c := range []prometheus.Collector{r.operations, r.attempts, r.duration} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register entitystore metrics: %w", err)
		}
	}
	return r, nil
}

// Observe implements MetricsRecorder.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, outcome Outcome, attempts int, duration time.Duration) {
	r.operations.WithLabelValues(operation, string(outcome)).Inc()
	if attempts > 0 {
		r.attempts.WithLabelValues(operation).Add(float64(attempts))
	}
	r.duration.WithLabelValues(operation).Observe(duration.Seconds())
}
