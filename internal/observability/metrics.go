// Package observability holds the Prometheus metrics and OpenTelemetry
// tracing setup for the packing service.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cratefit"

// Metrics tracks task throughput and search effort. A nil *Metrics is a no-op.
type Metrics struct {
	TasksSubmitted  prometheus.Counter
	TasksFinished   *prometheus.CounterVec // by terminal status
	TasksActive     prometheus.Gauge
	Generations     prometheus.Counter
	RunDuration     prometheus.Histogram
	BestUtilization prometheus.Histogram
	SubmitsLimited  prometheus.Counter
}

// NewMetrics registers the service metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TasksSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_submitted_total",
			Help:      "Packing tasks accepted for execution.",
		}),
		TasksFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_finished_total",
			Help:      "Packing tasks that reached a terminal status.",
		}, []string{"status"}),
		TasksActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks_active",
			Help:      "Packing tasks pending or running.",
		}),
		Generations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_evaluated_total",
			Help:      "Genetic search generations evaluated across all tasks.",
		}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Wall time from task start to a terminal status.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		BestUtilization: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "best_utilization_percent",
			Help:      "Final space utilization of completed tasks.",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),
		SubmitsLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submits_rate_limited_total",
			Help:      "Submissions rejected by the rate limiter.",
		}),
	}
}

func (m *Metrics) TaskSubmitted() {
	if m == nil {
		return
	}
	m.TasksSubmitted.Inc()
	m.TasksActive.Inc()
}

// TaskFinished records a terminal status and the run's duration.
func (m *Metrics) TaskFinished(status string, seconds float64) {
	if m == nil {
		return
	}
	m.TasksFinished.WithLabelValues(status).Inc()
	m.TasksActive.Dec()
	m.RunDuration.Observe(seconds)
}

func (m *Metrics) GenerationEvaluated() {
	if m == nil {
		return
	}
	m.Generations.Inc()
}

func (m *Metrics) ObserveUtilization(pct float64) {
	if m == nil {
		return
	}
	m.BestUtilization.Observe(pct)
}

func (m *Metrics) SubmitLimited() {
	if m == nil {
		return
	}
	m.SubmitsLimited.Inc()
}
