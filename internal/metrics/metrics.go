// Package metrics holds the Prometheus collectors exported by the notifier.
// Every recorder is nil-safe so components can run without a registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "notifier"

// --------------------------------------------------------------------------
// Job runs
// --------------------------------------------------------------------------

// JobMetrics records duration and outcome of driver runs.
type JobMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
}

// NewJobMetrics registers the job collectors on reg. A nil reg yields a
// recorder that drops everything.
func NewJobMetrics(reg prometheus.Registerer) *JobMetrics {
	if reg == nil {
		return &JobMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "job_duration_seconds",
		Help:      "Duration of notification job runs in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"job"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_success_total",
		Help:      "Successful notification job runs.",
	}, []string{"job"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_failure_total",
		Help:      "Failed notification job runs.",
	}, []string{"job"})
	reg.MustRegister(duration, success, failure)
	return &JobMetrics{duration: duration, success: success, failure: failure}
}

// ObserveDuration records the duration for the named job.
func (m *JobMetrics) ObserveDuration(job string, d time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(job)).Observe(d.Seconds())
}

// IncSuccess increments the success counter for the named job.
func (m *JobMetrics) IncSuccess(job string) {
	if m == nil || m.success == nil {
		return
	}
	m.success.WithLabelValues(normalizeLabel(job)).Inc()
}

// IncFailure increments the failure counter for the named job.
func (m *JobMetrics) IncFailure(job string) {
	if m == nil || m.failure == nil {
		return
	}
	m.failure.WithLabelValues(normalizeLabel(job)).Inc()
}

// --------------------------------------------------------------------------
// Push outcomes
// --------------------------------------------------------------------------

// Deactivation sources.
const (
	SourceTicket  = "ticket"
	SourceReceipt = "receipt"
)

// PushMetrics counts gateway tickets and token deactivations.
type PushMetrics struct {
	tickets     *prometheus.CounterVec
	deactivated *prometheus.CounterVec
}

// NewPushMetrics registers the push collectors on reg.
func NewPushMetrics(reg prometheus.Registerer) *PushMetrics {
	if reg == nil {
		return &PushMetrics{}
	}
	tickets := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "push_tickets_total",
		Help:      "Push tickets returned by the gateway, by status.",
	}, []string{"status"})
	deactivated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "push_tokens_deactivated_total",
		Help:      "Push tokens deactivated after a DeviceNotRegistered error.",
	}, []string{"source"})
	reg.MustRegister(tickets, deactivated)
	return &PushMetrics{tickets: tickets, deactivated: deactivated}
}

// AddTickets adds n tickets with status.
func (m *PushMetrics) AddTickets(status string, n int) {
	if m == nil || m.tickets == nil || n <= 0 {
		return
	}
	m.tickets.WithLabelValues(normalizeLabel(status)).Add(float64(n))
}

// AddDeactivated adds n deactivated tokens attributed to source.
func (m *PushMetrics) AddDeactivated(source string, n int) {
	if m == nil || m.deactivated == nil || n <= 0 {
		return
	}
	m.deactivated.WithLabelValues(normalizeLabel(source)).Add(float64(n))
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
