package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SchedulerMetrics track background job health.
type SchedulerMetrics struct {
	jobRuns     *prometheus.CounterVec
	jobErrors   *prometheus.CounterVec
	jobTimeouts *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	runLoopLag  prometheus.Histogram
	overdue     prometheus.Gauge
	notified    prometheus.Counter
}

func NewSchedulerMetrics(registerer prometheus.Registerer) *SchedulerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &SchedulerMetrics{
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bizledger_scheduler_job_runs_total",
			Help: "Scheduler job executions.",
		}, []string{"job"}),
		jobErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bizledger_scheduler_job_errors_total",
			Help: "Scheduler job failures by outcome.",
		}, []string{"job", "outcome"}),
		jobTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bizledger_scheduler_job_timeouts_total",
			Help: "Scheduler jobs that hit their deadline.",
		}, []string{"job"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bizledger_scheduler_job_duration_seconds",
			Help:    "Scheduler job latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
		runLoopLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bizledger_scheduler_run_loop_lag_seconds",
			Help:    "Delay between the planned and actual scheduler tick.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}),
		overdue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bizledger_invoices_overdue",
			Help: "Open invoices past their due date at the last scan.",
		}),
		notified: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bizledger_invoice_overdue_notifications_total",
			Help: "invoice.overdue events emitted by the scheduler.",
		}),
	}

	registerer.MustRegister(m.jobRuns, m.jobErrors, m.jobTimeouts, m.jobDuration, m.runLoopLag, m.overdue, m.notified)
	return m
}

func (m *SchedulerMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

// IncJobError counts a failed job. Deadline errors also count as timeouts.
func (m *SchedulerMetrics) IncJobError(job string, err error) {
	if m == nil || err == nil {
		return
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		m.jobTimeouts.WithLabelValues(job).Inc()
	}
	m.jobErrors.WithLabelValues(job, ClassifyOutcome(err)).Inc()
}

func (m *SchedulerMetrics) ObserveJobDuration(job string, d time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *SchedulerMetrics) ObserveRunLoopLag(d time.Duration) {
	if m == nil || d <= 0 {
		return
	}
	m.runLoopLag.Observe(d.Seconds())
}

func (m *SchedulerMetrics) SetOverdue(count int) {
	if m == nil {
		return
	}
	m.overdue.Set(float64(count))
}

func (m *SchedulerMetrics) IncOverdueNotified() {
	if m == nil {
		return
	}
	m.notified.Inc()
}
