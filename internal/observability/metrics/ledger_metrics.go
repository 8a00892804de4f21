package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics are Prometheus series describing ledger operation health.
type LedgerMetrics struct {
	operations      *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	txFailures      *prometheus.CounterVec
	numberRetries   *prometheus.CounterVec
	guardRejections *prometheus.CounterVec
}

// NewLedgerMetrics registers the ledger series on registerer.
func NewLedgerMetrics(registerer prometheus.Registerer) *LedgerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &LedgerMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bizledger_ledger_operations_total",
			Help: "Ledger operations by name and outcome.",
		}, []string{"operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bizledger_ledger_operation_duration_seconds",
			Help:    "Ledger operation latency including the transaction.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		txFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bizledger_ledger_transaction_failures_total",
			Help: "Rolled back ledger transactions by reason.",
		}, []string{"operation", "reason"}),
		numberRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bizledger_number_allocation_retries_total",
			Help: "Document number allocations retried after a duplicate.",
		}, []string{"prefix"}),
		guardRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bizledger_invoice_guard_rejections_total",
			Help: "Mutations rejected by the invoice status machine.",
		}, []string{"operation"}),
	}

	registerer.MustRegister(m.operations, m.duration, m.txFailures, m.numberRetries, m.guardRejections)
	return m
}

// ObserveOperation records the outcome and latency of one ledger operation.
func (m *LedgerMetrics) ObserveOperation(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := ClassifyOutcome(err)
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.duration.WithLabelValues(operation).Observe(time.Since(start).Seconds())

	switch outcome {
	case OutcomeTransactionFailure:
		m.txFailures.WithLabelValues(operation, ClassifyTxReason(err)).Inc()
	case OutcomeInvalidState:
		m.guardRejections.WithLabelValues(operation).Inc()
	}
}

// IncNumberRetry counts a retried number allocation.
func (m *LedgerMetrics) IncNumberRetry(prefix string) {
	if m == nil {
		return
	}
	m.numberRetries.WithLabelValues(prefix).Inc()
}
