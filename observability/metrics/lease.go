package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// LeaseMetrics groups the gauges and counters the lease daemon exports.
type LeaseMetrics struct {
	leasesOpened     *prometheus.CounterVec
	openingsFailed   prometheus.Counter
	repayments       prometheus.Counter
	liquidations     *prometheus.CounterVec
	warnings         *prometheus.CounterVec
	completionErrors prometheus.Counter
}

var (
	leaseOnce     sync.Once
	leaseRegistry *LeaseMetrics
)

// Lease returns the process-wide lease metrics registry.
func Lease() *LeaseMetrics {
	leaseOnce.Do(func() {
		leaseRegistry = &LeaseMetrics{
			leasesOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lease_opened_total",
				Help: "Count of leases that reached the active stage, by asset.",
			}, []string{"currency"}),
			openingsFailed: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "lease_opening_failed_total",
				Help: "Count of lease openings that terminated in the failed stage.",
			}),
			repayments: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "lease_repayments_total",
				Help: "Count of accepted repayments.",
			}),
			liquidations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lease_liquidations_total",
				Help: "Count of triggered liquidations by kind.",
			}, []string{"kind"}),
			warnings: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lease_liability_warnings_total",
				Help: "Count of liability warnings by kind.",
			}, []string{"kind"}),
			completionErrors: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "lease_completion_errors_total",
				Help: "Count of completions the state machine rejected.",
			}),
		}
		prometheus.MustRegister(
			leaseRegistry.leasesOpened,
			leaseRegistry.openingsFailed,
			leaseRegistry.repayments,
			leaseRegistry.liquidations,
			leaseRegistry.warnings,
			leaseRegistry.completionErrors,
		)
	})
	return leaseRegistry
}

func (m *LeaseMetrics) ObserveLeaseOpened(currency string) {
	if m == nil {
		return
	}
	if currency == "" {
		currency = "unknown"
	}
	m.leasesOpened.WithLabelValues(currency).Inc()
}

func (m *LeaseMetrics) ObserveOpeningFailed() {
	if m == nil {
		return
	}
	m.openingsFailed.Inc()
}

func (m *LeaseMetrics) ObserveRepayment() {
	if m == nil {
		return
	}
	m.repayments.Inc()
}

func (m *LeaseMetrics) ObserveLiquidation(kind string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.liquidations.WithLabelValues(kind).Inc()
}

func (m *LeaseMetrics) ObserveWarning(kind string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.warnings.WithLabelValues(kind).Inc()
}

func (m *LeaseMetrics) ObserveCompletionError() {
	if m == nil {
		return
	}
	m.completionErrors.Inc()
}
