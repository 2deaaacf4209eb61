// Package metrics exposes Prometheus collectors for the paywall client:
// payment outcomes, per-stage latency and balance reads.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Payment outcomes used as the "outcome" label.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeRejected = "rejected"
	OutcomeStale    = "stale"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	PaymentsTotal   *prometheus.CounterVec
	PaymentDuration *prometheus.HistogramVec
	StageDuration   *prometheus.HistogramVec

	BalanceReadsTotal   *prometheus.CounterVec
	BalanceReadDuration *prometheus.HistogramVec
}

// New creates and registers all metrics on registry (the default
// registerer when nil).
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		PaymentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "x402_paywall_payments_total",
				Help: "Payment attempts by network and outcome",
			},
			[]string{"network", "outcome"},
		),
		PaymentDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "x402_paywall_payment_duration_seconds",
				Help:    "Time from submit to settled response, including wallet prompts",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"network", "outcome"},
		),
		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "x402_paywall_stage_duration_seconds",
				Help:    "Duration of each payment stage (network check, signature, submission)",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"stage"},
		),
		BalanceReadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "x402_paywall_balance_reads_total",
				Help: "Balance reads by network and outcome",
			},
			[]string{"network", "outcome"},
		),
		BalanceReadDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "x402_paywall_balance_read_duration_seconds",
				Help:    "Duration of a balance plus decimals read against one chain",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"network"},
		),
	}
}

// ObservePayment records the outcome of one Submit call.
func (m *Metrics) ObservePayment(network, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.PaymentsTotal.WithLabelValues(network, outcome).Inc()
	m.PaymentDuration.WithLabelValues(network, outcome).Observe(duration.Seconds())
}

// ObserveStage records how long one payment stage took.
func (m *Metrics) ObserveStage(stage string, duration time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// ObserveBalanceRead records one per-chain balance read.
func (m *Metrics) ObserveBalanceRead(network string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	m.BalanceReadsTotal.WithLabelValues(network, outcome).Inc()
	m.BalanceReadDuration.WithLabelValues(network).Observe(duration.Seconds())
}
