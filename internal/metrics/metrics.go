// Package metrics provides Prometheus metrics for the wallet relay.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for both binaries.
type Metrics struct {
	ConnectionsTotal  *prometheus.CounterVec
	ReconnectsTotal   prometheus.Counter
	MessagesTotal     *prometheus.CounterVec
	TransactionsTotal *prometheus.CounterVec
	ApprovalDuration  prometheus.Histogram
	SessionsActive    prometheus.Gauge
	ErrorsTotal       *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		ConnectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_connections_total",
				Help: "Total WebSocket connections established, by role.",
			},
			[]string{"role"},
		),
		ReconnectsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "relay_reconnect_attempts_total",
				Help: "Total reconnect attempts scheduled.",
			},
		),
		MessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_messages_total",
				Help: "Total relay frames by direction.",
			},
			[]string{"direction"},
		),
		TransactionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_transactions_total",
				Help: "Transaction requests by final outcome.",
			},
			[]string{"outcome"},
		),
		ApprovalDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "relay_approval_duration_seconds",
				Help:    "Time from request arrival to human decision.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		),
		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "relay_sessions_active",
				Help: "Approver connections currently bound to a session.",
			},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_errors_total",
				Help: "Total errors by component and kind.",
			},
			[]string{"component", "kind"},
		),
		registry: reg,
	}

	reg.MustRegister(m.ConnectionsTotal)
	reg.MustRegister(m.ReconnectsTotal)
	reg.MustRegister(m.MessagesTotal)
	reg.MustRegister(m.TransactionsTotal)
	reg.MustRegister(m.ApprovalDuration)
	reg.MustRegister(m.SessionsActive)
	reg.MustRegister(m.ErrorsTotal)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordOutcome increments the transaction outcome counter.
func (m *Metrics) RecordOutcome(outcome string) {
	m.TransactionsTotal.WithLabelValues(outcome).Inc()
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, kind string) {
	m.ErrorsTotal.WithLabelValues(component, kind).Inc()
}
