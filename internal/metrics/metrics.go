package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the tool-access core
type Metrics struct {
	registry *prometheus.Registry

	// Call metrics
	CallsTotal   *prometheus.CounterVec
	CallDuration *prometheus.HistogramVec

	// Pool metrics
	PoolLive       *prometheus.GaugeVec
	PoolCheckedOut *prometheus.GaugeVec
	PoolWaiting    *prometheus.GaugeVec

	// Interaction metrics
	InteractionsTotal *prometheus.CounterVec

	// Audit metrics
	AuditRecordsDropped prometheus.Counter
}

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		CallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_calls_total",
				Help: "Total number of tool calls",
			},
			[]string{"tool", "outcome"},
		),
		CallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tool_call_duration_seconds",
				Help:    "Duration of tool calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool"},
		),

		PoolLive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "provider_pool_live_connections",
				Help: "Live connections per provider pool",
			},
			[]string{"provider"},
		),
		PoolCheckedOut: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "provider_pool_checked_out_connections",
				Help: "Checked-out connections per provider pool",
			},
			[]string{"provider"},
		),
		PoolWaiting: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "provider_pool_waiting_callers",
				Help: "Callers blocked waiting for a connection per provider pool",
			},
			[]string{"provider"},
		),

		InteractionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "interactions_total",
				Help: "Total number of human interactions by outcome",
			},
			[]string{"outcome"},
		),

		AuditRecordsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "audit_records_dropped_total",
				Help: "Audit records dropped because the sink buffer was full",
			},
		),
	}

	registry.MustRegister(
		m.CallsTotal,
		m.CallDuration,
		m.PoolLive,
		m.PoolCheckedOut,
		m.PoolWaiting,
		m.InteractionsTotal,
		m.AuditRecordsDropped,
	)

	return m
}

// Handler returns an HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordCall records a completed tool call
func (m *Metrics) RecordCall(tool, outcome string, durationSeconds float64) {
	m.CallsTotal.WithLabelValues(tool, outcome).Inc()
	m.CallDuration.WithLabelValues(tool).Observe(durationSeconds)
}

// UpdatePool updates the pool gauges for a provider
func (m *Metrics) UpdatePool(provider string, live, checkedOut, waiting int) {
	m.PoolLive.WithLabelValues(provider).Set(float64(live))
	m.PoolCheckedOut.WithLabelValues(provider).Set(float64(checkedOut))
	m.PoolWaiting.WithLabelValues(provider).Set(float64(waiting))
}
