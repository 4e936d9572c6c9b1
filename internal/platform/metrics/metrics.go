package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Handshakes        *prometheus.CounterVec
	Registrations     *prometheus.CounterVec
	StatusChanges     *prometheus.CounterVec
	AdminTransactions *prometheus.CounterVec
	LedgerAttempts    *prometheus.CounterVec
	LedgerLatency     *prometheus.HistogramVec
	ReconcileOutcomes *prometheus.CounterVec
	BreakerState      *prometheus.GaugeVec
	HTTPLatency       *prometheus.HistogramVec
}

// New creates and registers all metrics with the default registerer.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the metrics with reg; tests pass a fresh
// registry so repeated construction does not collide.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Handshakes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "zkbadge_handshakes_total",
			Help: "Handshake attempts by phase and outcome",
		}, []string{"phase", "outcome"}),
		Registrations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "zkbadge_registrations_total",
			Help: "Registration attempts by outcome",
		}, []string{"outcome"}),
		StatusChanges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "zkbadge_credential_status_changes_total",
			Help: "Credential status transitions by target status",
		}, []string{"status"}),
		AdminTransactions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "zkbadge_admin_transactions_total",
			Help: "Admin transactions by command and outcome",
		}, []string{"command", "outcome"}),
		LedgerAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "zkbadge_ledger_attempts_total",
			Help: "Ledger calls by operation and result",
		}, []string{"op", "result"}),
		LedgerLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "zkbadge_ledger_duration_seconds",
			Help:    "Ledger call latency by operation",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"op"}),
		ReconcileOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "zkbadge_reconcile_outcomes_total",
			Help: "Reconciliation results per credential",
		}, []string{"outcome"}),
		BreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "zkbadge_circuit_breaker_open",
			Help: "1 when the named circuit breaker is open",
		}, []string{"name"}),
		HTTPLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "zkbadge_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) IncHandshake(phase, outcome string) {
	if m != nil {
		m.Handshakes.WithLabelValues(phase, outcome).Inc()
	}
}

func (m *Metrics) IncRegistration(outcome string) {
	if m != nil {
		m.Registrations.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncStatusChange(status string) {
	if m != nil {
		m.StatusChanges.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) IncAdminTransaction(command, outcome string) {
	if m != nil {
		m.AdminTransactions.WithLabelValues(command, outcome).Inc()
	}
}

func (m *Metrics) ObserveLedgerCall(op, result string, d time.Duration) {
	if m != nil {
		m.LedgerAttempts.WithLabelValues(op, result).Inc()
		m.LedgerLatency.WithLabelValues(op).Observe(d.Seconds())
	}
}

func (m *Metrics) IncReconcile(outcome string) {
	if m != nil {
		m.ReconcileOutcomes.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) SetBreakerOpen(name string, open bool) {
	if m != nil {
		v := 0.0
		if open {
			v = 1
		}
		m.BreakerState.WithLabelValues(name).Set(v)
	}
}

func (m *Metrics) ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	if m != nil {
		m.HTTPLatency.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
	}
}
