package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecord(t *testing.T) {
	m := NewWithRegisterer(prometheus.NewRegistry())

	m.IncRegistration("success")
	m.IncRegistration("success")
	m.IncAdminTransaction("add_domain", "confirmed")
	m.ObserveLedgerCall("register_member", "ok", 20*time.Millisecond)
	m.SetBreakerOpen("ledger", true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Registrations.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AdminTransactions.WithLabelValues("add_domain", "confirmed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LedgerAttempts.WithLabelValues("register_member", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BreakerState.WithLabelValues("ledger")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncHandshake("begin", "ok")
		m.IncReconcile("confirmed")
		m.ObserveLedgerCall("verify_badge", "error", time.Second)
		m.ObserveHTTPRequest("GET", "/healthz", 200, time.Millisecond)
	})
}
