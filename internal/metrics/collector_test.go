package trustmetrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	trustmetrics "github.com/carlinkd/cartrustd/internal/metrics"
)

func TestNewCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := trustmetrics.NewCollector(reg)

	if c.ActiveSessions == nil {
		t.Error("ActiveSessions is nil")
	}
	if c.ActivePairings == nil {
		t.Error("ActivePairings is nil")
	}
	if c.PairingAttempts == nil {
		t.Error("PairingAttempts is nil")
	}
	if c.PairingDuration == nil {
		t.Error("PairingDuration is nil")
	}
	if c.AuthFailures == nil {
		t.Error("AuthFailures is nil")
	}
	if c.CalendarSyncsSent == nil {
		t.Error("CalendarSyncsSent is nil")
	}
	if c.CalendarSyncStatus == nil {
		t.Error("CalendarSyncStatus is nil")
	}

	// Verify all metrics are registered by gathering them.
	if _, err := reg.Gather(); err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
}

func TestSessionReadyClosed(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := trustmetrics.NewCollector(reg)

	c.SessionReady()
	c.SessionReady()
	if val := gaugeValue(t, c.ActiveSessions); val != 2 {
		t.Errorf("ActiveSessions = %v, want 2", val)
	}

	c.SessionClosed()
	if val := gaugeValue(t, c.ActiveSessions); val != 1 {
		t.Errorf("ActiveSessions = %v, want 1", val)
	}
}

func TestPairingLifecycle(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := trustmetrics.NewCollector(reg)

	c.PairingStarted("association")
	if val := gaugeVecValue(t, c.ActivePairings, "association"); val != 1 {
		t.Errorf("ActivePairings(association) = %v, want 1", val)
	}

	c.PairingFinished("association", "success", 250*time.Millisecond)

	if val := gaugeVecValue(t, c.ActivePairings, "association"); val != 0 {
		t.Errorf("ActivePairings(association) after finish = %v, want 0", val)
	}

	if val := counterVecValue(t, c.PairingAttempts, "association", "success"); val != 1 {
		t.Errorf("PairingAttempts(association, success) = %v, want 1", val)
	}
}

func TestAuthFailures(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := trustmetrics.NewCollector(reg)

	c.IncAuthFailures("peer-1")
	c.IncAuthFailures("peer-1")

	if val := counterVecValue(t, c.AuthFailures, "peer-1"); val != 2 {
		t.Errorf("AuthFailures(peer-1) = %v, want 2", val)
	}
}

func TestCalendarSyncMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := trustmetrics.NewCollector(reg)

	c.IncCalendarSyncsSent("peer-1", "update")
	c.IncCalendarSyncsSent("peer-1", "update")
	c.IncCalendarSyncsSent("peer-1", "replace")

	if val := counterVecValue(t, c.CalendarSyncsSent, "peer-1", "update"); val != 2 {
		t.Errorf("CalendarSyncsSent(peer-1, update) = %v, want 2", val)
	}

	c.SetCalendarSyncStatus("peer-1", "pending")
	if val := gaugeVecValue(t, c.CalendarSyncStatus, "peer-1", "pending"); val != 1 {
		t.Errorf("CalendarSyncStatus(peer-1, pending) = %v, want 1", val)
	}
	if val := gaugeVecValue(t, c.CalendarSyncStatus, "peer-1", "clean"); val != 0 {
		t.Errorf("CalendarSyncStatus(peer-1, clean) = %v, want 0", val)
	}

	c.SetCalendarSyncStatus("peer-1", "clean")
	if val := gaugeVecValue(t, c.CalendarSyncStatus, "peer-1", "pending"); val != 0 {
		t.Errorf("CalendarSyncStatus(peer-1, pending) after re-set = %v, want 0", val)
	}
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}
	return m.GetGauge().GetValue()
}

func gaugeVecValue(t *testing.T, vec *prometheus.GaugeVec, labels ...string) float64 {
	t.Helper()
	gauge, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}
	m := &dto.Metric{}
	if err := gauge.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}
	return m.GetGauge().GetValue()
}

func counterVecValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	counter, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}
	m := &dto.Metric{}
	if err := counter.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}
