package trustmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "cartrustd"
	subsystem = "peer"
)

// Label names.
const (
	labelPeerID = "peer_id"
	labelMode   = "mode"   // association | reconnection
	labelResult = "result" // success | failed
	labelAction = "action" // replace | update
	labelStatus = "status" // clean | pending | failed
)

// -------------------------------------------------------------------------
// Collector: Prometheus companion-device metrics
// -------------------------------------------------------------------------

// Collector holds every Prometheus metric emitted by the pairing state
// machine, the session multiplexer, and the calendar-sync feature.
//
//   - ActiveSessions and ActivePairings gauge the current encrypted-session
//     and in-flight-pairing counts for alerting on stuck peers.
//   - PairingAttempts/PairingDuration track the pairing FSM's outcome rate
//     and latency (spec.md §4.1, §7).
//   - AuthFailures flags UKEY2/HMAC verification mismatches, a potential
//     security signal.
//   - CalendarSyncsSent and CalendarSyncStatus track the calendar-sync
//     feature's per-peer send volume and shadow-reconciliation state
//     (spec.md §4.8).
type Collector struct {
	// ActiveSessions tracks the number of currently READY encrypted
	// sessions (spec.md §4.1 terminal state).
	ActiveSessions prometheus.Gauge

	// ActivePairings tracks in-flight pairing attempts, labeled by mode.
	ActivePairings *prometheus.GaugeVec

	// PairingAttempts counts completed pairing attempts, labeled by
	// mode and result.
	PairingAttempts *prometheus.CounterVec

	// PairingDuration observes the wall-clock time from EventStart to a
	// terminal FSM outcome.
	PairingDuration *prometheus.HistogramVec

	// AuthFailures counts UKEY2 verification / HMAC reconnection-challenge
	// mismatches per peer (spec.md §4.1, §4.5).
	AuthFailures *prometheus.CounterVec

	// CalendarSyncsSent counts calendar-sync stream messages sent per
	// peer, labeled by action (replace vs. update, spec.md §4.7).
	CalendarSyncsSent *prometheus.CounterVec

	// CalendarSyncStatus gauges the current StatusTracker state per peer
	// (1 for the active status label, 0 otherwise; spec.md §4.8).
	CalendarSyncStatus *prometheus.GaugeVec
}

// NewCollector creates a Collector with all metrics registered against
// the provided prometheus.Registerer. If reg is nil, prometheus.DefaultRegisterer
// is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.ActiveSessions,
		c.ActivePairings,
		c.PairingAttempts,
		c.PairingDuration,
		c.AuthFailures,
		c.CalendarSyncsSent,
		c.CalendarSyncStatus,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	peerLabels := []string{labelPeerID}

	return &Collector{
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "active_sessions",
			Help:      "Number of currently READY encrypted peer sessions.",
		}),

		ActivePairings: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "active_pairings",
			Help:      "Number of in-flight pairing attempts, by mode.",
		}, []string{labelMode}),

		PairingAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pairing_attempts_total",
			Help:      "Total completed pairing attempts, by mode and result.",
		}, []string{labelMode, labelResult}),

		PairingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pairing_duration_seconds",
			Help:      "Wall-clock time from pairing start to a terminal outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{labelMode, labelResult}),

		AuthFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "auth_failures_total",
			Help:      "Total UKEY2/HMAC verification failures per peer.",
		}, peerLabels),

		CalendarSyncsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "calendar_sync",
			Name:      "messages_sent_total",
			Help:      "Total calendar-sync stream messages sent, by peer and action.",
		}, []string{labelPeerID, labelAction}),

		CalendarSyncStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "calendar_sync",
			Name:      "status",
			Help:      "Current calendar-sync status per peer (1 = active status label).",
		}, []string{labelPeerID, labelStatus}),
	}
}

// -------------------------------------------------------------------------
// Session Lifecycle
// -------------------------------------------------------------------------

// SessionReady increments the active-session gauge. Called when the
// pairing FSM reaches its Ready terminal state.
func (c *Collector) SessionReady() {
	c.ActiveSessions.Inc()
}

// SessionClosed decrements the active-session gauge. Called on
// disconnect or failure from a Ready session.
func (c *Collector) SessionClosed() {
	c.ActiveSessions.Dec()
}

// -------------------------------------------------------------------------
// Pairing Lifecycle
// -------------------------------------------------------------------------

// PairingStarted increments the in-flight pairing gauge for mode.
func (c *Collector) PairingStarted(mode string) {
	c.ActivePairings.WithLabelValues(mode).Inc()
}

// PairingFinished decrements the in-flight pairing gauge, records the
// outcome counter, and observes elapsed as the pairing duration.
func (c *Collector) PairingFinished(mode, result string, elapsed time.Duration) {
	c.ActivePairings.WithLabelValues(mode).Dec()
	c.PairingAttempts.WithLabelValues(mode, result).Inc()
	c.PairingDuration.WithLabelValues(mode, result).Observe(elapsed.Seconds())
}

// IncAuthFailures increments the authentication failure counter for the
// given peer ID (spec.md §4.1: "HMAC byte-equal check").
func (c *Collector) IncAuthFailures(peerID string) {
	c.AuthFailures.WithLabelValues(peerID).Inc()
}

// -------------------------------------------------------------------------
// Calendar Sync
// -------------------------------------------------------------------------

// IncCalendarSyncsSent increments the sent-message counter for peerID,
// labeled by action ("replace" or "update").
func (c *Collector) IncCalendarSyncsSent(peerID, action string) {
	c.CalendarSyncsSent.WithLabelValues(peerID, action).Inc()
}

// SetCalendarSyncStatus records status as the active label for peerID,
// zeroing the other two status labels so exactly one reads 1.
func (c *Collector) SetCalendarSyncStatus(peerID, status string) {
	for _, s := range []string{"clean", "pending", "failed"} {
		v := 0.0
		if s == status {
			v = 1.0
		}
		c.CalendarSyncStatus.WithLabelValues(peerID, s).Set(v)
	}
}
