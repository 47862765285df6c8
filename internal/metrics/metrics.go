package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionState tracks the current lifecycle state per session
	SessionState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wabridge_session_state",
			Help: "Current session state (1 for the active state)",
		},
		[]string{"session", "state"},
	)

	// DisconnectsTotal tracks close events by recovery category
	DisconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wabridge_disconnects_total",
			Help: "Total connection close events by category",
		},
		[]string{"session", "category"},
	)

	// ReconnectsScheduled tracks scheduled reconnect attempts
	ReconnectsScheduled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wabridge_reconnects_scheduled_total",
			Help: "Total reconnect attempts scheduled",
		},
		[]string{"session"},
	)

	// QRGenerated tracks QR codes generated per session
	QRGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wabridge_qr_generated_total",
			Help: "Total QR codes generated",
		},
		[]string{"session"},
	)

	// HeartbeatsTotal tracks liveness signals by outcome
	HeartbeatsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wabridge_heartbeats_total",
			Help: "Total heartbeat attempts",
		},
		[]string{"session", "outcome"},
	)

	// MessagesIntake tracks inbound messages accepted by the pipeline
	MessagesIntake = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wabridge_messages_intake_total",
			Help: "Total inbound messages accepted",
		},
		[]string{"session", "content_type"},
	)

	// MessagesDeduped tracks inbound messages discarded as duplicates
	MessagesDeduped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wabridge_messages_deduped_total",
			Help: "Total inbound messages discarded as redelivered duplicates",
		},
		[]string{"session"},
	)

	// AcksApplied tracks ack updates that moved the stored value forward
	AcksApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wabridge_acks_applied_total",
			Help: "Total ack updates applied",
		},
		[]string{"session"},
	)
)

// states is the full state vocabulary for SetSessionState.
var states = []string{"OPENING", "QRCODE", "CONNECTED", "DISCONNECTED"}

// SetSessionState sets the state gauge to 1 for the active state and 0
// for the rest, so dashboards can sum by state.
func SetSessionState(session, state string) {
	for _, s := range states {
		v := 0.0
		if s == state {
			v = 1.0
		}
		SessionState.WithLabelValues(session, s).Set(v)
	}
}
