package domain

import "time"

// SessionStatus is the persisted lifecycle state of a WhatsApp session.
type SessionStatus string

const (
	StatusOpening      SessionStatus = "OPENING"
	StatusQRCode       SessionStatus = "QRCODE"
	StatusConnected    SessionStatus = "CONNECTED"
	StatusDisconnected SessionStatus = "DISCONNECTED"
)

// Session is one tenant's logical connection to WhatsApp, backed by a
// single protocol socket at a time. The persisted snapshot (status, QR
// payload, remote number, retries) is mirrored to storage on every
// transition; runtime-only state (timers, attempt timestamps) lives in
// the session controller.
type Session struct {
	ID       int64         `db:"id"        json:"id"`
	TenantID int64         `db:"tenant_id" json:"tenant_id"`
	Name     string        `db:"name"      json:"name"`
	Number   string        `db:"number"    json:"number"` // last-known remote user identifier
	Status   SessionStatus `db:"status"    json:"status"`
	QRCode   string        `db:"qrcode"    json:"qrcode"`
	Retries  int           `db:"retries"   json:"retries"`

	ReconnectBlocked bool      `db:"reconnect_blocked" json:"reconnect_blocked"`
	BlockReason      string    `db:"block_reason"      json:"block_reason"`
	BlockedAt        time.Time `db:"blocked_at"        json:"blocked_at"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Connected reports whether the session is in the CONNECTED state.
func (s *Session) Connected() bool {
	return s.Status == StatusConnected
}
