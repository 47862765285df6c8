// Package notify defines the real-time notification bus the session
// engine publishes to. Publishing is fire-and-forget: failures are
// logged by callers, never propagated.
package notify

import (
	"context"
	"fmt"
)

// Bus fans events out to the tenant's connected UI clients.
type Bus interface {
	Publish(ctx context.Context, channel, event string, payload any) error
}

// Event names published by the session engine.
const (
	EventSessionUpdate = "whatsappSession"
	EventSessionAlert  = "whatsappSessionAlert"
	EventQRScanned     = "whatsappQrScanned"
)

// TenantChannel is the per-tenant pub/sub channel name.
func TenantChannel(tenantID int64) string {
	return fmt.Sprintf("tenant:%d:whatsapp", tenantID)
}

// SessionUpdate mirrors a persisted session transition to the UI.
type SessionUpdate struct {
	SessionID int64  `json:"session_id"`
	Status    string `json:"status"`
	QRCode    string `json:"qrcode,omitempty"`
	QRImage   string `json:"qr_image,omitempty"` // base64 PNG render of QRCode
	Number    string `json:"number,omitempty"`
	Retries   int    `json:"retries"`
}

// Alert carries a classified error with a human-readable diagnosis and
// remediation. Critical alerts (credential loss) are surfaced
// distinctly by the UI.
type Alert struct {
	SessionID   int64  `json:"session_id"`
	Category    string `json:"category"`
	Diagnosis   string `json:"diagnosis"`
	Remediation string `json:"remediation"`
	Critical    bool   `json:"critical"`
}
