package domain

import "time"

// TicketStatus is the workflow state of a support ticket.
type TicketStatus string

const (
	TicketOpen    TicketStatus = "open"
	TicketPending TicketStatus = "pending"
	TicketClosed  TicketStatus = "closed"
)

// Ticket groups a contact's conversation on one session. Inbound
// messages reuse the newest non-closed ticket for the (contact,
// session) pair before opening a new one.
type Ticket struct {
	ID          string       `db:"id"           json:"id"`
	TenantID    int64        `db:"tenant_id"    json:"tenant_id"`
	SessionID   int64        `db:"session_id"   json:"session_id"`
	ContactID   string       `db:"contact_id"   json:"contact_id"`
	Status      TicketStatus `db:"status"       json:"status"`
	LastMessage string       `db:"last_message" json:"last_message"`
	UnreadCount int          `db:"unread_count" json:"unread_count"`
	CreatedAt   time.Time    `db:"created_at"   json:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at"   json:"updated_at"`
}
