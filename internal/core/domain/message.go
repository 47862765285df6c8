package domain

import "time"

// Ack levels reported asynchronously by WhatsApp. Ack is monotonic per
// message: a lower incoming value never overwrites a higher stored one.
const (
	AckPending   = 0
	AckSent      = 1
	AckDelivered = 2
	AckRead      = 3
)

// Message is one chat message keyed by its protocol id. The protocol id
// is the dedup key for inbound intake: the same upsert event may be
// redelivered by the protocol layer.
type Message struct {
	ID          string    `db:"id"           json:"id"` // protocol message id
	TicketID    string    `db:"ticket_id"    json:"ticket_id"`
	SessionID   int64     `db:"session_id"   json:"session_id"`
	ContactID   string    `db:"contact_id"   json:"contact_id"`
	Body        string    `db:"body"         json:"body"`
	ContentType string    `db:"content_type" json:"content_type"`
	FromMe      bool      `db:"from_me"      json:"from_me"`
	Ack         int       `db:"ack"          json:"ack"`
	Raw         []byte    `db:"raw"          json:"-"` // raw protocol payload for later reference
	CreatedAt   time.Time `db:"created_at"   json:"created_at"`
}
