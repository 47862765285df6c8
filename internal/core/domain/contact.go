package domain

import "time"

// Contact is a remote WhatsApp user, keyed per tenant by phone number.
type Contact struct {
	ID        string    `db:"id"         json:"id"`
	TenantID  int64     `db:"tenant_id"  json:"tenant_id"`
	Name      string    `db:"name"       json:"name"`
	Number    string    `db:"number"     json:"number"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
