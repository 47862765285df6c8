package storage

import (
	"context"
	"errors"

	"github.com/zapdesk/wabridge/internal/core/domain"
)

var (
	// ErrSessionNotFound is returned when a session record doesn't exist
	ErrSessionNotFound = errors.New("session not found")
)

// StatusSnapshot is the persisted slice of session state mirrored to
// storage on every lifecycle transition.
type StatusSnapshot struct {
	Status      domain.SessionStatus
	QRCode      string
	Number      string
	Retries     int
	Blocked     bool
	BlockReason string
}

// SessionRepository handles session record storage
type SessionRepository interface {
	// Get retrieves a session by id
	Get(ctx context.Context, id int64) (*domain.Session, error)

	// List retrieves all sessions
	List(ctx context.Context) ([]*domain.Session, error)

	// SaveStatus mirrors a lifecycle transition to storage
	SaveStatus(ctx context.Context, id int64, snap StatusSnapshot) error
}

// MessageRepository handles message storage operations
type MessageRepository interface {
	// FindByProtocolID retrieves a message by its protocol id, nil when absent
	FindByProtocolID(ctx context.Context, protocolID string) (*domain.Message, error)

	// Create stores a net-new message
	Create(ctx context.Context, msg *domain.Message) error

	// UpdateAck applies an ack update only if it moves the stored value
	// forward; returns true when the update was applied
	UpdateAck(ctx context.Context, protocolID string, ack int) (bool, error)
}

// ContactRepository handles contact storage operations
type ContactRepository interface {
	// GetByNumber retrieves a tenant's contact by phone number, nil when absent
	GetByNumber(ctx context.Context, tenantID int64, number string) (*domain.Contact, error)

	// Upsert creates the contact or refreshes its name
	Upsert(ctx context.Context, contact *domain.Contact) error
}

// TicketRepository handles ticket storage operations
type TicketRepository interface {
	// FindLatestByContact retrieves the newest non-closed ticket for a
	// (contact, session) pair, nil when absent
	FindLatestByContact(ctx context.Context, contactID string, sessionID int64) (*domain.Ticket, error)

	// Create stores a new ticket
	Create(ctx context.Context, ticket *domain.Ticket) error

	// Touch updates last message and bumps the unread counter
	Touch(ctx context.Context, id string, lastMessage string, unreadDelta int) error
}
