package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/zapdesk/wabridge/internal/core/domain"
)

// TicketRepo implements storage.TicketRepository using PostgreSQL.
type TicketRepo struct {
	db *DB
}

// NewTicketRepo creates a new PostgreSQL ticket repository.
func NewTicketRepo(db *DB) *TicketRepo {
	return &TicketRepo{db: db}
}

// FindLatestByContact retrieves the newest non-closed ticket for a
// (contact, session) pair.
func (r *TicketRepo) FindLatestByContact(ctx context.Context, contactID string, sessionID int64) (*domain.Ticket, error) {
	var ticket domain.Ticket
	err := r.db.GetContext(ctx, &ticket,
		`SELECT id, tenant_id, session_id, contact_id, status, last_message,
		        unread_count, created_at, updated_at
		 FROM tickets
		 WHERE contact_id = $1 AND session_id = $2 AND status != 'closed'
		 ORDER BY updated_at DESC LIMIT 1`, contactID, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find ticket: %w", err)
	}
	return &ticket, nil
}

// Create stores a new ticket.
func (r *TicketRepo) Create(ctx context.Context, ticket *domain.Ticket) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tickets (id, tenant_id, session_id, contact_id, status,
		                      last_message, unread_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())`,
		ticket.ID, ticket.TenantID, ticket.SessionID, ticket.ContactID,
		ticket.Status, ticket.LastMessage, ticket.UnreadCount)
	if err != nil {
		return fmt.Errorf("failed to create ticket: %w", err)
	}
	return nil
}

// Touch updates last message and bumps the unread counter.
func (r *TicketRepo) Touch(ctx context.Context, id string, lastMessage string, unreadDelta int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE tickets
		 SET last_message = $2, unread_count = unread_count + $3, updated_at = now()
		 WHERE id = $1`, id, lastMessage, unreadDelta)
	if err != nil {
		return fmt.Errorf("failed to touch ticket: %w", err)
	}
	return nil
}
