package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/zapdesk/wabridge/internal/core/domain"
)

// MessageRepo implements storage.MessageRepository using PostgreSQL.
type MessageRepo struct {
	db *DB
}

// NewMessageRepo creates a new PostgreSQL message repository.
func NewMessageRepo(db *DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// FindByProtocolID retrieves a message by its protocol id.
func (r *MessageRepo) FindByProtocolID(ctx context.Context, protocolID string) (*domain.Message, error) {
	var msg domain.Message
	err := r.db.GetContext(ctx, &msg,
		`SELECT id, ticket_id, session_id, contact_id, body, content_type,
		        from_me, ack, raw, created_at
		 FROM messages WHERE id = $1`, protocolID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find message: %w", err)
	}
	return &msg, nil
}

// Create stores a net-new message.
func (r *MessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO messages (id, ticket_id, session_id, contact_id, body,
		                       content_type, from_me, ack, raw, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO NOTHING`,
		msg.ID, msg.TicketID, msg.SessionID, msg.ContactID, msg.Body,
		msg.ContentType, msg.FromMe, msg.Ack, msg.Raw, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// UpdateAck applies an ack update only if it moves the stored value
// forward. The WHERE clause enforces monotonicity in one statement, so
// no lock is needed against out-of-order delivery.
func (r *MessageRepo) UpdateAck(ctx context.Context, protocolID string, ack int) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET ack = $2 WHERE id = $1 AND ack < $2`,
		protocolID, ack)
	if err != nil {
		return false, fmt.Errorf("failed to update ack: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read ack update result: %w", err)
	}
	return n > 0, nil
}
