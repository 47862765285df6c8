package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/zapdesk/wabridge/internal/core/domain"
	"github.com/zapdesk/wabridge/internal/infra/storage"
)

// SessionRepo implements storage.SessionRepository using PostgreSQL.
type SessionRepo struct {
	db *DB
}

// NewSessionRepo creates a new PostgreSQL session repository.
func NewSessionRepo(db *DB) *SessionRepo {
	return &SessionRepo{db: db}
}

// Get retrieves a session by id.
func (r *SessionRepo) Get(ctx context.Context, id int64) (*domain.Session, error) {
	var sess domain.Session
	err := r.db.GetContext(ctx, &sess,
		`SELECT id, tenant_id, name, number, status, qrcode, retries,
		        reconnect_blocked, block_reason,
		        COALESCE(blocked_at, 'epoch'::timestamptz) AS blocked_at,
		        created_at, updated_at
		 FROM sessions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &sess, nil
}

// List retrieves all sessions.
func (r *SessionRepo) List(ctx context.Context) ([]*domain.Session, error) {
	var sessions []*domain.Session
	err := r.db.SelectContext(ctx, &sessions,
		`SELECT id, tenant_id, name, number, status, qrcode, retries,
		        reconnect_blocked, block_reason,
		        COALESCE(blocked_at, 'epoch'::timestamptz) AS blocked_at,
		        created_at, updated_at
		 FROM sessions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// SaveStatus mirrors a lifecycle transition to storage.
func (r *SessionRepo) SaveStatus(ctx context.Context, id int64, snap storage.StatusSnapshot) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions
		 SET status = $2, qrcode = $3, number = $4, retries = $5,
		     reconnect_blocked = $6, block_reason = $7,
		     blocked_at = CASE WHEN $6 THEN COALESCE(blocked_at, now()) ELSE NULL END,
		     updated_at = now()
		 WHERE id = $1`,
		id, snap.Status, snap.QRCode, snap.Number, snap.Retries,
		snap.Blocked, snap.BlockReason)
	if err != nil {
		return fmt.Errorf("failed to save session status: %w", err)
	}
	return nil
}
