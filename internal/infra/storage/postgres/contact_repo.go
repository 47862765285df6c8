package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/zapdesk/wabridge/internal/core/domain"
)

// ContactRepo implements storage.ContactRepository using PostgreSQL.
type ContactRepo struct {
	db *DB
}

// NewContactRepo creates a new PostgreSQL contact repository.
func NewContactRepo(db *DB) *ContactRepo {
	return &ContactRepo{db: db}
}

// GetByNumber retrieves a tenant's contact by phone number.
func (r *ContactRepo) GetByNumber(ctx context.Context, tenantID int64, number string) (*domain.Contact, error) {
	var contact domain.Contact
	err := r.db.GetContext(ctx, &contact,
		`SELECT id, tenant_id, name, number, created_at, updated_at
		 FROM contacts WHERE tenant_id = $1 AND number = $2`, tenantID, number)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contact: %w", err)
	}
	return &contact, nil
}

// Upsert creates the contact or refreshes its name.
func (r *ContactRepo) Upsert(ctx context.Context, contact *domain.Contact) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO contacts (id, tenant_id, name, number, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, now(), now())
		 ON CONFLICT (tenant_id, number)
		 DO UPDATE SET name = EXCLUDED.name, updated_at = now()`,
		contact.ID, contact.TenantID, contact.Name, contact.Number)
	if err != nil {
		return fmt.Errorf("failed to upsert contact: %w", err)
	}
	return nil
}
