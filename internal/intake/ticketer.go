package intake

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/zapdesk/wabridge/internal/core/domain"
	"github.com/zapdesk/wabridge/internal/infra/storage"
)

// Ticketer routes net-new messages into tickets: the contact is
// upserted by phone number, then the newest non-closed ticket for the
// (contact, session) pair is reused, else a new one is opened.
type Ticketer struct {
	contacts storage.ContactRepository
	tickets  storage.TicketRepository
}

// NewTicketer creates a ticket router over the given repositories.
func NewTicketer(contacts storage.ContactRepository, tickets storage.TicketRepository) *Ticketer {
	return &Ticketer{contacts: contacts, tickets: tickets}
}

// Route resolves the ticket for an inbound message and returns it
// together with the resolved contact.
func (t *Ticketer) Route(ctx context.Context, sess *domain.Session, number, pushName string) (*domain.Ticket, *domain.Contact, error) {
	contact, err := t.contacts.GetByNumber(ctx, sess.TenantID, number)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up contact %s: %w", number, err)
	}
	if contact == nil {
		contact = &domain.Contact{
			ID:       uuid.New().String(),
			TenantID: sess.TenantID,
			Number:   number,
			Name:     pushName,
		}
	} else if pushName != "" && contact.Name != pushName {
		contact.Name = pushName
	}
	if err := t.contacts.Upsert(ctx, contact); err != nil {
		return nil, nil, fmt.Errorf("failed to upsert contact %s: %w", number, err)
	}

	ticket, err := t.tickets.FindLatestByContact(ctx, contact.ID, sess.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find ticket for contact %s: %w", contact.ID, err)
	}
	if ticket == nil {
		ticket = &domain.Ticket{
			ID:        uuid.New().String(),
			TenantID:  sess.TenantID,
			SessionID: sess.ID,
			ContactID: contact.ID,
			Status:    domain.TicketOpen,
		}
		if err := t.tickets.Create(ctx, ticket); err != nil {
			return nil, nil, fmt.Errorf("failed to create ticket: %w", err)
		}
	}
	return ticket, contact, nil
}

// Touch records a new message on the ticket; unread is bumped only for
// inbound messages.
func (t *Ticketer) Touch(ctx context.Context, ticketID, lastMessage string, fromMe bool) error {
	delta := 1
	if fromMe {
		delta = 0
	}
	return t.tickets.Touch(ctx, ticketID, lastMessage, delta)
}
