package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/zapdesk/wabridge/internal/core/domain"
	"github.com/zapdesk/wabridge/internal/infra/storage"
)

// MemoryStorage backs the repositories with in-process maps. Used by
// tests and by dev mode without a database.
type MemoryStorage struct {
	sessions map[int64]*domain.Session
	messages map[string]*domain.Message
	contacts map[string]*domain.Contact // key tenantID:number
	tickets  map[string]*domain.Ticket
	mu       sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		sessions: make(map[int64]*domain.Session),
		messages: make(map[string]*domain.Message),
		contacts: make(map[string]*domain.Contact),
		tickets:  make(map[string]*domain.Ticket),
	}
}

// Seed inserts a session record directly, for tests and dev mode.
func (s *MemoryStorage) Seed(sess *domain.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.sessions[sess.ID] = &cp
}

// -----------------------------------------------------------------------------
// Session Repository
// -----------------------------------------------------------------------------

type SessionRepo struct {
	store *MemoryStorage
}

func NewSessionRepo(store *MemoryStorage) *SessionRepo {
	return &SessionRepo{store: store}
}

func (r *SessionRepo) Get(ctx context.Context, id int64) (*domain.Session, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	sess, ok := r.store.sessions[id]
	if !ok {
		return nil, storage.ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

func (r *SessionRepo) List(ctx context.Context) ([]*domain.Session, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]*domain.Session, 0, len(r.store.sessions))
	for _, sess := range r.store.sessions {
		cp := *sess
		out = append(out, &cp)
	}
	return out, nil
}

func (r *SessionRepo) SaveStatus(ctx context.Context, id int64, snap storage.StatusSnapshot) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	sess, ok := r.store.sessions[id]
	if !ok {
		return storage.ErrSessionNotFound
	}
	sess.Status = snap.Status
	sess.QRCode = snap.QRCode
	sess.Number = snap.Number
	sess.Retries = snap.Retries
	sess.ReconnectBlocked = snap.Blocked
	sess.BlockReason = snap.BlockReason
	sess.UpdatedAt = time.Now()
	return nil
}

// -----------------------------------------------------------------------------
// Message Repository
// -----------------------------------------------------------------------------

type MessageRepo struct {
	store *MemoryStorage
}

func NewMessageRepo(store *MemoryStorage) *MessageRepo {
	return &MessageRepo{store: store}
}

func (r *MessageRepo) FindByProtocolID(ctx context.Context, protocolID string) (*domain.Message, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	msg, ok := r.store.messages[protocolID]
	if !ok {
		return nil, nil
	}
	cp := *msg
	return &cp, nil
}

func (r *MessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.messages[msg.ID]; ok {
		return nil
	}
	cp := *msg
	r.store.messages[msg.ID] = &cp
	return nil
}

func (r *MessageRepo) UpdateAck(ctx context.Context, protocolID string, ack int) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	msg, ok := r.store.messages[protocolID]
	if !ok || msg.Ack >= ack {
		return false, nil
	}
	msg.Ack = ack
	return true, nil
}

// -----------------------------------------------------------------------------
// Contact Repository
// -----------------------------------------------------------------------------

type ContactRepo struct {
	store *MemoryStorage
}

func NewContactRepo(store *MemoryStorage) *ContactRepo {
	return &ContactRepo{store: store}
}

func contactKey(tenantID int64, number string) string {
	return strconv.FormatInt(tenantID, 10) + ":" + number
}

func (r *ContactRepo) GetByNumber(ctx context.Context, tenantID int64, number string) (*domain.Contact, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	contact, ok := r.store.contacts[contactKey(tenantID, number)]
	if !ok {
		return nil, nil
	}
	cp := *contact
	return &cp, nil
}

func (r *ContactRepo) Upsert(ctx context.Context, contact *domain.Contact) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *contact
	cp.UpdatedAt = time.Now()
	r.store.contacts[contactKey(contact.TenantID, contact.Number)] = &cp
	return nil
}

// -----------------------------------------------------------------------------
// Ticket Repository
// -----------------------------------------------------------------------------

type TicketRepo struct {
	store *MemoryStorage
}

func NewTicketRepo(store *MemoryStorage) *TicketRepo {
	return &TicketRepo{store: store}
}

func (r *TicketRepo) FindLatestByContact(ctx context.Context, contactID string, sessionID int64) (*domain.Ticket, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var latest *domain.Ticket
	for _, t := range r.store.tickets {
		if t.ContactID != contactID || t.SessionID != sessionID || t.Status == domain.TicketClosed {
			continue
		}
		if latest == nil || t.UpdatedAt.After(latest.UpdatedAt) {
			latest = t
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (r *TicketRepo) Create(ctx context.Context, ticket *domain.Ticket) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *ticket
	now := time.Now()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	r.store.tickets[ticket.ID] = &cp
	return nil
}

func (r *TicketRepo) Touch(ctx context.Context, id string, lastMessage string, unreadDelta int) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	t, ok := r.store.tickets[id]
	if !ok {
		return nil
	}
	t.LastMessage = lastMessage
	t.UnreadCount += unreadDelta
	t.UpdatedAt = time.Now()
	return nil
}
