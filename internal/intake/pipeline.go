// Package intake is the deduplicating message-intake pipeline: inbound
// protocol events become stored messages and tickets exactly once, and
// ack updates converge monotonically even when redelivered out of
// order.
package intake

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zapdesk/wabridge/internal/core/domain"
	"github.com/zapdesk/wabridge/internal/infra/storage"
	"github.com/zapdesk/wabridge/internal/metrics"
	"github.com/zapdesk/wabridge/internal/wa"
)

// MessageCache is the in-flight payload cache keyed by protocol id,
// used for send-time getMessage lookups. Eviction is owned by the
// cache backend.
type MessageCache interface {
	Put(ctx context.Context, protocolID string, payload []byte) error
	Get(ctx context.Context, protocolID string) ([]byte, error)
}

// Pipeline consumes inbound message events once the owning session is
// CONNECTED. Dedup is against durable storage by protocol id, so
// redelivered events are idempotent.
type Pipeline struct {
	messages storage.MessageRepository
	ticketer *Ticketer
	cache    MessageCache
	// connected gates intake on the owning session's state.
	connected func(sessionID int64) bool
	log       *slog.Logger
}

// New creates the pipeline. connected is the session-state gate,
// typically wired to the live-session registry.
func New(messages storage.MessageRepository, ticketer *Ticketer, cache MessageCache, connected func(int64) bool, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		messages:  messages,
		ticketer:  ticketer,
		cache:     cache,
		connected: connected,
		log:       log,
	}
}

// HandleUpsert processes a batch of inbound messages. Events for a
// session that is not CONNECTED are dropped; messages whose protocol id
// already exists in storage are discarded.
func (p *Pipeline) HandleUpsert(ctx context.Context, sess *domain.Session, msgs []wa.InboundMessage) {
	if !p.connected(sess.ID) {
		p.log.Debug("dropping upsert for non-connected session", "session", sess.ID, "count", len(msgs))
		return
	}

	for _, m := range msgs {
		if err := p.intakeOne(ctx, sess, m); err != nil {
			p.log.Error("failed to intake message", "session", sess.ID, "protocol_id", m.ProtocolID, "error", err)
		}
	}
}

func (p *Pipeline) intakeOne(ctx context.Context, sess *domain.Session, m wa.InboundMessage) error {
	existing, err := p.messages.FindByProtocolID(ctx, m.ProtocolID)
	if err != nil {
		return fmt.Errorf("failed to check for duplicate: %w", err)
	}
	if existing != nil {
		metrics.MessagesDeduped.WithLabelValues(fmt.Sprint(sess.ID)).Inc()
		return nil
	}

	kind, body := ExtractBody(m.Content)

	if err := p.cache.Put(ctx, m.ProtocolID, m.Raw); err != nil {
		p.log.Error("failed to cache message payload", "protocol_id", m.ProtocolID, "error", err)
	}

	ticket, contact, err := p.ticketer.Route(ctx, sess, m.From, m.PushName)
	if err != nil {
		return err
	}

	ack := domain.AckPending
	if m.FromMe {
		ack = domain.AckSent
	}
	msg := &domain.Message{
		ID:          m.ProtocolID,
		TicketID:    ticket.ID,
		SessionID:   sess.ID,
		ContactID:   contact.ID,
		Body:        body,
		ContentType: kind,
		FromMe:      m.FromMe,
		Ack:         ack,
		Raw:         m.Raw,
		CreatedAt:   time.Now(),
	}
	if err := p.messages.Create(ctx, msg); err != nil {
		return fmt.Errorf("failed to store message: %w", err)
	}

	if err := p.ticketer.Touch(ctx, ticket.ID, body, m.FromMe); err != nil {
		p.log.Error("failed to touch ticket", "ticket", ticket.ID, "error", err)
	}

	metrics.MessagesIntake.WithLabelValues(fmt.Sprint(sess.ID), kind).Inc()
	return nil
}

// HandleAcks applies ack updates. Acks are monotonic per message: a
// lower incoming value is ignored to tolerate out-of-order delivery.
func (p *Pipeline) HandleAcks(ctx context.Context, sess *domain.Session, acks []wa.MessageAck) {
	if !p.connected(sess.ID) {
		p.log.Debug("dropping acks for non-connected session", "session", sess.ID, "count", len(acks))
		return
	}

	for _, a := range acks {
		applied, err := p.messages.UpdateAck(ctx, a.ProtocolID, a.Ack)
		if err != nil {
			p.log.Error("failed to update ack", "protocol_id", a.ProtocolID, "error", err)
			continue
		}
		if applied {
			metrics.AcksApplied.WithLabelValues(fmt.Sprint(sess.ID)).Inc()
		}
	}
}

// RecordOutbound stores a message sent through the live socket and
// caches its payload for protocol-level getMessage lookups.
func (p *Pipeline) RecordOutbound(ctx context.Context, sess *domain.Session, protocolID, to, body string, raw []byte) error {
	if err := p.cache.Put(ctx, protocolID, raw); err != nil {
		p.log.Error("failed to cache outbound payload", "protocol_id", protocolID, "error", err)
	}

	ticket, contact, err := p.ticketer.Route(ctx, sess, to, "")
	if err != nil {
		return err
	}
	msg := &domain.Message{
		ID:          protocolID,
		TicketID:    ticket.ID,
		SessionID:   sess.ID,
		ContactID:   contact.ID,
		Body:        body,
		ContentType: "conversation",
		FromMe:      true,
		Ack:         domain.AckSent,
		Raw:         raw,
		CreatedAt:   time.Now(),
	}
	if err := p.messages.Create(ctx, msg); err != nil {
		return fmt.Errorf("failed to store outbound message: %w", err)
	}
	if err := p.ticketer.Touch(ctx, ticket.ID, body, true); err != nil {
		p.log.Error("failed to touch ticket", "ticket", ticket.ID, "error", err)
	}
	return nil
}

// MemoryCache is an in-process MessageCache for tests and dev mode.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string][]byte)}
}

func (c *MemoryCache) Put(ctx context.Context, protocolID string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[protocolID] = payload
	return nil
}

func (c *MemoryCache) Get(ctx context.Context, protocolID string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[protocolID], nil
}
