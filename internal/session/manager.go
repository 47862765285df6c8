package session

import (
	"context"
	"fmt"
	"log/slog"
)

// Manager exposes the session operations consumed by the CLI/HTTP
// layer. One controller runs per tenant session; the manager owns the
// live-session registry and the replace-on-start semantics.
type Manager struct {
	cfg  Config
	deps Deps
	reg  *Registry
	log  *slog.Logger
}

// NewManager creates a manager over the shared registry.
func NewManager(cfg Config, deps Deps, reg *Registry) *Manager {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	return &Manager{cfg: cfg, deps: deps, reg: reg, log: log}
}

// Registry returns the live-session registry.
func (m *Manager) Registry() *Registry {
	return m.reg
}

// StartSession starts (or restarts) the session. Idempotent: an
// existing live connection for the same session is torn down first so
// two sockets never race for one remote identity. Only errors before
// the handshake is initiated propagate.
func (m *Manager) StartSession(ctx context.Context, id int64) error {
	sess, err := m.deps.Store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load session %d: %w", id, err)
	}

	c := NewController(m.cfg, m.deps, m.reg, sess)
	if old := m.reg.Swap(id, c); old != nil {
		m.log.Info("replacing live session", "session", id)
		old.Destroy(ctx)
	}

	if err := c.Start(ctx); err != nil {
		c.Destroy(ctx)
		return err
	}
	return nil
}

// StopSession tears the live session down. With logout the pairing is
// invalidated remotely and credentials wiped.
func (m *Manager) StopSession(ctx context.Context, id int64, logout bool) error {
	c, ok := m.reg.Get(id)
	if !ok {
		return ErrNoLiveSession
	}
	c.Stop(ctx, logout)
	return nil
}

// GetLiveSession returns the live controller for the session.
func (m *Manager) GetLiveSession(id int64) (*Controller, error) {
	c, ok := m.reg.Get(id)
	if !ok {
		return nil, ErrNoLiveSession
	}
	return c, nil
}

// Connected reports whether the session is live and CONNECTED. Used as
// the intake pipeline's gate.
func (m *Manager) Connected(id int64) bool {
	c, ok := m.reg.Get(id)
	return ok && c.Connected()
}

// BlockAutoReconnect sets the auto-reconnect-blocked flag on the live
// session.
func (m *Manager) BlockAutoReconnect(id int64, reason string) error {
	c, ok := m.reg.Get(id)
	if !ok {
		return ErrNoLiveSession
	}
	c.Block(reason)
	return nil
}

// ClearAutoReconnectBlock clears the flag on the live session.
func (m *Manager) ClearAutoReconnectBlock(id int64) error {
	c, ok := m.reg.Get(id)
	if !ok {
		return ErrNoLiveSession
	}
	c.ClearBlock()
	return nil
}

// IsAutoReconnectBlocked reports the flag for the live session; a
// session with no live controller is not blocked.
func (m *Manager) IsAutoReconnectBlocked(id int64) bool {
	c, ok := m.reg.Get(id)
	if !ok {
		return false
	}
	blocked, _ := c.Blocked()
	return blocked
}

// SendText sends a text message on the live socket, stores it (ack
// sent) and caches its payload for retry lookups, then returns the
// protocol message id. Recording failures are logged and swallowed:
// the message already left.
func (m *Manager) SendText(ctx context.Context, id int64, to, body string) (string, error) {
	c, ok := m.reg.Get(id)
	if !ok {
		return "", ErrNoLiveSession
	}
	sock := c.Socket()
	if sock == nil {
		return "", ErrNoLiveSession
	}
	protocolID, raw, err := sock.SendText(ctx, to, body)
	if err != nil {
		return "", fmt.Errorf("failed to send message on session %d: %w", id, err)
	}

	sess := c.Snapshot()
	if err := m.deps.Intake.RecordOutbound(ctx, &sess, protocolID, to, body, raw); err != nil {
		m.log.Error("failed to record outbound message",
			"session", id, "protocol_id", protocolID, "error", err)
	}
	return protocolID, nil
}

// StopAll tears down every live session without logging out. Used on
// shutdown.
func (m *Manager) StopAll(ctx context.Context) {
	for _, c := range m.reg.All() {
		c.Stop(ctx, false)
	}
}
