package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zapdesk/wabridge/internal/core/domain"
	"github.com/zapdesk/wabridge/internal/infra/storage"
	"github.com/zapdesk/wabridge/internal/metrics"
	"github.com/zapdesk/wabridge/internal/notify"
	"github.com/zapdesk/wabridge/internal/wa"
)

// ErrNoLiveSession is returned for operations on a session with no live
// controller.
var ErrNoLiveSession = errors.New("no live session")

// Config holds the recovery knobs of the session engine.
type Config struct {
	// MaxRetries caps the reconnection attempt counter; reaching it
	// forces terminal DISCONNECTED and blocks auto-reconnect.
	MaxRetries int `yaml:"max_retries"`
	// AttemptCooldown resets the attempt counter when the last attempt
	// is older than this (the session has cooled down).
	AttemptCooldown time.Duration `yaml:"attempt_cooldown"`

	QR        QRConfig        `yaml:"qr"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
}

// DefaultConfig returns the production recovery settings.
func DefaultConfig() Config {
	return Config{
		MaxRetries:      5,
		AttemptCooldown: 5 * time.Minute,
		QR:              DefaultQRConfig(),
		Heartbeat:       DefaultHeartbeatConfig(),
	}
}

// IntakeSink receives inbound protocol events for a session and records
// outbound sends. The sink gates inbound events on session state
// itself; the controller forwards everything.
type IntakeSink interface {
	HandleUpsert(ctx context.Context, sess *domain.Session, msgs []wa.InboundMessage)
	HandleAcks(ctx context.Context, sess *domain.Session, acks []wa.MessageAck)
	RecordOutbound(ctx context.Context, sess *domain.Session, protocolID, to, body string, raw []byte) error
}

// Deps are the constructor-injected collaborators of the session
// engine.
type Deps struct {
	Dialer wa.Dialer
	Creds  wa.CredentialStore
	Store  storage.SessionRepository
	Bus    notify.Bus
	Ledger ErrorLedger
	Intake IntakeSink
	Log    *slog.Logger
}

// stopper abstracts *time.Timer so tests can intercept scheduling.
type stopper interface {
	Stop() bool
}

// Controller owns one tenant session: the lifecycle state machine, the
// per-session timers and the attempt/block bookkeeping. Socket event
// handlers run to completion under the controller mutex, so events for
// one session are processed strictly one at a time.
type Controller struct {
	cfg  Config
	deps Deps
	reg  *Registry
	log  *slog.Logger

	// afterFunc schedules reconnects; replaced in tests.
	afterFunc func(d time.Duration, f func()) stopper

	mu          sync.Mutex
	sess        *domain.Session
	socket      wa.Socket
	qr          *QRTracker
	hb          *Heartbeat
	attempts    int
	lastAttempt time.Time
	reconnect   stopper
	destroyed   bool
}

// NewController creates a controller for the session record. The
// controller takes ownership of the record until Destroy.
func NewController(cfg Config, deps Deps, reg *Registry, sess *domain.Session) *Controller {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		cfg:  cfg,
		deps: deps,
		reg:  reg,
		log:  log.With("session", sess.ID),
		sess: sess,
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
	}
}

// Start transitions the session to OPENING, persists and broadcasts the
// state, then opens the underlying socket. Only errors before the
// handshake is initiated propagate; everything after arrives as events.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return ErrNoLiveSession
	}

	c.sess.ReconnectBlocked = false
	c.sess.BlockReason = ""
	c.setStateLocked(ctx, domain.StatusOpening)
	return c.openLocked(ctx)
}

// openLocked dials a fresh socket and initiates the handshake.
func (c *Controller) openLocked(ctx context.Context) error {
	sock, err := c.deps.Dialer.Dial(ctx, c.sess)
	if err != nil {
		return fmt.Errorf("failed to dial session %d: %w", c.sess.ID, err)
	}

	sock.Subscribe(wa.Handlers{
		ConnectionUpdate: c.onConnectionUpdate,
		CredsUpdate:      c.onCredsUpdate,
		MessagesUpsert:   c.onMessagesUpsert,
		MessagesUpdate:   c.onMessagesUpdate,
	})

	if err := sock.Connect(ctx); err != nil {
		_ = sock.Close()
		return fmt.Errorf("failed to connect session %d: %w", c.sess.ID, err)
	}

	c.socket = sock
	return nil
}

// -----------------------------------------------------------------------------
// Event handlers
// -----------------------------------------------------------------------------

func (c *Controller) onConnectionUpdate(u wa.ConnectionUpdate) {
	ctx := context.Background()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return
	}

	if u.QRCode != "" {
		c.handleQRLocked(ctx, u.QRCode)
		return
	}

	switch u.State {
	case wa.StateOpen:
		c.handleOpenLocked(ctx, u)
	case wa.StateClose:
		c.handleCloseLocked(ctx, u)
	}
}

func (c *Controller) onCredsUpdate() {
	c.log.Debug("credentials updated")
}

func (c *Controller) onMessagesUpsert(msgs []wa.InboundMessage) {
	sess := c.Snapshot()
	c.deps.Intake.HandleUpsert(context.Background(), &sess, msgs)
}

func (c *Controller) onMessagesUpdate(acks []wa.MessageAck) {
	sess := c.Snapshot()
	c.deps.Intake.HandleAcks(context.Background(), &sess, acks)
}

// handleOpenLocked finalizes a successful handshake: CONNECTED is
// persisted with the resolved remote identity, the attempt counter is
// reset, QR timers are cancelled and the heartbeat schedule is armed.
func (c *Controller) handleOpenLocked(ctx context.Context, u wa.ConnectionUpdate) {
	c.attempts = 0
	c.sess.Retries = 0
	c.sess.QRCode = ""
	if u.RemoteID != "" {
		c.sess.Number = u.RemoteID
	}
	if c.qr != nil {
		c.qr.Cancel()
		c.qr = nil
	}

	c.setStateLocked(ctx, domain.StatusConnected)
	c.log.Info("session connected", "number", c.sess.Number)

	if c.hb != nil {
		c.hb.Stop()
	}
	c.hb = NewHeartbeat(c.cfg.Heartbeat, c.sendHeartbeat, c.heartbeatReady, c.onHeartbeatAlert, c.log)
	c.hb.Start()
}

// handleQRLocked records a generated QR code. When the tracker reports
// the retry budget exhausted no new expiration timer was armed; session
// state is wiped and the session reported DISCONNECTED.
func (c *Controller) handleQRLocked(ctx context.Context, code string) {
	if c.qr == nil {
		c.qr = NewQRTracker(c.cfg.QR, QRCallbacks{
			HasCreds:  c.hasCreds,
			OnExpired: c.onQRExpired,
			OnScanned: c.onQRScanned,
			OnUnscan:  c.onQRUnscanned,
		}, c.log)
	}

	metrics.QRGenerated.WithLabelValues(fmt.Sprint(c.sess.ID)).Inc()

	if c.qr.OnGenerated(code) {
		c.attempts = 0
		c.sess.Retries = 0
		c.sess.QRCode = ""
		c.blockLocked("QR retry limit reached")
		c.teardownSocketLocked()
		c.setStateLocked(ctx, domain.StatusDisconnected)
		c.publishAlertLocked(ctx, "qr_budget")
		return
	}

	c.sess.QRCode = code
	c.setStateLocked(ctx, domain.StatusQRCode)
}

// handleCloseLocked classifies the close and branches per category.
// Side-effect failures are logged and swallowed: the machine always
// reaches a well-defined state.
func (c *Controller) handleCloseLocked(ctx context.Context, u wa.ConnectionUpdate) {
	if c.hb != nil {
		c.hb.Stop()
		c.hb = nil
	}

	hasCreds := c.deps.Creds.HasCredentials(ctx, c.sess.ID)
	cat := Classify(u.StatusCode, u.Message, hasCreds)
	c.log.Info("connection closed",
		"code", u.StatusCode, "message", u.Message,
		"category", cat.String(), "has_creds", hasCreds)
	metrics.DisconnectsTotal.WithLabelValues(fmt.Sprint(c.sess.ID), cat.String()).Inc()

	switch cat {
	case CategoryNoCredsTerminate:
		c.wipeLocked(ctx)
		c.resetAttemptsLocked()
		c.blockLocked("no valid credentials")
		c.teardownSocketLocked()
		c.setStateLocked(ctx, domain.StatusDisconnected)
		c.publishAlertLocked(ctx, cat.String())

	case CategoryDeviceRemoved:
		c.wipeLocked(ctx)
		if err := c.deps.Ledger.Record(ctx, c.sess.Number, cat.String(), u.Message); err != nil {
			c.log.Error("failed to record phone error", "error", err)
		}
		c.resetAttemptsLocked()
		c.blockLocked("device removed")
		c.teardownSocketLocked()
		c.setStateLocked(ctx, domain.StatusDisconnected)
		c.publishAlertLocked(ctx, cat.String())

	case CategoryLoggedOut:
		c.wipeLocked(ctx)
		c.resetAttemptsLocked()
		c.blockLocked("logout")
		c.teardownSocketLocked()
		c.setStateLocked(ctx, domain.StatusDisconnected)
		c.publishAlertLocked(ctx, cat.String())

	case CategoryRestartRequired, CategoryConnectionLost:
		// Credentials stay valid; reconnect with the category's base
		// delay. No cap on this branch: the protocol asked for it.
		c.bumpAttemptLocked()
		c.setStateLocked(ctx, domain.StatusOpening)
		c.scheduleReconnectLocked(Delay(c.attempts, cat))

	default: // CategoryGenericTransient
		c.bumpAttemptLocked()
		if c.attempts >= c.cfg.MaxRetries {
			// Resource exhaustion: terminal, but credentials are
			// preserved since the remote side never invalidated them.
			c.blockLocked("max reconnection attempts reached")
			c.teardownSocketLocked()
			c.setStateLocked(ctx, domain.StatusDisconnected)
			c.publishAlertLocked(ctx, "max_retries")
			return
		}
		c.setStateLocked(ctx, domain.StatusOpening)
		c.scheduleReconnectLocked(Delay(c.attempts, cat))
	}
}

// -----------------------------------------------------------------------------
// QR callbacks (timer goroutines)
// -----------------------------------------------------------------------------

func (c *Controller) hasCreds() bool {
	return c.deps.Creds.HasCredentials(context.Background(), c.SessionID())
}

// onQRExpired fires when the expiration timer elapses while the session
// is still in QRCODE: the QR payload is cleared, auto-reconnect blocked
// and the session forced to DISCONNECTED.
func (c *Controller) onQRExpired() {
	ctx := context.Background()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed || c.sess.Status != domain.StatusQRCode {
		return
	}

	c.log.Warn("qr code expired unscanned")
	c.sess.QRCode = ""
	c.blockLocked("QR expired unscanned")
	c.teardownSocketLocked()
	c.setStateLocked(ctx, domain.StatusDisconnected)
	c.publishAlertLocked(ctx, "qr_expired")
}

func (c *Controller) onQRScanned() {
	ctx := context.Background()
	c.mu.Lock()
	tenant := c.sess.TenantID
	id := c.sess.ID
	c.mu.Unlock()

	if err := c.deps.Bus.Publish(ctx, notify.TenantChannel(tenant), notify.EventQRScanned, map[string]int64{"session_id": id}); err != nil {
		c.log.Error("failed to publish qr scanned event", "error", err)
	}
}

func (c *Controller) onQRUnscanned() {
	// The expiration timer owns the disconnect decision.
	c.log.Warn("qr scan not detected before poll ceiling")
}

// -----------------------------------------------------------------------------
// Heartbeat callbacks (timer goroutines)
// -----------------------------------------------------------------------------

func (c *Controller) sendHeartbeat(ctx context.Context) error {
	c.mu.Lock()
	sock := c.socket
	id := c.sess.ID
	c.mu.Unlock()

	if sock == nil {
		return ErrNoLiveSession
	}
	if err := sock.Presence(ctx); err != nil {
		metrics.HeartbeatsTotal.WithLabelValues(fmt.Sprint(id), "failure").Inc()
		return err
	}
	metrics.HeartbeatsTotal.WithLabelValues(fmt.Sprint(id), "success").Inc()
	return nil
}

func (c *Controller) heartbeatReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.destroyed && c.socket != nil && c.sess.Number != ""
}

func (c *Controller) onHeartbeatAlert(rate float64) {
	ctx := context.Background()
	c.mu.Lock()
	tenant := c.sess.TenantID
	id := c.sess.ID
	c.mu.Unlock()

	alert := notify.Alert{
		SessionID:   id,
		Category:    "heartbeat",
		Diagnosis:   fmt.Sprintf("heartbeat failure rate at %.0f%%, connection may be unstable", rate*100),
		Remediation: "check the phone's internet connection",
	}
	if err := c.deps.Bus.Publish(ctx, notify.TenantChannel(tenant), notify.EventSessionAlert, alert); err != nil {
		c.log.Error("failed to publish heartbeat alert", "error", err)
	}
}

// -----------------------------------------------------------------------------
// Reconnect scheduling
// -----------------------------------------------------------------------------

// bumpAttemptLocked increments the attempt counter, first resetting it
// when the last attempt is older than the cooldown.
func (c *Controller) bumpAttemptLocked() {
	if c.attempts > 0 && time.Since(c.lastAttempt) > c.cfg.AttemptCooldown {
		c.attempts = 0
	}
	c.attempts++
	c.lastAttempt = time.Now()
	c.sess.Retries = c.attempts
}

func (c *Controller) resetAttemptsLocked() {
	c.attempts = 0
	c.sess.Retries = 0
}

// scheduleReconnectLocked arms the reconnect timer. The close event has
// fully resolved by the time the callback runs: scheduling, not
// executing, happens at close-handling time.
func (c *Controller) scheduleReconnectLocked(d time.Duration) {
	if c.reconnect != nil {
		c.reconnect.Stop()
	}
	c.log.Info("reconnect scheduled", "delay", d, "attempt", c.attempts)
	metrics.ReconnectsScheduled.WithLabelValues(fmt.Sprint(c.sess.ID)).Inc()
	c.reconnect = c.afterFunc(d, c.reopen)
}

func (c *Controller) reopen() {
	ctx := context.Background()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed || c.sess.ReconnectBlocked {
		return
	}

	if c.socket != nil {
		_ = c.socket.Close()
		c.socket = nil
	}

	if err := c.openLocked(ctx); err != nil {
		c.log.Error("reconnect attempt failed", "error", err)
		// Feed the failure back through the close path so the attempt
		// cap and backoff apply.
		c.handleCloseLocked(ctx, wa.ConnectionUpdate{State: wa.StateClose, Message: err.Error()})
	}
}

// -----------------------------------------------------------------------------
// Side effects
// -----------------------------------------------------------------------------

// setStateLocked persists and broadcasts the current state. Failures
// are logged and swallowed so the state machine always completes its
// transition.
func (c *Controller) setStateLocked(ctx context.Context, status domain.SessionStatus) {
	c.sess.Status = status
	metrics.SetSessionState(fmt.Sprint(c.sess.ID), string(status))

	snap := storage.StatusSnapshot{
		Status:      c.sess.Status,
		QRCode:      c.sess.QRCode,
		Number:      c.sess.Number,
		Retries:     c.sess.Retries,
		Blocked:     c.sess.ReconnectBlocked,
		BlockReason: c.sess.BlockReason,
	}
	if err := c.deps.Store.SaveStatus(ctx, c.sess.ID, snap); err != nil {
		c.log.Error("failed to persist session status", "status", status, "error", err)
	}

	update := notify.SessionUpdate{
		SessionID: c.sess.ID,
		Status:    string(c.sess.Status),
		QRCode:    c.sess.QRCode,
		Number:    c.sess.Number,
		Retries:   c.sess.Retries,
	}
	if c.sess.QRCode != "" {
		if img, err := notify.EncodeQRPNG(c.sess.QRCode); err == nil {
			update.QRImage = img
		} else {
			c.log.Error("failed to render qr image", "error", err)
		}
	}
	if err := c.deps.Bus.Publish(ctx, notify.TenantChannel(c.sess.TenantID), notify.EventSessionUpdate, update); err != nil {
		c.log.Error("failed to publish session update", "error", err)
	}
}

func (c *Controller) publishAlertLocked(ctx context.Context, category string) {
	alert := notify.AlertFor(c.sess.ID, category)
	if err := c.deps.Bus.Publish(ctx, notify.TenantChannel(c.sess.TenantID), notify.EventSessionAlert, alert); err != nil {
		c.log.Error("failed to publish session alert", "error", err)
	}
}

// wipeLocked removes persisted credentials and on-disk session
// artifacts. Failures are logged and swallowed.
func (c *Controller) wipeLocked(ctx context.Context) {
	c.sess.QRCode = ""
	if err := c.deps.Creds.WipeCredentials(ctx, c.sess.ID); err != nil {
		c.log.Error("failed to wipe credentials", "error", err)
	}
	if err := c.deps.Creds.RemoveSessionDirectory(c.sess.ID); err != nil {
		c.log.Error("failed to remove session directory", "error", err)
	}
}

func (c *Controller) blockLocked(reason string) {
	c.sess.ReconnectBlocked = true
	c.sess.BlockReason = reason
	c.sess.BlockedAt = time.Now()
	c.log.Warn("auto-reconnect blocked", "reason", reason)
}

// teardownSocketLocked releases the socket and every per-session timer.
func (c *Controller) teardownSocketLocked() {
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	if c.qr != nil {
		c.qr.Cancel()
		c.qr = nil
	}
	if c.hb != nil {
		c.hb.Stop()
		c.hb = nil
	}
	if c.socket != nil {
		if err := c.socket.Close(); err != nil {
			c.log.Error("failed to close socket", "error", err)
		}
		c.socket = nil
	}
}

// -----------------------------------------------------------------------------
// External operations
// -----------------------------------------------------------------------------

// Stop tears the session down. With logout the pairing is invalidated
// on the remote side, credentials are wiped and auto-reconnect blocked;
// without it the socket is simply closed and DISCONNECTED persisted.
func (c *Controller) Stop(ctx context.Context, logout bool) {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.destroyed = true

	if logout {
		if c.socket != nil {
			if err := c.socket.Logout(ctx); err != nil {
				c.log.Error("failed to logout", "error", err)
			}
		}
		c.wipeLocked(ctx)
		c.resetAttemptsLocked()
		c.blockLocked("logout")
	}
	c.teardownSocketLocked()
	c.setStateLocked(ctx, domain.StatusDisconnected)
	c.mu.Unlock()

	if c.reg != nil {
		c.reg.Remove(c.sess.ID, c)
	}
}

// Destroy releases the controller without persisting a transition.
// Used when a new controller replaces this one for the same session.
func (c *Controller) Destroy(ctx context.Context) {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.destroyed = true
	c.teardownSocketLocked()
	c.mu.Unlock()

	if c.reg != nil {
		c.reg.Remove(c.sess.ID, c)
	}
}

// Block sets the auto-reconnect-blocked flag with a reason.
func (c *Controller) Block(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blockLocked(reason)
}

// ClearBlock clears the auto-reconnect-blocked flag.
func (c *Controller) ClearBlock() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sess.ReconnectBlocked = false
	c.sess.BlockReason = ""
	c.sess.BlockedAt = time.Time{}
}

// Blocked reports the auto-reconnect-blocked flag and its reason.
func (c *Controller) Blocked() (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.ReconnectBlocked, c.sess.BlockReason
}

// SessionID returns the owned session's id.
func (c *Controller) SessionID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.ID
}

// Connected reports whether the session is currently CONNECTED.
func (c *Controller) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.Status == domain.StatusConnected
}

// Attempts returns the reconnection attempt counter.
func (c *Controller) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Snapshot returns a copy of the owned session record.
func (c *Controller) Snapshot() domain.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.sess
}

// HeartbeatStats returns the attempt and failure counters of the
// current heartbeat window, or zeros when no heartbeat is running.
func (c *Controller) HeartbeatStats() (attempts, failures int) {
	c.mu.Lock()
	hb := c.hb
	c.mu.Unlock()
	if hb == nil {
		return 0, 0
	}
	return hb.Stats()
}

// Socket returns the live socket handle, or nil.
func (c *Controller) Socket() wa.Socket {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.socket
}
