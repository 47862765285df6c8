package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zapdesk/wabridge/internal/core/domain"
	"github.com/zapdesk/wabridge/internal/infra/storage"
	"github.com/zapdesk/wabridge/internal/notify"
	"github.com/zapdesk/wabridge/internal/wa"
)

// -----------------------------------------------------------------------------
// Fakes
// -----------------------------------------------------------------------------

type fakeSocket struct {
	mu         sync.Mutex
	h          wa.Handlers
	connectErr error
	closed     bool
	loggedOut  bool
	sentTo     []string
}

func (s *fakeSocket) Subscribe(h wa.Handlers) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.h = h
}

func (s *fakeSocket) Connect(ctx context.Context) error { return s.connectErr }

func (s *fakeSocket) SendText(ctx context.Context, to, body string) (string, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sentTo = append(s.sentTo, to)
	return "MSG1", []byte("raw-MSG1"), nil
}

func (s *fakeSocket) Presence(ctx context.Context) error { return nil }
func (s *fakeSocket) RemoteID() string                   { return "5511999999999" }

func (s *fakeSocket) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loggedOut = true
	return nil
}

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSocket) handlers() wa.Handlers {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.h
}

// emit delivers a connection update the way the protocol layer does:
// from a goroutine that is not holding any controller lock.
func (s *fakeSocket) emit(u wa.ConnectionUpdate) {
	s.handlers().ConnectionUpdate(u)
}

type fakeDialer struct {
	mu      sync.Mutex
	sockets []*fakeSocket
	dialErr error
}

func (d *fakeDialer) Dial(ctx context.Context, sess *domain.Session) (wa.Socket, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	sock := &fakeSocket{}
	d.sockets = append(d.sockets, sock)
	return sock, nil
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sockets)
}

func (d *fakeDialer) last() *fakeSocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sockets) == 0 {
		return nil
	}
	return d.sockets[len(d.sockets)-1]
}

type fakeCreds struct {
	mu        sync.Mutex
	has       bool
	wipes     int
	dirWipes  int
	wipeErr   error
}

func (c *fakeCreds) HasCredentials(ctx context.Context, sessionID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.has
}

func (c *fakeCreds) WipeCredentials(ctx context.Context, sessionID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wipes++
	c.has = false
	return c.wipeErr
}

func (c *fakeCreds) RemoveSessionDirectory(sessionID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirWipes++
	return nil
}

func (c *fakeCreds) wipeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wipes
}

type fakeStore struct {
	mu    sync.Mutex
	sess  *domain.Session
	snaps []storage.StatusSnapshot
}

func (s *fakeStore) Get(ctx context.Context, id int64) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return nil, storage.ErrSessionNotFound
	}
	cp := *s.sess
	return &cp, nil
}

func (s *fakeStore) List(ctx context.Context) ([]*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return nil, nil
	}
	cp := *s.sess
	return []*domain.Session{&cp}, nil
}

func (s *fakeStore) SaveStatus(ctx context.Context, id int64, snap storage.StatusSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, snap)
	return nil
}

func (s *fakeStore) lastSnap() storage.StatusSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.snaps) == 0 {
		return storage.StatusSnapshot{}
	}
	return s.snaps[len(s.snaps)-1]
}

type busEvent struct {
	channel string
	event   string
	payload any
}

type fakeBus struct {
	mu     sync.Mutex
	events []busEvent
}

func (b *fakeBus) Publish(ctx context.Context, channel, event string, payload any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, busEvent{channel, event, payload})
	return nil
}

func (b *fakeBus) alerts() []notify.Alert {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []notify.Alert
	for _, e := range b.events {
		if a, ok := e.payload.(notify.Alert); ok {
			out = append(out, a)
		}
	}
	return out
}

type fakeIntake struct {
	mu       sync.Mutex
	upserts  int
	acks     int
	outbound []string
}

func (f *fakeIntake) HandleUpsert(ctx context.Context, sess *domain.Session, msgs []wa.InboundMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts += len(msgs)
}

func (f *fakeIntake) HandleAcks(ctx context.Context, sess *domain.Session, acks []wa.MessageAck) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks += len(acks)
}

func (f *fakeIntake) RecordOutbound(ctx context.Context, sess *domain.Session, protocolID, to, body string, raw []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outbound = append(f.outbound, protocolID)
	return nil
}

func (f *fakeIntake) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.outbound))
	copy(out, f.outbound)
	return out
}

// manualClock intercepts reconnect scheduling so tests control time.
type manualClock struct {
	mu    sync.Mutex
	fires []scheduledFire
}

type scheduledFire struct {
	delay time.Duration
	fn    func()
}

type noopStopper struct{}

func (noopStopper) Stop() bool { return true }

func (m *manualClock) afterFunc(d time.Duration, f func()) stopper {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fires = append(m.fires, scheduledFire{d, f})
	return noopStopper{}
}

func (m *manualClock) scheduled() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Duration, len(m.fires))
	for i, f := range m.fires {
		out[i] = f.delay
	}
	return out
}

func (m *manualClock) fireLast() {
	m.mu.Lock()
	fn := m.fires[len(m.fires)-1].fn
	m.mu.Unlock()
	fn()
}

// -----------------------------------------------------------------------------
// Harness
// -----------------------------------------------------------------------------

type harness struct {
	ctrl   *Controller
	dialer *fakeDialer
	creds  *fakeCreds
	store  *fakeStore
	bus    *fakeBus
	clock  *manualClock
	intake *fakeIntake
	ledger *MemoryLedger
}

func newHarness(t *testing.T, cfg Config, hasCreds bool) *harness {
	t.Helper()

	sess := &domain.Session{ID: 7, TenantID: 3, Name: "support", Status: domain.StatusDisconnected}
	h := &harness{
		dialer: &fakeDialer{},
		creds:  &fakeCreds{has: hasCreds},
		store:  &fakeStore{sess: sess},
		bus:    &fakeBus{},
		clock:  &manualClock{},
		intake: &fakeIntake{},
		ledger: NewMemoryLedger(),
	}
	h.ctrl = NewController(cfg, Deps{
		Dialer: h.dialer,
		Creds:  h.creds,
		Store:  h.store,
		Bus:    h.bus,
		Ledger: h.ledger,
		Intake: h.intake,
	}, nil, sess)
	h.ctrl.afterFunc = h.clock.afterFunc

	t.Cleanup(func() { h.ctrl.Destroy(context.Background()) })
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
}

// -----------------------------------------------------------------------------
// Tests
// -----------------------------------------------------------------------------

func TestControllerStartToConnected(t *testing.T) {
	h := newHarness(t, DefaultConfig(), false)
	h.start(t)

	if got := h.ctrl.Snapshot().Status; got != domain.StatusOpening {
		t.Fatalf("expected OPENING after start, got %s", got)
	}

	h.dialer.last().emit(wa.ConnectionUpdate{State: wa.StateOpen, RemoteID: "5511999999999"})

	snap := h.ctrl.Snapshot()
	if snap.Status != domain.StatusConnected {
		t.Errorf("expected CONNECTED, got %s", snap.Status)
	}
	if snap.Number != "5511999999999" {
		t.Errorf("expected resolved number persisted, got %q", snap.Number)
	}
	if snap.Retries != 0 || h.ctrl.Attempts() != 0 {
		t.Errorf("expected attempts reset on open")
	}
	if got := h.store.lastSnap().Status; got != domain.StatusConnected {
		t.Errorf("expected CONNECTED persisted, got %s", got)
	}
}

func TestControllerQRFlow(t *testing.T) {
	h := newHarness(t, DefaultConfig(), false)
	h.start(t)

	h.dialer.last().emit(wa.ConnectionUpdate{State: wa.StateConnecting, QRCode: "qr-payload-1"})

	snap := h.ctrl.Snapshot()
	if snap.Status != domain.StatusQRCode {
		t.Fatalf("expected QRCODE, got %s", snap.Status)
	}
	if snap.QRCode != "qr-payload-1" {
		t.Errorf("expected QR payload stored, got %q", snap.QRCode)
	}

	// Scan completes: the open event clears the QR payload.
	h.dialer.last().emit(wa.ConnectionUpdate{State: wa.StateOpen, RemoteID: "5511999999999"})
	if snap := h.ctrl.Snapshot(); snap.QRCode != "" {
		t.Errorf("expected QR payload cleared on open, got %q", snap.QRCode)
	}
}

func TestControllerQRBudgetExhausted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QR.MaxGenerations = 2
	h := newHarness(t, cfg, false)
	h.start(t)

	sock := h.dialer.last()
	sock.emit(wa.ConnectionUpdate{State: wa.StateConnecting, QRCode: "qr-1"})
	sock.emit(wa.ConnectionUpdate{State: wa.StateConnecting, QRCode: "qr-2"})

	if got := h.ctrl.Snapshot().Status; got != domain.StatusQRCode {
		t.Fatalf("expected QRCODE within budget, got %s", got)
	}

	// Third generation exceeds the budget of 2.
	sock.emit(wa.ConnectionUpdate{State: wa.StateConnecting, QRCode: "qr-3"})

	snap := h.ctrl.Snapshot()
	if snap.Status != domain.StatusDisconnected {
		t.Errorf("expected DISCONNECTED after budget, got %s", snap.Status)
	}
	if !snap.ReconnectBlocked {
		t.Errorf("expected auto-reconnect blocked")
	}
	if snap.QRCode != "" {
		t.Errorf("expected QR payload wiped, got %q", snap.QRCode)
	}
	if !sock.closed {
		t.Errorf("expected socket torn down")
	}

	alerts := h.bus.alerts()
	if len(alerts) == 0 || alerts[len(alerts)-1].Category != "qr_budget" {
		t.Errorf("expected qr_budget alert, got %+v", alerts)
	}
}

func TestControllerRestartRequired(t *testing.T) {
	h := newHarness(t, DefaultConfig(), true)
	h.start(t)

	h.dialer.last().emit(wa.ConnectionUpdate{State: wa.StateClose, StatusCode: wa.CodeRestartRequired, Message: "stream error 515"})

	if got := h.ctrl.Snapshot().Status; got != domain.StatusOpening {
		t.Fatalf("expected OPENING during reconnect, got %s", got)
	}
	if h.creds.wipeCount() != 0 {
		t.Errorf("credentials must survive a restart close")
	}

	delays := h.clock.scheduled()
	if len(delays) != 1 || delays[0] != 2*time.Second {
		t.Fatalf("expected one reconnect at 2s, got %v", delays)
	}

	h.clock.fireLast()
	if got := h.dialer.dials(); got != 2 {
		t.Errorf("expected a second dial after the timer, got %d", got)
	}
}

func TestControllerConnectionLostBase(t *testing.T) {
	h := newHarness(t, DefaultConfig(), true)
	h.start(t)

	h.dialer.last().emit(wa.ConnectionUpdate{State: wa.StateClose, StatusCode: wa.CodeTerminated, Message: "terminated"})

	delays := h.clock.scheduled()
	if len(delays) != 1 || delays[0] != 10*time.Second {
		t.Fatalf("expected reconnect at 10s for connection lost, got %v", delays)
	}
	if h.creds.wipeCount() != 0 {
		t.Errorf("credentials must survive a 428 with valid credentials")
	}
}

func TestControllerNoCredsTerminate(t *testing.T) {
	h := newHarness(t, DefaultConfig(), false)
	h.start(t)

	sock := h.dialer.last()
	sock.emit(wa.ConnectionUpdate{State: wa.StateClose, StatusCode: wa.CodeTerminated, Message: "terminated"})

	snap := h.ctrl.Snapshot()
	if snap.Status != domain.StatusDisconnected {
		t.Errorf("expected terminal DISCONNECTED, got %s", snap.Status)
	}
	if !snap.ReconnectBlocked || snap.BlockReason != "no valid credentials" {
		t.Errorf("expected block with no-credentials reason, got %q", snap.BlockReason)
	}
	if h.creds.wipeCount() != 1 {
		t.Errorf("expected credentials wiped once, got %d", h.creds.wipeCount())
	}
	if len(h.clock.scheduled()) != 0 {
		t.Errorf("no reconnect may be scheduled on a terminal close")
	}
}

func TestControllerDeviceRemoved(t *testing.T) {
	h := newHarness(t, DefaultConfig(), true)
	h.start(t)
	h.dialer.last().emit(wa.ConnectionUpdate{State: wa.StateOpen, RemoteID: "5511999999999"})

	h.dialer.last().emit(wa.ConnectionUpdate{State: wa.StateClose, StatusCode: wa.CodeUnauthorized, Message: "device removed"})

	snap := h.ctrl.Snapshot()
	if snap.Status != domain.StatusDisconnected {
		t.Errorf("expected DISCONNECTED, got %s", snap.Status)
	}
	if !snap.ReconnectBlocked || snap.BlockReason != "device removed" {
		t.Errorf("expected device-removed block, got %q", snap.BlockReason)
	}
	if h.creds.wipeCount() != 1 {
		t.Errorf("expected credentials wiped")
	}
	if len(h.clock.scheduled()) != 0 {
		t.Errorf("no reconnect may be scheduled after device removal")
	}

	// The phone's error ledger records the removal.
	entries, count, err := h.ledger.Recent(context.Background(), "5511999999999")
	if err != nil || count != 1 || len(entries) != 1 {
		t.Fatalf("expected one ledger entry, got %d (count %d, err %v)", len(entries), count, err)
	}
	if entries[0].Type != "device_removed" {
		t.Errorf("expected device_removed entry, got %q", entries[0].Type)
	}

	alerts := h.bus.alerts()
	if len(alerts) == 0 {
		t.Fatal("expected a device-removed alert")
	}
	last := alerts[len(alerts)-1]
	if last.Category != "device_removed" || !last.Critical {
		t.Errorf("expected critical device_removed alert, got %+v", last)
	}
}

func TestControllerGenericBackoffAndCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRetries = 3
	h := newHarness(t, cfg, true)
	h.start(t)

	sock := h.dialer.last()
	sock.emit(wa.ConnectionUpdate{State: wa.StateClose, Message: "connection reset"})
	sock.emit(wa.ConnectionUpdate{State: wa.StateClose, Message: "connection reset"})

	delays := h.clock.scheduled()
	want := []time.Duration{5 * time.Second, 10 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("expected %d scheduled reconnects, got %v", len(want), delays)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("attempt %d: expected delay %v, got %v", i+1, want[i], delays[i])
		}
	}

	// Third failure hits the cap.
	sock.emit(wa.ConnectionUpdate{State: wa.StateClose, Message: "connection reset"})

	snap := h.ctrl.Snapshot()
	if snap.Status != domain.StatusDisconnected {
		t.Errorf("expected terminal DISCONNECTED at cap, got %s", snap.Status)
	}
	if !snap.ReconnectBlocked || snap.BlockReason != "max reconnection attempts reached" {
		t.Errorf("expected max-retries block, got %q", snap.BlockReason)
	}
	if h.creds.wipeCount() != 0 {
		t.Errorf("resource exhaustion must preserve credentials")
	}
	if len(h.clock.scheduled()) != 2 {
		t.Errorf("no reconnect may be scheduled at the cap")
	}

	alerts := h.bus.alerts()
	if len(alerts) == 0 || alerts[len(alerts)-1].Category != "max_retries" {
		t.Errorf("expected max_retries alert, got %+v", alerts)
	}
}

func TestControllerAttemptCooldownReset(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AttemptCooldown = 10 * time.Millisecond
	h := newHarness(t, cfg, true)
	h.start(t)

	sock := h.dialer.last()
	sock.emit(wa.ConnectionUpdate{State: wa.StateClose, Message: "reset"})
	if h.ctrl.Attempts() != 1 {
		t.Fatalf("expected first attempt counted, got %d", h.ctrl.Attempts())
	}

	// A close long after the previous attempt starts counting from 1
	// again instead of accumulating toward the cap.
	time.Sleep(30 * time.Millisecond)
	sock.emit(wa.ConnectionUpdate{State: wa.StateClose, Message: "reset"})

	if h.ctrl.Attempts() != 1 {
		t.Errorf("expected counter reset after cooldown, got %d", h.ctrl.Attempts())
	}
	delays := h.clock.scheduled()
	if len(delays) != 2 || delays[1] != 5*time.Second {
		t.Errorf("expected second reconnect at the first-attempt delay, got %v", delays)
	}
}

func TestControllerOpenResetsAttempts(t *testing.T) {
	h := newHarness(t, DefaultConfig(), true)
	h.start(t)

	sock := h.dialer.last()
	sock.emit(wa.ConnectionUpdate{State: wa.StateClose, Message: "reset"})
	if h.ctrl.Attempts() != 1 {
		t.Fatalf("expected attempt counted, got %d", h.ctrl.Attempts())
	}

	sock.emit(wa.ConnectionUpdate{State: wa.StateOpen, RemoteID: "5511999999999"})
	if h.ctrl.Attempts() != 0 {
		t.Errorf("expected attempts reset on open, got %d", h.ctrl.Attempts())
	}
}

func TestControllerLoggedOutClose(t *testing.T) {
	h := newHarness(t, DefaultConfig(), true)
	h.start(t)

	h.dialer.last().emit(wa.ConnectionUpdate{State: wa.StateClose, StatusCode: wa.CodeLoggedOut})

	snap := h.ctrl.Snapshot()
	if !snap.ReconnectBlocked || snap.BlockReason != "logout" {
		t.Errorf("expected logout block, got %q", snap.BlockReason)
	}
	if h.creds.wipeCount() != 1 {
		t.Errorf("expected credentials wiped on logout")
	}
	if len(h.clock.scheduled()) != 0 {
		t.Errorf("logout must never auto-retry")
	}
}

func TestControllerFailedReopenBacksOff(t *testing.T) {
	h := newHarness(t, DefaultConfig(), true)
	h.start(t)

	h.dialer.last().emit(wa.ConnectionUpdate{State: wa.StateClose, Message: "reset"})
	if got := len(h.clock.scheduled()); got != 1 {
		t.Fatalf("expected one scheduled reconnect, got %d", got)
	}

	// The reopen itself fails; the failure feeds back through the close
	// path and schedules the next attempt.
	h.dialer.mu.Lock()
	h.dialer.dialErr = errors.New("dial refused")
	h.dialer.mu.Unlock()

	h.clock.fireLast()

	delays := h.clock.scheduled()
	if len(delays) != 2 {
		t.Fatalf("expected a second scheduled reconnect, got %v", delays)
	}
	if delays[1] != 10*time.Second {
		t.Errorf("expected second attempt at 10s, got %v", delays[1])
	}
	if h.ctrl.Attempts() != 2 {
		t.Errorf("expected attempt counter at 2, got %d", h.ctrl.Attempts())
	}
}

func TestControllerStopWithLogout(t *testing.T) {
	h := newHarness(t, DefaultConfig(), true)
	h.start(t)
	sock := h.dialer.last()

	h.ctrl.Stop(context.Background(), true)

	if !sock.loggedOut {
		t.Errorf("expected remote logout issued")
	}
	if !sock.closed {
		t.Errorf("expected socket closed")
	}
	if h.creds.wipeCount() != 1 {
		t.Errorf("expected credentials wiped")
	}
	snap := h.ctrl.Snapshot()
	if snap.Status != domain.StatusDisconnected || !snap.ReconnectBlocked {
		t.Errorf("expected blocked DISCONNECTED after logout stop, got %+v", snap)
	}
}

func TestControllerStopWithoutLogout(t *testing.T) {
	h := newHarness(t, DefaultConfig(), true)
	h.start(t)
	sock := h.dialer.last()

	h.ctrl.Stop(context.Background(), false)

	if sock.loggedOut {
		t.Errorf("plain stop must not log out")
	}
	if h.creds.wipeCount() != 0 {
		t.Errorf("plain stop must preserve credentials")
	}
	if got := h.ctrl.Snapshot().Status; got != domain.StatusDisconnected {
		t.Errorf("expected DISCONNECTED, got %s", got)
	}
}

func TestControllerIntakeForwarding(t *testing.T) {
	h := newHarness(t, DefaultConfig(), true)
	h.start(t)
	sock := h.dialer.last()
	sock.emit(wa.ConnectionUpdate{State: wa.StateOpen, RemoteID: "5511999999999"})

	sock.handlers().MessagesUpsert([]wa.InboundMessage{{ProtocolID: "A"}, {ProtocolID: "B"}})
	sock.handlers().MessagesUpdate([]wa.MessageAck{{ProtocolID: "A", Ack: 2}})

	h.intake.mu.Lock()
	defer h.intake.mu.Unlock()
	if h.intake.upserts != 2 || h.intake.acks != 1 {
		t.Errorf("expected 2 upserts and 1 ack forwarded, got %d/%d", h.intake.upserts, h.intake.acks)
	}
}

func TestManagerReplaceOnStart(t *testing.T) {
	store := &fakeStore{sess: &domain.Session{ID: 7, TenantID: 3, Status: domain.StatusDisconnected}}
	dialer := &fakeDialer{}
	reg := NewRegistry()
	m := NewManager(DefaultConfig(), Deps{
		Dialer: dialer,
		Creds:  &fakeCreds{},
		Store:  store,
		Bus:    &fakeBus{},
		Ledger: NewMemoryLedger(),
		Intake: &fakeIntake{},
	}, reg)

	ctx := context.Background()
	if err := m.StartSession(ctx, 7); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	first := dialer.last()

	if err := m.StartSession(ctx, 7); err != nil {
		t.Fatalf("second start failed: %v", err)
	}
	if !first.closed {
		t.Errorf("expected displaced controller's socket closed")
	}
	if dialer.dials() != 2 {
		t.Errorf("expected 2 dials, got %d", dialer.dials())
	}

	c, err := m.GetLiveSession(7)
	if err != nil {
		t.Fatalf("expected live session: %v", err)
	}
	defer c.Destroy(ctx)
	if c.Socket() == first {
		t.Errorf("registry still holds the displaced controller")
	}
}

func TestManagerSendText(t *testing.T) {
	store := &fakeStore{sess: &domain.Session{ID: 7, TenantID: 3}}
	dialer := &fakeDialer{}
	sink := &fakeIntake{}
	reg := NewRegistry()
	m := NewManager(DefaultConfig(), Deps{
		Dialer: dialer,
		Creds:  &fakeCreds{},
		Store:  store,
		Bus:    &fakeBus{},
		Ledger: NewMemoryLedger(),
		Intake: sink,
	}, reg)

	ctx := context.Background()
	if _, err := m.SendText(ctx, 7, "5511888888888", "hello"); !errors.Is(err, ErrNoLiveSession) {
		t.Fatalf("expected ErrNoLiveSession before start, got %v", err)
	}

	if err := m.StartSession(ctx, 7); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer m.StopAll(ctx)

	id, err := m.SendText(ctx, 7, "5511888888888", "hello")
	if err != nil {
		t.Fatalf("SendText failed: %v", err)
	}
	if id != "MSG1" {
		t.Errorf("expected protocol id MSG1, got %q", id)
	}

	// The sent message is handed to the intake sink for storage and
	// payload caching.
	if got := sink.recorded(); len(got) != 1 || got[0] != "MSG1" {
		t.Errorf("expected outbound record for MSG1, got %v", got)
	}
}

func TestManagerConnectedGate(t *testing.T) {
	store := &fakeStore{sess: &domain.Session{ID: 7, TenantID: 3, Status: domain.StatusDisconnected}}
	dialer := &fakeDialer{}
	reg := NewRegistry()
	m := NewManager(DefaultConfig(), Deps{
		Dialer: dialer,
		Creds:  &fakeCreds{},
		Store:  store,
		Bus:    &fakeBus{},
		Ledger: NewMemoryLedger(),
		Intake: &fakeIntake{},
	}, reg)

	ctx := context.Background()
	if m.Connected(7) {
		t.Fatal("session with no live controller must not report connected")
	}

	if err := m.StartSession(ctx, 7); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer m.StopAll(ctx)

	if m.Connected(7) {
		t.Errorf("OPENING session must not report connected")
	}

	dialer.last().emit(wa.ConnectionUpdate{State: wa.StateOpen, RemoteID: "5511999999999"})
	if !m.Connected(7) {
		t.Errorf("expected connected after open")
	}
}
