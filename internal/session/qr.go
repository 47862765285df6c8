package session

import (
	"log/slog"
	"sync"
	"time"
)

// QRConfig holds the timing knobs of the QR pairing ritual.
type QRConfig struct {
	// Expiry is how long one displayed QR code stays valid before the
	// tracker forces the session out of QRCODE.
	Expiry time.Duration `yaml:"expiry"`
	// PollInterval is how often the scan-detection poll checks for
	// credentials becoming populated.
	PollInterval time.Duration `yaml:"poll_interval"`
	// PollCeiling is when the scan poll gives up. Giving up emits a
	// warning only; the expiration timer owns the disconnect decision.
	PollCeiling time.Duration `yaml:"poll_ceiling"`
	// MaxGenerations is the QR retry budget per session.
	MaxGenerations int `yaml:"max_generations"`
}

// DefaultQRConfig returns the production QR timings.
func DefaultQRConfig() QRConfig {
	return QRConfig{
		Expiry:         70 * time.Second,
		PollInterval:   5 * time.Second,
		PollCeiling:    90 * time.Second,
		MaxGenerations: 3,
	}
}

// QRCallbacks are invoked by the tracker from timer goroutines. The
// expiry callback owns the session-side consequences; scanned and
// unscanned are diagnostics.
type QRCallbacks struct {
	HasCreds  func() bool
	OnExpired func()
	OnScanned func()
	OnUnscan  func()
}

// QRTracker owns the per-session QR generation count, the single live
// expiration timer and the scan-detection poll. At most one expiration
// timer is armed at a time: each new QR cancels the prior one.
type QRTracker struct {
	mu  sync.Mutex
	cfg QRConfig
	cb  QRCallbacks
	log *slog.Logger

	generations int
	firstAt     time.Time
	expireTimer *time.Timer
	pollStop    chan struct{}
	cancelled   bool
}

// NewQRTracker creates a tracker for one session.
func NewQRTracker(cfg QRConfig, cb QRCallbacks, log *slog.Logger) *QRTracker {
	if log == nil {
		log = slog.Default()
	}
	return &QRTracker{cfg: cfg, cb: cb, log: log}
}

// Generations returns the number of QR codes generated so far.
func (t *QRTracker) Generations() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.generations
}

// OnGenerated records a freshly generated QR code. It returns true when
// the retry budget is exhausted: no new expiration timer was armed and
// the caller must wipe session state and report DISCONNECTED.
func (t *QRTracker) OnGenerated(payload string) (exhausted bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancelled {
		return false
	}

	t.generations++
	if t.generations == 1 {
		t.firstAt = time.Now()
		t.log.Info("qr pairing started, waiting for scan")
		t.startScanPollLocked()
	}

	if t.expireTimer != nil {
		t.expireTimer.Stop()
		t.expireTimer = nil
	}

	if t.generations > t.cfg.MaxGenerations {
		t.log.Warn("qr retry budget exhausted", "generations", t.generations)
		t.stopPollLocked()
		return true
	}

	t.expireTimer = time.AfterFunc(t.cfg.Expiry, func() {
		t.mu.Lock()
		dead := t.cancelled
		t.mu.Unlock()
		if dead {
			return
		}
		if t.cb.OnExpired != nil {
			t.cb.OnExpired()
		}
	})
	return false
}

// startScanPollLocked launches the scan-detection poll. It watches for
// credentials becoming populated and cancels itself on detection or at
// the ceiling.
func (t *QRTracker) startScanPollLocked() {
	stop := make(chan struct{})
	t.pollStop = stop
	deadline := time.Now().Add(t.cfg.PollCeiling)

	go func() {
		ticker := time.NewTicker(t.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if t.cb.HasCreds != nil && t.cb.HasCreds() {
					t.log.Info("qr code scanned, credentials detected")
					if t.cb.OnScanned != nil {
						t.cb.OnScanned()
					}
					return
				}
				if time.Now().After(deadline) {
					t.log.Warn("qr code not scanned within ceiling")
					if t.cb.OnUnscan != nil {
						t.cb.OnUnscan()
					}
					return
				}
			}
		}
	}()
}

func (t *QRTracker) stopPollLocked() {
	if t.pollStop != nil {
		close(t.pollStop)
		t.pollStop = nil
	}
}

// Cancel stops all timers unconditionally. Called on CONNECTED and on
// session removal; safe to call repeatedly.
func (t *QRTracker) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cancelled = true
	if t.expireTimer != nil {
		t.expireTimer.Stop()
		t.expireTimer = nil
	}
	t.stopPollLocked()
}
