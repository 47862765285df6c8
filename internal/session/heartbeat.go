package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// HeartbeatConfig holds the liveness signal schedule, anchored to the
// moment the connection opened. The remote network silently drops idle
// connections after roughly 60 seconds; the first/safety pair plus the
// repeating interval guarantee at least one signal lands inside every
// 60-second window even if a single attempt fails.
type HeartbeatConfig struct {
	FirstDelay  time.Duration `yaml:"first_delay"`
	Interval    time.Duration `yaml:"interval"`
	SafetyDelay time.Duration `yaml:"safety_delay"`
	SendTimeout time.Duration `yaml:"send_timeout"`
}

// DefaultHeartbeatConfig returns the production schedule.
func DefaultHeartbeatConfig() HeartbeatConfig {
	return HeartbeatConfig{
		FirstDelay:  25 * time.Second,
		Interval:    20 * time.Second,
		SafetyDelay: 50 * time.Second,
		SendTimeout: 10 * time.Second,
	}
}

// Heartbeat issues periodic liveness signals on an open connection.
// A single failed signal is not evidence of a dead connection, so
// failures are counted rather than cancelling the schedule; a failure
// rate above 50% over at least 3 attempts raises a diagnostic alert. A
// failed precondition check (socket gone, remote identity unresolved)
// cancels the schedule instead of retrying indefinitely.
type Heartbeat struct {
	mu  sync.Mutex
	cfg HeartbeatConfig
	log *slog.Logger

	ping    func(ctx context.Context) error
	ready   func() bool
	onAlert func(failureRate float64)

	firstTimer  *time.Timer
	safetyTimer *time.Timer
	stopTick    chan struct{}
	stopped     bool

	attempts int
	failures int
	alerted  bool
}

// NewHeartbeat creates a monitor for one open connection. ping issues
// the liveness signal; ready is the precondition check; onAlert may be
// nil.
func NewHeartbeat(cfg HeartbeatConfig, ping func(ctx context.Context) error, ready func() bool, onAlert func(float64), log *slog.Logger) *Heartbeat {
	if log == nil {
		log = slog.Default()
	}
	return &Heartbeat{cfg: cfg, ping: ping, ready: ready, onAlert: onAlert, log: log}
}

// Start arms the schedule: one signal at FirstDelay, the repeating
// interval after that, and one extra safety signal at SafetyDelay.
func (h *Heartbeat) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped || h.firstTimer != nil {
		return
	}

	h.firstTimer = time.AfterFunc(h.cfg.FirstDelay, func() {
		h.beat()
		h.startTicker()
	})
	h.safetyTimer = time.AfterFunc(h.cfg.SafetyDelay, h.beat)
}

func (h *Heartbeat) startTicker() {
	h.mu.Lock()
	if h.stopped || h.stopTick != nil {
		h.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	h.stopTick = stop
	h.mu.Unlock()

	go func() {
		ticker := time.NewTicker(h.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				h.beat()
			}
		}
	}()
}

func (h *Heartbeat) beat() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()

	if h.ready != nil && !h.ready() {
		h.log.Debug("heartbeat precondition failed, cancelling schedule")
		h.Stop()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.SendTimeout)
	err := h.ping(ctx)
	cancel()

	h.mu.Lock()
	h.attempts++
	if err != nil {
		h.failures++
		h.log.Debug("heartbeat failed", "error", err, "failures", h.failures, "attempts", h.attempts)
	}
	rate := float64(h.failures) / float64(h.attempts)
	alert := h.attempts >= 3 && rate > 0.5 && !h.alerted
	if alert {
		h.alerted = true
	}
	onAlert := h.onAlert
	h.mu.Unlock()

	if alert {
		h.log.Warn("heartbeat failure rate above threshold", "rate", rate)
		if onAlert != nil {
			onAlert(rate)
		}
	}
}

// Stats returns the attempt and failure counts so far.
func (h *Heartbeat) Stats() (attempts, failures int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attempts, h.failures
}

// Stop cancels all timers unconditionally. Called when the connection
// closes; safe to call repeatedly.
func (h *Heartbeat) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	h.stopped = true
	if h.firstTimer != nil {
		h.firstTimer.Stop()
	}
	if h.safetyTimer != nil {
		h.safetyTimer.Stop()
	}
	if h.stopTick != nil {
		close(h.stopTick)
		h.stopTick = nil
	}
}
