package health

import (
	"context"
	"sync"
	"time"

	"github.com/zapdesk/wabridge/internal/core/domain"
	"github.com/zapdesk/wabridge/internal/session"
)

// Monitor aggregates health status from the live session registry and
// the per-number error ledger.
type Monitor struct {
	registry   *session.Registry
	ledger     session.ErrorLedger
	lastCheck  time.Time
	lastReport map[int64]SessionHealth
	mu         sync.Mutex
}

// NewMonitor creates a new health monitor.
func NewMonitor(registry *session.Registry, ledger session.ErrorLedger) *Monitor {
	return &Monitor{
		registry:   registry,
		ledger:     ledger,
		lastReport: make(map[int64]SessionHealth),
	}
}

// CheckHealth performs a health check for all live sessions.
func (m *Monitor) CheckHealth(ctx context.Context) map[int64]SessionHealth {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Rate limit checks to avoid hammering the ledger backend.
	if time.Since(m.lastCheck) < 10*time.Second && len(m.lastReport) > 0 {
		return m.lastReport
	}

	report := make(map[int64]SessionHealth)
	for _, ctrl := range m.registry.All() {
		snap := ctrl.Snapshot()
		attempts, failures := ctrl.HeartbeatStats()

		h := SessionHealth{
			SessionID:         snap.ID,
			Number:            snap.Number,
			State:             string(snap.Status),
			Status:            StatusHealthy,
			ReconnectAttempts: ctrl.Attempts(),
			Blocked:           snap.ReconnectBlocked,
			BlockReason:       snap.BlockReason,
			HeartbeatAttempts: attempts,
			HeartbeatFailures: failures,
		}

		if m.ledger != nil && snap.Number != "" {
			if _, count, err := m.ledger.Recent(ctx, snap.Number); err == nil {
				h.RecentErrors = count
			}
		}

		switch {
		case snap.ReconnectBlocked:
			h.Status = StatusCritical
		case snap.Status != domain.StatusConnected:
			h.Status = StatusDegraded
		case attempts >= 3 && failures*2 > attempts:
			h.Status = StatusDegraded
		}

		report[snap.ID] = h
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}
