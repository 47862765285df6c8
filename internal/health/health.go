// Package health provides system health monitoring and status reporting.
package health

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// SessionHealth contains health metrics for a single live session.
type SessionHealth struct {
	SessionID         int64        `json:"session_id"`
	Number            string       `json:"number"`
	State             string       `json:"state"`
	Status            SystemStatus `json:"status"`
	ReconnectAttempts int          `json:"reconnect_attempts"`
	Blocked           bool         `json:"blocked"`
	BlockReason       string       `json:"block_reason,omitempty"`
	HeartbeatAttempts int          `json:"heartbeat_attempts"`
	HeartbeatFailures int          `json:"heartbeat_failures"`
	RecentErrors      int64        `json:"recent_errors"`
}
