package session

import (
	"math"
	"time"
)

// MaxReconnectDelay bounds operator-visible downtime regardless of how
// many attempts have failed.
const MaxReconnectDelay = 60 * time.Second

// Base reconnect delays by category. 428-with-credentials keeps its own
// more conservative base; 515 restarts are expected right after pairing
// and reconnect fast.
const (
	baseDelayRestart  = 2 * time.Second
	baseDelayConnLost = 10 * time.Second
	baseDelayDefault  = 5 * time.Second
)

// Delay computes the reconnect delay for the given attempt number
// (1-based) and category: min(base * 2^(attempt-1), 60s), rounded to
// the millisecond. Deterministic, no jitter.
func Delay(attempt int, cat Category) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	base := baseDelayDefault
	switch cat {
	case CategoryRestartRequired:
		base = baseDelayRestart
	case CategoryConnectionLost:
		base = baseDelayConnLost
	}

	d := float64(base) * math.Pow(2, float64(attempt-1))
	if d > float64(MaxReconnectDelay) {
		return MaxReconnectDelay
	}
	return time.Duration(d).Round(time.Millisecond)
}
