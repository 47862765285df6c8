package session

import (
	"context"
	"sync"
	"time"
)

// ledgerDepth is how many recent errors are retained per phone number.
const ledgerDepth = 10

// ErrorEntry is one recorded connection error for a phone number.
type ErrorEntry struct {
	Type    string    `json:"type"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// ErrorLedger keeps a bounded ring of recent errors plus a running
// count per remote phone number. Diagnostics only: control flow never
// consults it.
type ErrorLedger interface {
	Record(ctx context.Context, number, errType, message string) error
	Recent(ctx context.Context, number string) ([]ErrorEntry, int64, error)
}

// MemoryLedger is an in-process ErrorLedger. Entries are created lazily
// on first error for a number and never deleted.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[string][]ErrorEntry
	counts  map[string]int64
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		entries: make(map[string][]ErrorEntry),
		counts:  make(map[string]int64),
	}
}

// Record appends an error for the number, trimming to the last 10.
func (l *MemoryLedger) Record(ctx context.Context, number, errType, message string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ring := append(l.entries[number], ErrorEntry{Type: errType, Message: message, At: time.Now()})
	if len(ring) > ledgerDepth {
		ring = ring[len(ring)-ledgerDepth:]
	}
	l.entries[number] = ring
	l.counts[number]++
	return nil
}

// Recent returns the retained entries (oldest first) and the running
// count for the number.
func (l *MemoryLedger) Recent(ctx context.Context, number string) ([]ErrorEntry, int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ring := l.entries[number]
	out := make([]ErrorEntry, len(ring))
	copy(out, ring)
	return out, l.counts[number], nil
}
