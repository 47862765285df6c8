package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zapdesk/wabridge/internal/session"
)

// Ledger is the Redis-backed phone error ledger: a bounded list of the
// last 10 errors per phone number plus a running counter. Entries are
// created lazily and never deleted.
type Ledger struct {
	client *Client
}

// NewLedger creates the Redis error ledger.
func NewLedger(client *Client) *Ledger {
	return &Ledger{client: client}
}

func ledgerKey(number string) string {
	return fmt.Sprintf("phoneerr:%s", number)
}

func ledgerCountKey(number string) string {
	return fmt.Sprintf("phoneerr:%s:count", number)
}

// Record appends an error for the number, trimming the list to 10, and
// bumps the running counter. The append and trim run in one pipeline
// so concurrent writers stay bounded.
func (l *Ledger) Record(ctx context.Context, number, errType, message string) error {
	entry := session.ErrorEntry{Type: errType, Message: message, At: time.Now().UTC()}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger entry: %w", err)
	}

	pipe := l.client.rdb.TxPipeline()
	pipe.LPush(ctx, ledgerKey(number), data)
	pipe.LTrim(ctx, ledgerKey(number), 0, 9)
	pipe.Incr(ctx, ledgerCountKey(number))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record phone error: %w", err)
	}
	return nil
}

// Recent returns the retained entries (newest first) and the running
// count.
func (l *Ledger) Recent(ctx context.Context, number string) ([]session.ErrorEntry, int64, error) {
	raw, err := l.client.rdb.LRange(ctx, ledgerKey(number), 0, -1).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read phone errors: %w", err)
	}

	entries := make([]session.ErrorEntry, 0, len(raw))
	for _, r := range raw {
		var e session.ErrorEntry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}

	count, err := l.client.rdb.Get(ctx, ledgerCountKey(number)).Int64()
	if err == redis.Nil {
		count = 0
	} else if err != nil {
		return nil, 0, fmt.Errorf("failed to read phone error count: %w", err)
	}
	return entries, count, nil
}
