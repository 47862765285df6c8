package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// cacheTTL bounds the in-flight message cache. Protocol-level
// getMessage lookups only make sense for recent messages; eviction is
// this layer's job, the intake core never expires entries itself.
const cacheTTL = 24 * time.Hour

func messageKey(protocolID string) string {
	return fmt.Sprintf("wamsg:%s", protocolID)
}

// PutMessage caches a raw message payload by protocol id.
func (c *Client) PutMessage(ctx context.Context, protocolID string, payload []byte) error {
	if err := c.rdb.Set(ctx, messageKey(protocolID), payload, cacheTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache message: %w", err)
	}
	return nil
}

// GetMessage returns the cached payload for the protocol id, nil when
// absent or evicted.
func (c *Client) GetMessage(ctx context.Context, protocolID string) ([]byte, error) {
	val, err := c.rdb.Get(ctx, messageKey(protocolID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read message cache: %w", err)
	}
	return val, nil
}

// MessageCacheAdapter exposes the client as the intake pipeline's
// MessageCache.
type MessageCacheAdapter struct {
	*Client
}

func (a MessageCacheAdapter) Put(ctx context.Context, protocolID string, payload []byte) error {
	return a.PutMessage(ctx, protocolID, payload)
}

func (a MessageCacheAdapter) Get(ctx context.Context, protocolID string) ([]byte, error) {
	return a.GetMessage(ctx, protocolID)
}
