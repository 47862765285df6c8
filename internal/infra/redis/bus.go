package redis

import (
	"context"
	"encoding/json"
	"fmt"
)

// Bus is the Redis pub/sub notification fan-out. UI gateways subscribe
// to the per-tenant channels and relay events to connected clients.
type Bus struct {
	client *Client
}

// NewBus creates the pub/sub bus.
func NewBus(client *Client) *Bus {
	return &Bus{client: client}
}

// envelope is the wire shape of one published event.
type envelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// Publish fans an event out on the channel. Fire-and-forget: callers
// log failures, they never propagate into the state machine.
func (b *Bus) Publish(ctx context.Context, channel, event string, payload any) error {
	data, err := json.Marshal(envelope{Event: event, Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", event, err)
	}
	if err := b.client.rdb.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event %s: %w", event, err)
	}
	return nil
}
