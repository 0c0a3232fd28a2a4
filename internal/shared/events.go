package shared

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// EventChannel is the pub/sub channel downstream reporting subscribes to.
const EventChannel = "ledger.events"

// Event is a ledger domain event published on Post, Void, and Close.
type Event struct {
	Type       string         `json:"type"`
	Entity     string         `json:"entity"`
	EntityID   int64          `json:"entityId"`
	OccurredAt time.Time      `json:"occurredAt"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// EventPublisher notifies downstream consumers of ledger mutations.
type EventPublisher interface {
	Publish(ctx context.Context, ev Event) error
}

// RedisPublisher publishes events over redis pub/sub.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher constructs a RedisPublisher.
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// Publish serialises the event and publishes it on EventChannel.
func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	if p == nil || p.client == nil {
		return nil
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, EventChannel, data).Err()
}
