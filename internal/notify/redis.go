// Package notify publishes room access changes to Redis pub/sub so other
// services (mailers, presence, live UI) can react to grants and revocations.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Kind string

const (
	KindInvited     Kind = "invited"
	KindRoleChanged Kind = "roleChanged"
	KindRevoked     Kind = "revoked"
)

// Event describes one access change on a room.
type Event struct {
	RoomID    string    `json:"roomId"`
	Email     string    `json:"email"`
	Role      string    `json:"role,omitempty"`
	UpdatedBy string    `json:"updatedBy"`
	Kind      Kind      `json:"kind"`
	At        time.Time `json:"at"`
}

// Publisher pushes access events onto a Redis channel.
type Publisher struct {
	client  *redis.Client
	channel string
}

// NewPublisher connects to Redis and verifies the connection.
func NewPublisher(redisURL, channel string) (*Publisher, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Publisher{client: client, channel: channel}, nil
}

// NewPublisherWithClient wraps an existing Redis client.
func NewPublisherWithClient(client *redis.Client, channel string) *Publisher {
	return &Publisher{client: client, channel: channel}
}

// Publish sends one event. The event timestamp is stamped here if unset.
func (p *Publisher) Publish(ctx context.Context, event Event) error {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal access event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish access event: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}
