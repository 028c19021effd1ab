// Package realtime fans notification events out over Redis pub/sub.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const DefaultChannel = "notifications"

// Publisher writes each event to the per-user channel and to the global one.
type Publisher struct {
	client  *redis.Client
	channel string
}

func NewPublisher(client *redis.Client, channel string) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Publisher{client: client, channel: channel}
}

// UserChannel names the channel a single user's clients subscribe to.
func (p *Publisher) UserChannel(userID string) string {
	return fmt.Sprintf("%s:%s", p.channel, userID)
}

func (p *Publisher) Publish(ctx context.Context, userID string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, p.UserChannel(userID), payload).Err(); err != nil {
		return fmt.Errorf("publish to user channel: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to global channel: %w", err)
	}
	return nil
}
