// Package events fans in-app notification events out over Redis pub/sub.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/amishk599/jobwatch/internal/model"
)

// DefaultChannel is the pub/sub channel used when none is configured.
const DefaultChannel = "jobwatch:in_app"

// Ensure RedisPublisher implements model.EventPublisher.
var _ model.EventPublisher = (*RedisPublisher)(nil)

// NewRedisClient parses redisURL and verifies connectivity.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL(%q): %w", redisURL, err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// publisher is the subset of *redis.Client used for publishing.
type publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisPublisher publishes in-app events as JSON on a pub/sub channel.
type RedisPublisher struct {
	rdb     publisher
	channel string
}

// NewRedisPublisher returns a publisher on channel (DefaultChannel when empty).
func NewRedisPublisher(rdb publisher, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{rdb: rdb, channel: channel}
}

// Publish sends ev to every current subscriber of the channel.
func (p *RedisPublisher) Publish(ctx context.Context, ev model.InAppEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		return &model.TransportError{Transport: "events", Err: err}
	}
	return nil
}

// Listen subscribes to channel and calls fn for each decoded event until ctx
// is done. Undecodable messages are logged and dropped.
func Listen(ctx context.Context, rdb *redis.Client, channel string, logger *slog.Logger, fn func(model.InAppEvent)) error {
	if channel == "" {
		channel = DefaultChannel
	}
	ps := rdb.Subscribe(ctx, channel)
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}

	msgs := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			ev, err := decodeEvent(msg.Payload)
			if err != nil {
				logger.Warn("dropping malformed event", "channel", channel, "error", err)
				continue
			}
			fn(ev)
		}
	}
}

func decodeEvent(payload string) (model.InAppEvent, error) {
	var ev model.InAppEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return model.InAppEvent{}, fmt.Errorf("decode event: %w", err)
	}
	return ev, nil
}
