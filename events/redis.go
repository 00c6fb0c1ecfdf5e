// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "tablepay:events:"

// RedisHub publishes through Redis so every API instance sees every event.
// Received messages are handed to a local MemoryHub for delivery.
type RedisHub struct {
	client *redis.Client
	local  *MemoryHub
}

func NewRedisHub(client *redis.Client) *RedisHub {
	return &RedisHub{client: client, local: NewMemoryHub()}
}

func (h *RedisHub) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := h.client.Publish(ctx, channelPrefix+ev.Topic, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (h *RedisHub) Subscribe(topics ...string) *Subscription {
	return h.local.Subscribe(topics...)
}

// Run relays Redis messages to local subscribers until ctx is cancelled
func (h *RedisHub) Run(ctx context.Context) error {
	pubsub := h.client.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to event channels: %w", err)
	}
	slog.Info("relaying events from redis")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				slog.Warn("discarding malformed event", "channel", msg.Channel, "error", err)
				continue
			}
			if ev.Topic == "" {
				ev.Topic = strings.TrimPrefix(msg.Channel, channelPrefix)
			}
			h.local.deliver(ev)
		}
	}
}
