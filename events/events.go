// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Well-known topics
const (
	TopicKitchen = "kitchen"
	TopicStaff   = "staff"
)

// Event types
const (
	TypeGuestJoined       = "guest.joined"
	TypeOrderPlaced       = "order.placed"
	TypeOrderStatus       = "order.status"
	TypeOrderCancelled    = "order.cancelled"
	TypeServiceRequest    = "request.created"
	TypeRequestAcked      = "request.acked"
	TypePaymentUpdated    = "payment.updated"
	TypePoolUpdated       = "pool.updated"
	TypeSessionClosed     = "session.closed"
	TypeMenuChanged       = "menu.changed"
	TypeTableStateChanged = "table.changed"
)

// SessionTopic is the topic guests at one table session subscribe to
func SessionTopic(sessionID string) string {
	return "session:" + sessionID
}

type Event struct {
	Topic string          `json:"topic"`
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data,omitempty"`
	At    time.Time       `json:"at"`
}

// New builds an event, encoding data as JSON. Unencodable data is dropped.
func New(topic, eventType string, data interface{}) Event {
	ev := Event{Topic: topic, Type: eventType, At: time.Now().UTC()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			slog.Error("failed to encode event data", "type", eventType, "error", err)
		} else {
			ev.Data = raw
		}
	}
	return ev
}

// Hub fans events out to subscribers. Publish never blocks on slow readers.
type Hub interface {
	Publish(ctx context.Context, ev Event) error
	Subscribe(topics ...string) *Subscription
}

// Subscription delivers events for its topics on C until Close is called
type Subscription struct {
	C <-chan Event

	ch     chan Event
	topics []string
	hub    *MemoryHub
	once   sync.Once
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
	})
}

// PublishAll publishes the same payload to several topics, logging failures.
func PublishAll(ctx context.Context, hub Hub, eventType string, data interface{}, topics ...string) {
	if hub == nil {
		return
	}
	for _, topic := range topics {
		if err := hub.Publish(ctx, New(topic, eventType, data)); err != nil {
			slog.WarnContext(ctx, "failed to publish event", "topic", topic, "type", eventType, "error", err)
		}
	}
}
