// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package events

import (
	"context"
	"log/slog"
	"sync"
)

const subscriberBuffer = 32

// MemoryHub is an in-process Hub
type MemoryHub struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscription]struct{}
}

func NewMemoryHub() *MemoryHub {
	return &MemoryHub{topics: make(map[string]map[*Subscription]struct{})}
}

func (h *MemoryHub) Publish(_ context.Context, ev Event) error {
	h.deliver(ev)
	return nil
}

func (h *MemoryHub) deliver(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.topics[ev.Topic] {
		select {
		case sub.ch <- ev:
		default:
			slog.Warn("dropping event for slow subscriber", "topic", ev.Topic, "type", ev.Type)
		}
	}
}

func (h *MemoryHub) Subscribe(topics ...string) *Subscription {
	ch := make(chan Event, subscriberBuffer)
	sub := &Subscription{C: ch, ch: ch, topics: topics, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, topic := range topics {
		subs, ok := h.topics[topic]
		if !ok {
			subs = make(map[*Subscription]struct{})
			h.topics[topic] = subs
		}
		subs[sub] = struct{}{}
	}
	return sub
}

func (h *MemoryHub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, topic := range sub.topics {
		if subs, ok := h.topics[topic]; ok {
			delete(subs, sub)
			if len(subs) == 0 {
				delete(h.topics, topic)
			}
		}
	}
	close(sub.ch)
}

// SubscriberCount returns the number of live subscriptions on topic
func (h *MemoryHub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}
