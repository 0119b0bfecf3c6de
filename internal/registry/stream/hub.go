// Package stream pushes CredentialAdded events to connected websocket
// clients as they are committed. It is the in-process counterpart of the
// Kafka topic for front ends that only need a live feed.
package stream

import (
	"context"
	"log/slog"
	"sync"

	"certify/internal/registry/models"
)

// Hub fans events out to subscribers. It implements service.Observer.
// Delivery never blocks a commit: a subscriber whose buffer is full is
// dropped and has to reconnect.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	buffer int
	logger *slog.Logger
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithBuffer sets how many undelivered events a subscriber may queue.
func WithBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithHubLogger sets the logger.
func WithHubLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHub creates an empty hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		subs:   make(map[uint64]*Subscription),
		buffer: 64,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscription receives events until it is closed or dropped.
type Subscription struct {
	id      uint64
	key     models.IdentityKey
	events  chan models.CredentialAdded
	dropped chan struct{}
	once    sync.Once
	hub     *Hub
}

// Events delivers committed inserts in the order the registry announced them.
// Concurrent inserts are announced after their commits, so that order can
// differ from commit order; consumers that care sort by Sequence.
func (s *Subscription) Events() <-chan models.CredentialAdded {
	return s.events
}

// Dropped is closed when the hub gave up on a slow subscriber.
func (s *Subscription) Dropped() <-chan struct{} {
	return s.dropped
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s.id)
}

// Subscribe registers a subscriber. A non-empty key limits delivery to
// events for that identity key.
func (h *Hub) Subscribe(key models.IdentityKey) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	sub := &Subscription{
		id:      h.nextID,
		key:     key,
		events:  make(chan models.CredentialAdded, h.buffer),
		dropped: make(chan struct{}),
		hub:     h,
	}
	h.subs[sub.id] = sub
	return sub
}

// Len returns the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// CredentialAdded delivers event to every matching subscriber.
func (h *Hub) CredentialAdded(ctx context.Context, event models.CredentialAdded) error {
	var slow []uint64

	h.mu.RLock()
	for id, sub := range h.subs {
		if !sub.key.IsEmpty() && sub.key != event.IdentityKey {
			continue
		}
		select {
		case sub.events <- event:
		default:
			slow = append(slow, id)
		}
	}
	h.mu.RUnlock()

	for _, id := range slow {
		h.logger.WarnContext(ctx, "dropping slow stream subscriber", "subscriber", id)
		h.drop(id)
	}
	return nil
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, id)
}

func (h *Hub) drop(id uint64) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	delete(h.subs, id)
	h.mu.Unlock()
	if ok {
		sub.once.Do(func() { close(sub.dropped) })
	}
}
