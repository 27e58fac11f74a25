// Package realtime fans ingest results out to live observers: WebSocket
// clients and the Kafka sink. Delivery is at-most-once and never blocks the
// publisher.
package realtime

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"adpulse/internal/tracking/models"
)

const (
	DefaultBuffer = 64

	KindWebSocket = "websocket"
	KindSink      = "sink"
)

// Message is one hub notification. It encodes as {"type":...,"data":...}.
type Message struct {
	Topic string `json:"type"`
	Data  any    `json:"data"`
}

// SnapshotSource provides the aggregate state sent to new subscribers.
type SnapshotSource interface {
	Snapshot() []models.MinuteBucket
}

// Hub owns the subscriber set. Each subscriber has its own bounded queue;
// a full queue drops the message for that subscriber only.
type Hub struct {
	mu        sync.RWMutex
	subs      map[*Subscriber]struct{}
	closed    bool
	buffer    int
	snapshots SnapshotSource
	logger    *slog.Logger
	metrics   *Metrics
}

type Option func(*Hub)

func WithBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) {
		h.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(h *Hub) {
		h.metrics = m
	}
}

func NewHub(snapshots SnapshotSource, opts ...Option) *Hub {
	h := &Hub{
		subs:      make(map[*Subscriber]struct{}),
		buffer:    DefaultBuffer,
		snapshots: snapshots,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscriber is one registered observer.
type Subscriber struct {
	hub     *Hub
	kind    string
	ch      chan Message
	once    sync.Once
	dropped atomic.Int64
}

// Messages returns the subscriber queue. It is closed when the subscriber
// is closed or the hub shuts down.
func (s *Subscriber) Messages() <-chan Message {
	return s.ch
}

// Dropped returns how many messages this subscriber missed.
func (s *Subscriber) Dropped() int64 {
	return s.dropped.Load()
}

// Close unregisters the subscriber. Safe to call more than once.
func (s *Subscriber) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	s.hub.removeLocked(s)
}

// Subscribe registers a subscriber whose queue already holds one
// aggregate-init message. Registration and the snapshot happen under the
// hub lock, so no increment can be delivered ahead of the snapshot.
func (h *Hub) Subscribe(kind string) *Subscriber {
	sub := &Subscriber{hub: h, kind: kind, ch: make(chan Message, h.buffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		sub.once.Do(func() { close(sub.ch) })
		return sub
	}
	if h.snapshots != nil {
		sub.ch <- Message{Topic: TopicAggregateInit, Data: h.snapshots.Snapshot()}
	}
	h.subs[sub] = struct{}{}
	if h.metrics != nil {
		h.metrics.IncrementSubscribers(kind)
	}
	return sub
}

// Publish enqueues the message for every subscriber without blocking.
func (h *Hub) Publish(topic string, payload any) {
	msg := Message{Topic: topic, Data: payload}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		select {
		case sub.ch <- msg:
		default:
			sub.dropped.Add(1)
			if h.metrics != nil {
				h.metrics.IncrementDropped(topic)
			}
		}
	}
	if h.metrics != nil {
		h.metrics.IncrementPublished(topic)
	}
}

// Count returns the number of registered subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close closes every subscriber queue. Later subscribers are closed at once.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for sub := range h.subs {
		h.removeLocked(sub)
	}
	h.logger.Info("realtime hub closed")
}

func (h *Hub) removeLocked(sub *Subscriber) {
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	sub.once.Do(func() { close(sub.ch) })
	if h.metrics != nil {
		h.metrics.DecrementSubscribers(sub.kind)
	}
	if n := sub.Dropped(); n > 0 {
		h.logger.Debug("subscriber closed with dropped messages", "kind", sub.kind, "dropped", n)
	}
}
