package sse

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/xao-fun/xao-go/internal/referral"
)

// TopicAll receives every verification; the other topics are outcomes.
const TopicAll = "all"

// Topics lists the valid subscription topics.
var Topics = []string{TopicAll, "verified", "flagged", "failed"}

// Event represents a server-sent event to be published to subscribers.
type Event struct {
	Type string // "verification", "stats"
	ID   string // verification id, if any
	Data []byte // JSON payload
}

// Hub fans verification events out to per-topic subscribers.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{} // topic -> set of channels
	logger      *slog.Logger
}

// NewHub creates a new SSE hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		subscribers: make(map[string]map[chan Event]struct{}),
		logger:      logger,
	}
}

// ValidTopic reports whether topic can be subscribed to.
func ValidTopic(topic string) bool {
	for _, t := range Topics {
		if t == topic {
			return true
		}
	}
	return false
}

// Subscribe registers a new subscriber for topic. The returned cancel
// function must be called when the subscriber disconnects.
func (h *Hub) Subscribe(topic string) (<-chan Event, func()) {
	ch := make(chan Event, 64)
	h.mu.Lock()
	if h.subscribers[topic] == nil {
		h.subscribers[topic] = make(map[chan Event]struct{})
	}
	h.subscribers[topic][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers[topic], ch)
			if len(h.subscribers[topic]) == 0 {
				delete(h.subscribers, topic)
			}
			close(ch)
			h.mu.Unlock()
		})
	}
	return ch, cancel
}

// Publish sends an event to all subscribers of topic. A full subscriber
// buffer drops the event.
func (h *Hub) Publish(topic string, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subscribers[topic] {
		select {
		case ch <- event:
		default:
			h.logger.Warn("sse: dropped event for slow client", "topic", topic)
		}
	}
}

// NotifyVerification publishes v to TopicAll and to its outcome topic.
func (h *Hub) NotifyVerification(v *referral.Verification) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("sse: encode verification", "id", v.ID, "err", err)
		return
	}
	event := Event{Type: "verification", ID: v.ID.String(), Data: data}
	h.Publish(TopicAll, event)
	h.Publish(v.Outcome(), event)
}

// SubscriberCount returns the number of active subscribers for topic.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[topic])
}
