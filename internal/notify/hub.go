// Package notify fans processed webhook outcomes out to live subscribers
// (admin websocket clients) and, optionally, to a Redis channel.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// subscriberBuffer is the channel capacity per subscriber; a subscriber that
// falls further behind misses events.
const subscriberBuffer = 64

// Event is the published form of one processed webhook.
type Event struct {
	Event          string    `json:"event"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Success        bool      `json:"success"`
	StatusCode     int       `json:"status_code"`
	Detail         string    `json:"detail"`
	Kind           string    `json:"kind,omitempty"`
	ElapsedMS      float64   `json:"elapsed_ms"`
	Timestamp      time.Time `json:"timestamp"`
}

// Hub is an in-memory broadcaster. Publish never blocks.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]chan Event
	closed      bool
	logger      *zap.SugaredLogger
}

func NewHub(logger *zap.SugaredLogger) *Hub {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Hub{
		subscribers: make(map[string]chan Event),
		logger:      logger.Named("notify"),
	}
}

// Subscribe registers a new subscriber. The returned channel is closed by
// Unsubscribe or Close.
func (h *Hub) Subscribe() (<-chan Event, string) {
	id := uuid.NewString()
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, id
	}
	h.subscribers[id] = ch
	h.mu.Unlock()

	h.logger.Debugw("subscriber added", "sub_id", id)
	return ch, id
}

func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch, ok := h.subscribers[id]
	if !ok {
		return
	}
	delete(h.subscribers, id)
	close(ch)
	h.logger.Debugw("subscriber removed", "sub_id", id)
}

// Publish delivers ev to every subscriber with room in its buffer.
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, ch := range h.subscribers {
		select {
		case ch <- ev:
		default:
			h.logger.Debugw("dropped event for slow subscriber", "sub_id", id, "event", ev.Event)
		}
	}
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close disconnects every subscriber. Later subscriptions receive a closed
// channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, id)
	}
	h.closed = true
}
