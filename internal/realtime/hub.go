package realtime

import (
	"sync"
	"time"

	"github.com/doctalk-ai/doctalk/internal/domain"
)

// sendBufferSize bounds each subscriber's undelivered event backlog.
const sendBufferSize = 16

// Event is the wire envelope delivered to session subscribers.
type Event struct {
	ID        int64                   `json:"id"`
	SessionID string                  `json:"session_id"`
	Role      string                  `json:"role"`
	Content   string                  `json:"content"`
	Metadata  *domain.MessageMetadata `json:"metadata,omitempty"`
	CreatedAt time.Time               `json:"created_at"`
}

// Subscriber receives the events of one session. C is closed when the
// subscription ends, either by Unsubscribe or because the subscriber
// fell too far behind.
type Subscriber struct {
	C         <-chan Event
	sessionID string
	ch        chan Event
}

// Hub fans chat messages out to the live subscribers of each session.
// Delivery is best effort: there is no replay, and a subscriber whose
// buffer fills up is dropped rather than allowed to block the rest.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*Subscriber]struct{}
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[*Subscriber]struct{}),
	}
}

// Subscribe registers a new subscriber for a session.
func (h *Hub) Subscribe(sessionID string) *Subscriber {
	ch := make(chan Event, sendBufferSize)
	sub := &Subscriber{
		C:         ch,
		sessionID: sessionID,
		ch:        ch,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[*Subscriber]struct{})
	}
	h.subs[sessionID][sub] = struct{}{}
	return sub
}

// Unsubscribe removes a subscriber and closes its channel. Safe to
// call after the hub already dropped the subscriber.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub)
}

// Notify implements the chat service's notifier boundary. It never
// blocks the caller: events for dead or slow subscribers are shed.
func (h *Hub) Notify(sessionID string, m *domain.ChatMessage) {
	ev := Event{
		ID:        m.ID,
		SessionID: m.SessionID,
		Role:      string(m.Role),
		Content:   m.Content,
		Metadata:  m.Metadata,
		CreatedAt: m.CreatedAt,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[sessionID] {
		select {
		case sub.ch <- ev:
		default:
			h.removeLocked(sub)
		}
	}
}

// SubscriberCount reports the live subscribers of a session.
func (h *Hub) SubscriberCount(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[sessionID])
}

func (h *Hub) removeLocked(sub *Subscriber) {
	group, ok := h.subs[sub.sessionID]
	if !ok {
		return
	}
	if _, ok := group[sub]; !ok {
		return
	}
	delete(group, sub)
	if len(group) == 0 {
		delete(h.subs, sub.sessionID)
	}
	close(sub.ch)
}
