// Package events pushes quest session events to websocket subscribers.
package events

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

const defaultBuffer = 16

// Event is one message on the feed.
type Event struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	Payload   any       `json:"payload,omitempty"`
	At        time.Time `json:"at"`
}

// Subscription is one registered feed.
type Subscription struct {
	userID string
	tab    string
	send   chan []byte
	done   chan struct{}
	once   sync.Once
}

func (s *Subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

// Hub fans quest events out to subscribers. A subscriber is identified by
// user and tab; a new connection from the same tab replaces the old one.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[string]*Subscription
	buffer int
	logger *slog.Logger
	now    func() time.Time
}

// NewHub creates a hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[string]map[string]*Subscription),
		buffer: defaultBuffer,
		logger: logger,
		now:    time.Now,
	}
}

// Subscribe registers a subscriber for questID.
func (h *Hub) Subscribe(questID, userID, tab string) *Subscription {
	sub := &Subscription{
		userID: userID,
		tab:    tab,
		send:   make(chan []byte, h.buffer),
		done:   make(chan struct{}),
	}
	key := userID + ":" + tab

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[questID]; !ok {
		h.subs[questID] = make(map[string]*Subscription)
	}
	if existing, ok := h.subs[questID][key]; ok {
		existing.stop()
	}
	h.subs[questID][key] = sub
	h.logger.Info("event subscriber registered", "quest_id", questID, "user_id", userID, "session_id", tab)
	return sub
}

// Unsubscribe removes sub if it is still the registered subscriber for its tab.
func (h *Hub) Unsubscribe(questID string, sub *Subscription) {
	key := sub.userID + ":" + sub.tab

	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.subs[questID]
	if !ok {
		return
	}
	if current, exists := subs[key]; exists && current == sub {
		delete(subs, key)
		if len(subs) == 0 {
			delete(h.subs, questID)
		}
		h.logger.Info("event subscriber unregistered", "quest_id", questID, "user_id", sub.userID, "session_id", sub.tab)
	}
	sub.stop()
}

// Publish delivers an event to every subscriber of sessionID. It never
// blocks: a subscriber whose buffer is full misses the event.
func (h *Hub) Publish(sessionID, eventType string, payload any) {
	data, err := json.Marshal(Event{Type: eventType, SessionID: sessionID, Payload: payload, At: h.now()})
	if err != nil {
		h.logger.Error("encode event", "type", eventType, "quest_id", sessionID, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs[sessionID] {
		select {
		case sub.send <- data:
		default:
			h.logger.Debug("event dropped for slow subscriber", "type", eventType, "quest_id", sessionID, "user_id", sub.userID)
		}
	}
}

// CloseQuest disconnects every subscriber of questID. Events already queued
// are still delivered before the feed closes.
func (h *Hub) CloseQuest(questID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs[questID] {
		sub.stop()
	}
	delete(h.subs, questID)
}

// Subscribers returns the number of live subscribers for questID.
func (h *Hub) Subscribers(questID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[questID])
}
