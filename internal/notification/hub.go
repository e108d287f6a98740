// Package notification pushes per-user events (finished ingestions,
// deletions) to connected clients over SSE or websocket.
package notification

import (
	"sync"
	"time"
)

const (
	EventConnected      = "connected"
	EventPing           = "ping"
	EventReportIngested = "report_ingested"
	EventReportDeleted  = "report_deleted"
)

type Event struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data,omitempty"`
}

type subscriber struct {
	ch chan Event
}

// Hub fans events out to every connection of a user. Slow connections
// lose events rather than block the publisher.
type Hub struct {
	mu           sync.RWMutex
	subs         map[string]map[*subscriber]struct{}
	stopped      bool
	pingInterval time.Duration
	buffer       int
}

func NewHub(pingInterval time.Duration) *Hub {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Hub{
		subs:         make(map[string]map[*subscriber]struct{}),
		pingInterval: pingInterval,
		buffer:       16,
	}
}

// Subscribe registers a connection for userID. The channel is closed by
// cancel or Stop.
func (h *Hub) Subscribe(userID string) (<-chan Event, func()) {
	s := &subscriber{ch: make(chan Event, h.buffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		close(s.ch)
		return s.ch, func() {}
	}
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*subscriber]struct{})
	}
	h.subs[userID][s] = struct{}{}

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[userID][s]; !ok {
				return
			}
			delete(h.subs[userID], s)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			close(s.ch)
		})
	}
}

// Publish delivers ev to the user's connections and returns how many took it.
func (h *Hub) Publish(userID string, ev Event) int {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for s := range h.subs[userID] {
		select {
		case s.ch <- ev:
			n++
		default:
		}
	}
	return n
}

// Clients returns the number of users with at least one connection.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	h.stopped = true
	for uid, set := range h.subs {
		for s := range set {
			close(s.ch)
		}
		delete(h.subs, uid)
	}
}
