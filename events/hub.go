// Package events fans domain events out to in-process subscribers such as
// the dashboard websocket.
package events

import (
	"sync"
	"time"

	"autopost/post"
)

// Type names a domain event.
type Type string

const (
	PostPublished Type = "post.published"
	PostFailed    Type = "post.failed"
	PostScheduled Type = "post.scheduled"
)

// Event is a single notification.
type Event struct {
	Type    Type                     `json:"type"`
	PostID  string                   `json:"postId,omitempty"`
	Success bool                     `json:"success"`
	Results map[post.Platform]bool   `json:"results,omitempty"`
	Errors  map[post.Platform]string `json:"errors,omitempty"`
	Message string                   `json:"message,omitempty"`
	At      time.Time                `json:"at"`
}

const defaultBuffer = 16

// Hub delivers events to every subscriber. Publish never blocks: a
// subscriber whose buffer is full misses the event.
type Hub struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	buffer int
	now    func() time.Time
}

// NewHub creates a hub whose subscriber channels hold buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{subs: make(map[int]chan Event), buffer: buffer, now: time.Now}
}

// Subscribe registers a new subscriber. The returned cancel func removes it
// and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, h.buffer)
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish sends ev to all current subscribers. A nil hub discards events.
func (h *Hub) Publish(ev Event) {
	if h == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = h.now().UTC()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers returns the number of active subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
