package events

import (
	"context"
	"sync"
)

// Envelope pairs an event name with its payload for transport.
type Envelope struct {
	Name  string    `json:"name"`
	Event ToolEvent `json:"event"`
}

// Hub fans events out to subscribers. A subscriber with a session key only
// receives events for that session; an empty key receives everything.
type Hub struct {
	mu     sync.RWMutex
	subs   map[int]*subscriber
	nextID int
	buffer int
}

type subscriber struct {
	session string
	ch      chan Envelope
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{subs: make(map[int]*subscriber), buffer: buffer}
}

// Subscribe registers a listener. The returned cancel func closes the channel.
func (h *Hub) Subscribe(session string) (<-chan Envelope, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	sub := &subscriber{session: session, ch: make(chan Envelope, h.buffer)}
	h.subs[id] = sub

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(sub.ch)
		})
	}
}

// Publish delivers an event without blocking. Slow subscribers drop events.
func (h *Hub) Publish(_ context.Context, name string, evt ToolEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if sub.session != "" && evt.SessionKey != "" && sub.session != evt.SessionKey {
			continue
		}
		select {
		case sub.ch <- Envelope{Name: name, Event: evt}:
		default:
		}
	}
}

// Subscribers returns the number of active listeners.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
