package realtime

import (
	"sync"

	"github.com/ent0n29/amical/internal/store"
)

// DefaultBuffer is the per-subscription queue depth.
const DefaultBuffer = 64

// Hub fans inserted turns out to the subscribers of their persona.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[*Subscription]struct{}
	buffer int
	onDrop func(personaID string)
	onPub  func(turn store.Turn)
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		subs:   make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
	}
}

// SetDropHook is called when a subscriber is disconnected for falling behind.
func (h *Hub) SetDropHook(hook func(personaID string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onDrop = hook
}

// SetPublishHook is called once per published turn, before fan-out.
func (h *Hub) SetPublishHook(hook func(turn store.Turn)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onPub = hook
}

// Subscription receives turns inserted for one persona until Close is called.
type Subscription struct {
	hub       *Hub
	personaID string
	ch        chan store.Turn
	once      sync.Once
}

func (s *Subscription) Events() <-chan store.Turn { return s.ch }

func (s *Subscription) PersonaID() string { return s.personaID }

// Close releases the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s)
}

func (h *Hub) Subscribe(personaID string) *Subscription {
	sub := &Subscription{
		hub:       h,
		personaID: personaID,
		ch:        make(chan store.Turn, h.buffer),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[personaID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[personaID] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Publish never blocks: a subscriber whose queue is full is closed instead.
func (h *Hub) Publish(turn store.Turn) {
	var dropped int
	h.mu.Lock()
	if h.onPub != nil {
		h.onPub(turn)
	}
	for sub := range h.subs[turn.PersonaID] {
		select {
		case sub.ch <- turn:
		default:
			h.removeLocked(sub)
			dropped++
		}
	}
	hook := h.onDrop
	h.mu.Unlock()

	if hook != nil {
		for i := 0; i < dropped; i++ {
			hook(turn.PersonaID)
		}
	}
}

// Subscribers reports how many subscriptions are open for a persona.
func (h *Hub) Subscribers(personaID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[personaID])
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub)
}

func (h *Hub) removeLocked(sub *Subscription) {
	sub.once.Do(func() {
		if set, ok := h.subs[sub.personaID]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(h.subs, sub.personaID)
			}
		}
		close(sub.ch)
	})
}
