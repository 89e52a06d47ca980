package views

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ent0n29/amical/internal/chat"
	"github.com/ent0n29/amical/internal/realtime"
	"github.com/ent0n29/amical/internal/store"
)

var (
	ErrBusy       = errors.New("a message is already being sent")
	ErrViewOpened = errors.New("chat view already opened")
	ErrViewClosed = errors.New("chat view closed")
)

// Sender runs the send flow for a persona.
type Sender interface {
	Send(ctx context.Context, personaID, message string) (chat.SendResult, error)
}

// ChatView is one open conversation with a persona. History is loaded once;
// later turns arrive through the realtime hub.
type ChatView struct {
	store     store.Store
	hub       *realtime.Hub
	sender    Sender
	personaID string

	mu      sync.Mutex
	persona store.Persona
	turns   []store.Turn
	seen    map[string]struct{}
	sub     *realtime.Subscription
	opening bool
	closed  bool

	updates   chan store.Turn
	done      chan struct{}
	closeOnce sync.Once
	busy      atomic.Bool
}

func NewChatView(st store.Store, hub *realtime.Hub, sender Sender, personaID string) *ChatView {
	return &ChatView{
		store:     st,
		hub:       hub,
		sender:    sender,
		personaID: personaID,
		seen:      make(map[string]struct{}),
		updates:   make(chan store.Turn, realtime.DefaultBuffer),
		done:      make(chan struct{}),
	}
}

// Open loads the persona and its history. The subscription is taken before
// the history read so no insert falls between the two; duplicates are
// dropped by turn id.
func (v *ChatView) Open(ctx context.Context) error {
	v.mu.Lock()
	switch {
	case v.closed:
		v.mu.Unlock()
		return ErrViewClosed
	case v.opening || v.sub != nil:
		v.mu.Unlock()
		return ErrViewOpened
	}
	v.opening = true
	v.mu.Unlock()

	persona, sub, turns, err := v.load(ctx)

	v.mu.Lock()
	defer v.mu.Unlock()
	v.opening = false
	if err != nil {
		return err
	}
	if v.closed {
		sub.Close()
		return ErrViewClosed
	}
	v.persona = persona
	v.sub = sub
	v.turns = turns
	for _, t := range turns {
		v.seen[t.ID] = struct{}{}
	}

	go v.pump(sub)
	return nil
}

func (v *ChatView) load(ctx context.Context) (store.Persona, *realtime.Subscription, []store.Turn, error) {
	persona, err := v.store.GetPersona(ctx, v.personaID)
	if err != nil {
		return store.Persona{}, nil, nil, fmt.Errorf("open chat: %w", err)
	}
	sub := v.hub.Subscribe(v.personaID)
	turns, err := v.store.ListTurns(ctx, v.personaID)
	if err != nil {
		sub.Close()
		return store.Persona{}, nil, nil, fmt.Errorf("open chat: %w", err)
	}
	return persona, sub, turns, nil
}

func (v *ChatView) pump(sub *realtime.Subscription) {
	defer close(v.updates)
	events := sub.Events()
	for {
		select {
		case <-v.done:
			return
		case turn, ok := <-events:
			if !ok {
				return
			}
			if !v.record(turn) {
				continue
			}
			select {
			case v.updates <- turn:
			case <-v.done:
				return
			}
		}
	}
}

func (v *ChatView) record(turn store.Turn) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, dup := v.seen[turn.ID]; dup {
		return false
	}
	v.seen[turn.ID] = struct{}{}
	v.turns = append(v.turns, turn)
	return true
}

// Updates delivers turns appended after Open, in delivery order. The channel
// is closed when the view is closed or the subscription is dropped.
func (v *ChatView) Updates() <-chan store.Turn { return v.updates }

func (v *ChatView) Persona() store.Persona {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.persona
}

// Turns returns the conversation as currently displayed, oldest first.
func (v *ChatView) Turns() []store.Turn {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]store.Turn, len(v.turns))
	copy(out, v.turns)
	return out
}

func (v *ChatView) Busy() bool { return v.busy.Load() }

// Send submits text as the user. Only one send runs at a time per view.
func (v *ChatView) Send(ctx context.Context, text string) (chat.SendResult, error) {
	return v.SendAccepted(ctx, text, nil)
}

// SendAccepted is Send with a callback run once the send has been accepted,
// before any store or inference work. Rejected sends never call it.
func (v *ChatView) SendAccepted(ctx context.Context, text string, accepted func()) (chat.SendResult, error) {
	if strings.TrimSpace(text) == "" {
		return chat.SendResult{}, chat.ErrEmptyMessage
	}
	if !v.busy.CompareAndSwap(false, true) {
		return chat.SendResult{}, ErrBusy
	}
	defer v.busy.Store(false)
	if accepted != nil {
		accepted()
	}
	return v.sender.Send(ctx, v.personaID, text)
}

// Close releases the subscription. Safe to call more than once.
func (v *ChatView) Close() {
	v.closeOnce.Do(func() {
		v.mu.Lock()
		v.closed = true
		close(v.done)
		sub := v.sub
		v.mu.Unlock()
		if sub != nil {
			sub.Close()
		}
	})
}
