package views

import (
	"context"
	"fmt"
	"sync"

	"github.com/ent0n29/amical/internal/store"
)

// Listing is the persona list, newest first.
type Listing struct {
	store store.Store

	mu    sync.RWMutex
	items []store.Persona
}

func NewListing(st store.Store) *Listing {
	return &Listing{store: st}
}

// Load replaces the listing with the stored personas.
func (l *Listing) Load(ctx context.Context) ([]store.Persona, error) {
	personas, err := l.store.ListPersonas(ctx)
	if err != nil {
		return nil, fmt.Errorf("load personas: %w", err)
	}
	l.mu.Lock()
	l.items = personas
	l.mu.Unlock()
	return l.Items(), nil
}

// Prepend shows a just-created persona without reloading.
func (l *Listing) Prepend(p store.Persona) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, existing := range l.items {
		if existing.ID == p.ID {
			return
		}
	}
	l.items = append([]store.Persona{p}, l.items...)
}

func (l *Listing) Items() []store.Persona {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]store.Persona, len(l.items))
	copy(out, l.items)
	return out
}
