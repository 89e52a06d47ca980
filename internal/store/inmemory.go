package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a simple in-process store for local/dev use.
type InMemoryStore struct {
	mu       sync.RWMutex
	personas map[string]Persona
	order    []string
	turns    map[string][]Turn
	memories map[string][]Memory
	pub      Publisher
}

func NewInMemoryStore(pub Publisher) *InMemoryStore {
	return &InMemoryStore{
		personas: make(map[string]Persona),
		turns:    make(map[string][]Turn),
		memories: make(map[string][]Memory),
		pub:      pub,
	}
}

func (s *InMemoryStore) CreatePersona(_ context.Context, p NewPersona) (Persona, error) {
	if err := p.Check(); err != nil {
		return Persona{}, err
	}
	persona := p.build(uuid.NewString(), time.Now().UTC())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.personas[persona.ID] = persona
	s.order = append(s.order, persona.ID)
	return persona, nil
}

func (s *InMemoryStore) GetPersona(_ context.Context, id string) (Persona, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.personas[id]
	if !ok {
		return Persona{}, ErrNotFound
	}
	return p, nil
}

func (s *InMemoryStore) ListPersonas(_ context.Context) ([]Persona, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Persona, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, s.personas[s.order[i]])
	}
	return out, nil
}

func (s *InMemoryStore) AppendTurn(_ context.Context, t Turn) (Turn, error) {
	if err := t.check(); err != nil {
		return Turn{}, err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.personas[t.PersonaID]; !ok {
		return Turn{}, ErrNotFound
	}
	s.turns[t.PersonaID] = append(s.turns[t.PersonaID], t)
	// Publish under the write lock so subscribers observe commit order.
	if s.pub != nil {
		s.pub.Publish(t)
	}
	return t, nil
}

func (s *InMemoryStore) ListTurns(_ context.Context, personaID string) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.turns[personaID]
	out := make([]Turn, len(arr))
	copy(out, arr)
	return out, nil
}

func (s *InMemoryStore) RecentTurns(_ context.Context, personaID string, limit int) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.turns[personaID]
	if len(arr) == 0 {
		return nil, nil
	}
	if limit <= 0 || limit > len(arr) {
		limit = len(arr)
	}
	out := make([]Turn, 0, limit)
	for i := len(arr) - 1; i >= len(arr)-limit; i-- {
		out = append(out, arr[i])
	}
	return out, nil
}

func (s *InMemoryStore) AddMemory(_ context.Context, m Memory) (Memory, error) {
	if err := m.normalize(); err != nil {
		return Memory{}, err
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.personas[m.PersonaID]; !ok {
		return Memory{}, ErrNotFound
	}
	s.memories[m.PersonaID] = append(s.memories[m.PersonaID], m)
	return m, nil
}

func (s *InMemoryStore) TopMemories(_ context.Context, personaID string, limit int, ranking Ranking) ([]Memory, error) {
	s.mu.RLock()
	arr := s.memories[personaID]
	out := make([]Memory, len(arr))
	copy(out, arr)
	s.mu.RUnlock()

	// Newest first, then a stable sort by rank keeps recency as the tie-break.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	sort.SliceStable(out, func(i, j int) bool {
		return ranking.Before(out[i].Importance, out[j].Importance)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) Mode() string { return "in-memory" }

func (s *InMemoryStore) Close() error { return nil }
