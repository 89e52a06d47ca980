package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordingPublisher struct {
	mu    sync.Mutex
	turns []Turn
}

func (p *recordingPublisher) Publish(t Turn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.turns = append(p.turns, t)
}

func (p *recordingPublisher) snapshot() []Turn {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Turn, len(p.turns))
	copy(out, p.turns)
	return out
}

type openFunc func(t *testing.T, pub Publisher) Store

func backends() map[string]openFunc {
	return map[string]openFunc{
		"in-memory": func(_ *testing.T, pub Publisher) Store { return NewInMemoryStore(pub) },
		"sqlite": func(t *testing.T, pub Publisher) Store {
			s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "amical.db"), pub)
			if err != nil {
				t.Fatalf("NewSQLiteStore() error = %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func samplePersona(name string) NewPersona {
	return NewPersona{
		Name:        name,
		Age:         17,
		Occupation:  "lycéen",
		Personality: "curieux",
		Tone:        "amical",
		Background:  "Grandi à Lyon.",
	}
}

func TestCreateAndGetPersona(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			s := open(t, nil)
			ctx := context.Background()

			p, err := s.CreatePersona(ctx, samplePersona("Alex"))
			if err != nil {
				t.Fatalf("CreatePersona() error = %v", err)
			}
			if p.ID == "" || p.CreatedAt.IsZero() || p.UpdatedAt.IsZero() {
				t.Fatalf("missing generated fields: %+v", p)
			}
			if p.DailyMessageTime != DefaultDailyMessageTime {
				t.Fatalf("DailyMessageTime = %q, want %q", p.DailyMessageTime, DefaultDailyMessageTime)
			}

			got, err := s.GetPersona(ctx, p.ID)
			if err != nil {
				t.Fatalf("GetPersona() error = %v", err)
			}
			if got.Name != "Alex" || got.Age != 17 {
				t.Fatalf("unexpected persona: %+v", got)
			}

			if _, err := s.GetPersona(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("GetPersona(missing) error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestCreatePersonaRejectsMissingFields(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			s := open(t, nil)
			p := samplePersona("Alex")
			p.Tone = "  "
			if _, err := s.CreatePersona(context.Background(), p); !errors.Is(err, ErrInvalidPersona) {
				t.Fatalf("CreatePersona() error = %v, want ErrInvalidPersona", err)
			}
			p = samplePersona("Alex")
			p.Age = 0
			if _, err := s.CreatePersona(context.Background(), p); !errors.Is(err, ErrInvalidPersona) {
				t.Fatalf("CreatePersona(age=0) error = %v, want ErrInvalidPersona", err)
			}
		})
	}
}

func TestListPersonasNewestFirst(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			s := open(t, nil)
			ctx := context.Background()
			for _, n := range []string{"A", "B", "C"} {
				if _, err := s.CreatePersona(ctx, samplePersona(n)); err != nil {
					t.Fatalf("CreatePersona(%s) error = %v", n, err)
				}
				time.Sleep(2 * time.Millisecond)
			}
			list, err := s.ListPersonas(ctx)
			if err != nil {
				t.Fatalf("ListPersonas() error = %v", err)
			}
			var names []string
			for _, p := range list {
				names = append(names, p.Name)
			}
			if strings.Join(names, ",") != "C,B,A" {
				t.Fatalf("names = %v, want [C B A]", names)
			}
		})
	}
}

func TestTurnsOrderingAndPublish(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			pub := &recordingPublisher{}
			s := open(t, pub)
			ctx := context.Background()
			p, err := s.CreatePersona(ctx, samplePersona("Alex"))
			if err != nil {
				t.Fatalf("CreatePersona() error = %v", err)
			}

			for i := 0; i < 5; i++ {
				role := RoleUser
				if i%2 == 1 {
					role = RoleAssistant
				}
				if _, err := s.AppendTurn(ctx, Turn{PersonaID: p.ID, Role: role, Content: string(rune('a' + i))}); err != nil {
					t.Fatalf("AppendTurn(%d) error = %v", i, err)
				}
			}

			all, err := s.ListTurns(ctx, p.ID)
			if err != nil {
				t.Fatalf("ListTurns() error = %v", err)
			}
			if got := joinContent(all); got != "abcde" {
				t.Fatalf("ListTurns content = %q, want %q", got, "abcde")
			}

			recent, err := s.RecentTurns(ctx, p.ID, 3)
			if err != nil {
				t.Fatalf("RecentTurns() error = %v", err)
			}
			if got := joinContent(recent); got != "edc" {
				t.Fatalf("RecentTurns content = %q, want %q", got, "edc")
			}

			if got := joinContent(pub.snapshot()); got != "abcde" {
				t.Fatalf("published content = %q, want %q", got, "abcde")
			}
		})
	}
}

func TestAppendTurnValidation(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			s := open(t, nil)
			ctx := context.Background()
			p, _ := s.CreatePersona(ctx, samplePersona("Alex"))

			if _, err := s.AppendTurn(ctx, Turn{PersonaID: p.ID, Role: "system", Content: "x"}); !errors.Is(err, ErrInvalidTurn) {
				t.Fatalf("AppendTurn(role=system) error = %v, want ErrInvalidTurn", err)
			}
			if _, err := s.AppendTurn(ctx, Turn{PersonaID: p.ID, Role: RoleUser}); !errors.Is(err, ErrInvalidTurn) {
				t.Fatalf("AppendTurn(empty) error = %v, want ErrInvalidTurn", err)
			}
			if _, err := s.AppendTurn(ctx, Turn{PersonaID: "missing", Role: RoleUser, Content: "x"}); !errors.Is(err, ErrNotFound) {
				t.Fatalf("AppendTurn(missing persona) error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestTopMemoriesRanking(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			s := open(t, nil)
			ctx := context.Background()
			p, _ := s.CreatePersona(ctx, samplePersona("Alex"))

			for _, imp := range []Importance{ImportanceLow, ImportanceHigh, ImportanceMedium} {
				if _, err := s.AddMemory(ctx, Memory{PersonaID: p.ID, Fact: string(imp), Importance: imp}); err != nil {
					t.Fatalf("AddMemory(%s) error = %v", imp, err)
				}
				time.Sleep(2 * time.Millisecond)
			}

			ordinal, err := s.TopMemories(ctx, p.ID, 10, RankingOrdinal)
			if err != nil {
				t.Fatalf("TopMemories(ordinal) error = %v", err)
			}
			if got := joinFacts(ordinal); got != "high,medium,low" {
				t.Fatalf("ordinal = %q, want %q", got, "high,medium,low")
			}

			lexical, err := s.TopMemories(ctx, p.ID, 10, RankingLexical)
			if err != nil {
				t.Fatalf("TopMemories(lexical) error = %v", err)
			}
			if got := joinFacts(lexical); got != "medium,low,high" {
				t.Fatalf("lexical = %q, want %q", got, "medium,low,high")
			}

			limited, err := s.TopMemories(ctx, p.ID, 2, RankingOrdinal)
			if err != nil {
				t.Fatalf("TopMemories(limit=2) error = %v", err)
			}
			if len(limited) != 2 {
				t.Fatalf("len(limited) = %d, want 2", len(limited))
			}
		})
	}
}

func TestAddMemoryTruncatesFact(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			s := open(t, nil)
			ctx := context.Background()
			p, _ := s.CreatePersona(ctx, samplePersona("Alex"))

			m, err := s.AddMemory(ctx, Memory{PersonaID: p.ID, Fact: strings.Repeat("é", 600), Importance: ImportanceLow})
			if err != nil {
				t.Fatalf("AddMemory() error = %v", err)
			}
			if n := len([]rune(m.Fact)); n != MaxFactLength {
				t.Fatalf("fact length = %d, want %d", n, MaxFactLength)
			}
			if _, err := s.AddMemory(ctx, Memory{PersonaID: p.ID, Fact: "x", Importance: "urgent"}); !errors.Is(err, ErrInvalidMemory) {
				t.Fatalf("AddMemory(urgent) error = %v, want ErrInvalidMemory", err)
			}
		})
	}
}

func TestNewStoreSelectsBackend(t *testing.T) {
	ctx := context.Background()
	s, err := NewStore(ctx, "", nil)
	if err != nil {
		t.Fatalf("NewStore(empty) error = %v", err)
	}
	if s.Mode() != "in-memory" {
		t.Fatalf("Mode() = %q, want in-memory", s.Mode())
	}

	path := filepath.Join(t.TempDir(), "data", "amical.db")
	s, err = NewStore(ctx, "sqlite://"+path, nil)
	if err != nil {
		t.Fatalf("NewStore(sqlite) error = %v", err)
	}
	defer s.Close()
	if s.Mode() != "sqlite" {
		t.Fatalf("Mode() = %q, want sqlite", s.Mode())
	}

	if _, err := NewStore(ctx, "mysql://nope", nil); err == nil {
		t.Fatalf("NewStore(mysql) expected error")
	}
}

func TestParseRanking(t *testing.T) {
	cases := []struct {
		in      string
		want    Ranking
		wantErr bool
	}{
		{"", RankingLexical, false},
		{"ordinal", RankingOrdinal, false},
		{" Lexical ", RankingLexical, false},
		{"random", "", true},
	}
	for _, tc := range cases {
		got, err := ParseRanking(tc.in)
		if (err != nil) != tc.wantErr {
			t.Fatalf("ParseRanking(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
		}
		if got != tc.want {
			t.Fatalf("ParseRanking(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := TruncateRunes("héllo", 2); got != "hé" {
		t.Fatalf("TruncateRunes = %q, want %q", got, "hé")
	}
	if got := TruncateRunes("abc", 10); got != "abc" {
		t.Fatalf("TruncateRunes = %q, want %q", got, "abc")
	}
}

func joinContent(turns []Turn) string {
	var b strings.Builder
	for _, t := range turns {
		b.WriteString(t.Content)
	}
	return b.String()
}

func joinFacts(mems []Memory) string {
	parts := make([]string, 0, len(mems))
	for _, m := range mems {
		parts = append(parts, m.Fact)
	}
	return strings.Join(parts, ",")
}
