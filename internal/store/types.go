package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Role identifies who authored a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Importance is the coarse weight attached to a memory.
type Importance string

const (
	ImportanceLow    Importance = "low"
	ImportanceMedium Importance = "medium"
	ImportanceHigh   Importance = "high"
)

// Ordinal maps importance onto {low:0, medium:1, high:2}. Unknown values rank below low.
func (i Importance) Ordinal() int {
	switch i {
	case ImportanceHigh:
		return 2
	case ImportanceMedium:
		return 1
	case ImportanceLow:
		return 0
	default:
		return -1
	}
}

func (i Importance) Valid() bool {
	return i.Ordinal() >= 0
}

// Ranking selects how memories are ordered when the top N are retrieved.
type Ranking string

const (
	// RankingOrdinal orders high > medium > low.
	RankingOrdinal Ranking = "ordinal"
	// RankingLexical orders by the raw string descending (medium > low > high),
	// which is what a plain ORDER BY importance DESC produces.
	RankingLexical Ranking = "lexical"

	// DefaultRanking keeps the ordering existing conversations were built with.
	DefaultRanking = RankingLexical
)

func ParseRanking(v string) (Ranking, error) {
	switch Ranking(strings.ToLower(strings.TrimSpace(v))) {
	case "":
		return DefaultRanking, nil
	case RankingOrdinal:
		return RankingOrdinal, nil
	case RankingLexical:
		return RankingLexical, nil
	default:
		return "", fmt.Errorf("unsupported memory ranking %q (expected ordinal|lexical)", v)
	}
}

// Before reports whether a ranks strictly ahead of b.
func (r Ranking) Before(a, b Importance) bool {
	if r == RankingLexical {
		return string(a) > string(b)
	}
	return a.Ordinal() > b.Ordinal()
}

// orderClause is the SQL ORDER BY used by the relational backends.
func (r Ranking) orderClause() string {
	if r == RankingLexical {
		return `importance DESC, created_at DESC`
	}
	return `CASE importance WHEN 'high' THEN 2 WHEN 'medium' THEN 1 WHEN 'low' THEN 0 ELSE -1 END DESC, created_at DESC`
}

// MaxFactLength bounds a stored memory fact, in characters.
const MaxFactLength = 500

// DefaultDailyMessageTime is stored on personas created without an explicit time.
const DefaultDailyMessageTime = "18:00"

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidPersona = errors.New("invalid persona")
	ErrInvalidTurn    = errors.New("invalid turn")
	ErrInvalidMemory  = errors.New("invalid memory")
)

// Persona is an AI friend with fixed biographical fields.
type Persona struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Age              int       `json:"age"`
	Occupation       string    `json:"occupation"`
	Personality      string    `json:"personality"`
	Tone             string    `json:"tone"`
	Background       string    `json:"background"`
	Dream            string    `json:"dream,omitempty"`
	FamilyInfo       string    `json:"family_info,omitempty"`
	Story            string    `json:"story,omitempty"`
	DailyMessageTime string    `json:"daily_message_time"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// NewPersona is the insert payload for a persona.
type NewPersona struct {
	Name             string `json:"name"`
	Age              int    `json:"age"`
	Occupation       string `json:"occupation"`
	Personality      string `json:"personality"`
	Tone             string `json:"tone"`
	Background       string `json:"background"`
	Dream            string `json:"dream,omitempty"`
	FamilyInfo       string `json:"family_info,omitempty"`
	Story            string `json:"story,omitempty"`
	DailyMessageTime string `json:"daily_message_time,omitempty"`
}

// Check enforces the creation invariants every backend relies on.
func (p NewPersona) Check() error {
	required := []struct {
		field string
		value string
	}{
		{"name", p.Name},
		{"occupation", p.Occupation},
		{"personality", p.Personality},
		{"tone", p.Tone},
		{"background", p.Background},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalidPersona, r.field)
		}
	}
	if p.Age <= 0 {
		return fmt.Errorf("%w: age must be positive", ErrInvalidPersona)
	}
	return nil
}

func (p NewPersona) build(id string, now time.Time) Persona {
	daily := strings.TrimSpace(p.DailyMessageTime)
	if daily == "" {
		daily = DefaultDailyMessageTime
	}
	return Persona{
		ID:               id,
		Name:             strings.TrimSpace(p.Name),
		Age:              p.Age,
		Occupation:       strings.TrimSpace(p.Occupation),
		Personality:      strings.TrimSpace(p.Personality),
		Tone:             strings.TrimSpace(p.Tone),
		Background:       strings.TrimSpace(p.Background),
		Dream:            strings.TrimSpace(p.Dream),
		FamilyInfo:       strings.TrimSpace(p.FamilyInfo),
		Story:            strings.TrimSpace(p.Story),
		DailyMessageTime: daily,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Turn is one immutable conversation entry.
type Turn struct {
	ID        string    `json:"id"`
	PersonaID string    `json:"persona_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func (t Turn) check() error {
	if strings.TrimSpace(t.PersonaID) == "" {
		return fmt.Errorf("%w: persona_id is required", ErrInvalidTurn)
	}
	if !t.Role.Valid() {
		return fmt.Errorf("%w: role %q", ErrInvalidTurn, t.Role)
	}
	if t.Content == "" {
		return fmt.Errorf("%w: content is required", ErrInvalidTurn)
	}
	return nil
}

// Memory is a fact remembered about the conversation with a persona.
type Memory struct {
	ID              string     `json:"id"`
	PersonaID       string     `json:"persona_id"`
	Fact            string     `json:"fact"`
	Importance      Importance `json:"importance"`
	LastMentionedAt *time.Time `json:"last_mentioned_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func (m *Memory) normalize() error {
	if strings.TrimSpace(m.PersonaID) == "" {
		return fmt.Errorf("%w: persona_id is required", ErrInvalidMemory)
	}
	if m.Fact == "" {
		return fmt.Errorf("%w: fact is required", ErrInvalidMemory)
	}
	if !m.Importance.Valid() {
		return fmt.Errorf("%w: importance %q", ErrInvalidMemory, m.Importance)
	}
	m.Fact = TruncateRunes(m.Fact, MaxFactLength)
	return nil
}

// TruncateRunes returns the first n characters of s.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// Publisher receives turns after they are committed.
type Publisher interface {
	Publish(turn Turn)
}

// Store persists personas, conversation turns and memories.
type Store interface {
	CreatePersona(ctx context.Context, p NewPersona) (Persona, error)
	GetPersona(ctx context.Context, id string) (Persona, error)
	// ListPersonas returns personas newest first.
	ListPersonas(ctx context.Context) ([]Persona, error)

	AppendTurn(ctx context.Context, t Turn) (Turn, error)
	// ListTurns returns the full history oldest first.
	ListTurns(ctx context.Context, personaID string) ([]Turn, error)
	// RecentTurns returns at most limit turns, newest first.
	RecentTurns(ctx context.Context, personaID string, limit int) ([]Turn, error)

	AddMemory(ctx context.Context, m Memory) (Memory, error)
	TopMemories(ctx context.Context, personaID string, limit int, ranking Ranking) ([]Memory, error)

	Mode() string
	Close() error
}
