package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Fixed-width UTC timestamps keep TEXT ordering identical to time ordering.
const sqliteTimeFormat = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore is a single-file store for running without a database server.
type SQLiteStore struct {
	db *sql.DB
	// writeMu serializes turn inserts with their publication.
	writeMu sync.Mutex
	pub     Publisher
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(ctx context.Context, dbPath string, pub Publisher) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{db: db, pub: pub}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS personas (
		id                 TEXT PRIMARY KEY,
		name               TEXT NOT NULL,
		age                INTEGER NOT NULL CHECK (age > 0),
		occupation         TEXT NOT NULL,
		personality        TEXT NOT NULL,
		tone               TEXT NOT NULL,
		background         TEXT NOT NULL,
		dream              TEXT NOT NULL DEFAULT '',
		family_info        TEXT NOT NULL DEFAULT '',
		story              TEXT NOT NULL DEFAULT '',
		daily_message_time TEXT NOT NULL DEFAULT '18:00',
		created_at         TEXT NOT NULL,
		updated_at         TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_personas_created ON personas(created_at DESC);

	CREATE TABLE IF NOT EXISTS conversations (
		id         TEXT PRIMARY KEY,
		persona_id TEXT NOT NULL REFERENCES personas(id),
		role       TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
		content    TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_persona_created ON conversations(persona_id, created_at);

	CREATE TABLE IF NOT EXISTS memories (
		id                TEXT PRIMARY KEY,
		persona_id        TEXT NOT NULL REFERENCES personas(id),
		fact              TEXT NOT NULL,
		importance        TEXT NOT NULL,
		last_mentioned_at TEXT,
		created_at        TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_memories_persona ON memories(persona_id, created_at DESC);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeFormat)
}

func parseTime(v string) (time.Time, error) {
	t, err := time.Parse(sqliteTimeFormat, v)
	if err != nil {
		return time.Parse(time.RFC3339Nano, v)
	}
	return t, nil
}

func (s *SQLiteStore) CreatePersona(ctx context.Context, p NewPersona) (Persona, error) {
	if err := p.Check(); err != nil {
		return Persona{}, err
	}
	persona := p.build(uuid.NewString(), time.Now().UTC())

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO personas (id, name, age, occupation, personality, tone, background, dream, family_info, story,
			daily_message_time, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		persona.ID, persona.Name, persona.Age, persona.Occupation, persona.Personality, persona.Tone,
		persona.Background, persona.Dream, persona.FamilyInfo, persona.Story, persona.DailyMessageTime,
		formatTime(persona.CreatedAt), formatTime(persona.UpdatedAt),
	)
	if err != nil {
		return Persona{}, fmt.Errorf("insert persona: %w", err)
	}
	return persona, nil
}

const sqlitePersonaSelect = `SELECT id, name, age, occupation, personality, tone, background, dream, family_info, story,
	daily_message_time, created_at, updated_at FROM personas`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLitePersona(row rowScanner) (Persona, error) {
	var p Persona
	var created, updated string
	if err := row.Scan(&p.ID, &p.Name, &p.Age, &p.Occupation, &p.Personality, &p.Tone, &p.Background,
		&p.Dream, &p.FamilyInfo, &p.Story, &p.DailyMessageTime, &created, &updated); err != nil {
		return Persona{}, err
	}
	var err error
	if p.CreatedAt, err = parseTime(created); err != nil {
		return Persona{}, fmt.Errorf("parse created_at: %w", err)
	}
	if p.UpdatedAt, err = parseTime(updated); err != nil {
		return Persona{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) GetPersona(ctx context.Context, id string) (Persona, error) {
	p, err := scanSQLitePersona(s.db.QueryRowContext(ctx, sqlitePersonaSelect+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Persona{}, ErrNotFound
	}
	if err != nil {
		return Persona{}, fmt.Errorf("get persona: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) ListPersonas(ctx context.Context) ([]Persona, error) {
	rows, err := s.db.QueryContext(ctx, sqlitePersonaSelect+` ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("query personas: %w", err)
	}
	defer rows.Close()

	var out []Persona
	for rows.Next() {
		p, err := scanSQLitePersona(rows)
		if err != nil {
			return nil, fmt.Errorf("scan persona row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AppendTurn(ctx context.Context, t Turn) (Turn, error) {
	if err := t.check(); err != nil {
		return Turn{}, err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM personas WHERE id = ?`, t.PersonaID).Scan(&exists)
	if err != nil {
		return Turn{}, fmt.Errorf("check persona: %w", err)
	}
	if exists == 0 {
		return Turn{}, ErrNotFound
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, persona_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.PersonaID, string(t.Role), t.Content, formatTime(t.CreatedAt),
	)
	if err != nil {
		return Turn{}, fmt.Errorf("insert turn: %w", err)
	}
	if s.pub != nil {
		s.pub.Publish(t)
	}
	return t, nil
}

func (s *SQLiteStore) ListTurns(ctx context.Context, personaID string) ([]Turn, error) {
	return s.queryTurns(ctx,
		`SELECT id, persona_id, role, content, created_at FROM conversations
		 WHERE persona_id = ? ORDER BY created_at ASC, rowid ASC`,
		personaID,
	)
}

func (s *SQLiteStore) RecentTurns(ctx context.Context, personaID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.queryTurns(ctx,
		`SELECT id, persona_id, role, content, created_at FROM conversations
		 WHERE persona_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		personaID, limit,
	)
}

func (s *SQLiteStore) queryTurns(ctx context.Context, query string, args ...any) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var out []Turn
	for rows.Next() {
		var t Turn
		var role, created string
		if err := rows.Scan(&t.ID, &t.PersonaID, &role, &t.Content, &created); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		t.Role = Role(role)
		if t.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AddMemory(ctx context.Context, m Memory) (Memory, error) {
	if err := m.normalize(); err != nil {
		return Memory{}, err
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM personas WHERE id = ?`, m.PersonaID).Scan(&exists); err != nil {
		return Memory{}, fmt.Errorf("check persona: %w", err)
	}
	if exists == 0 {
		return Memory{}, ErrNotFound
	}

	var lastMentioned sql.NullString
	if m.LastMentionedAt != nil {
		lastMentioned = sql.NullString{String: formatTime(*m.LastMentionedAt), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memories (id, persona_id, fact, importance, last_mentioned_at, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.PersonaID, m.Fact, string(m.Importance), lastMentioned, formatTime(m.CreatedAt),
	)
	if err != nil {
		return Memory{}, fmt.Errorf("insert memory: %w", err)
	}
	return m, nil
}

func (s *SQLiteStore) TopMemories(ctx context.Context, personaID string, limit int, ranking Ranking) ([]Memory, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, persona_id, fact, importance, last_mentioned_at, created_at FROM memories
		 WHERE persona_id = ? ORDER BY `+ranking.orderClause()+`, rowid DESC LIMIT ?`,
		personaID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	var out []Memory
	for rows.Next() {
		var m Memory
		var importance, created string
		var lastMentioned sql.NullString
		if err := rows.Scan(&m.ID, &m.PersonaID, &m.Fact, &importance, &lastMentioned, &created); err != nil {
			return nil, fmt.Errorf("scan memory row: %w", err)
		}
		m.Importance = Importance(importance)
		if m.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		if lastMentioned.Valid && strings.TrimSpace(lastMentioned.String) != "" {
			ts, err := parseTime(lastMentioned.String)
			if err != nil {
				return nil, fmt.Errorf("parse last_mentioned_at: %w", err)
			}
			m.LastMentionedAt = &ts
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Mode() string { return "sqlite" }

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
