package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TurnNotifyChannel is the LISTEN/NOTIFY channel carrying inserted conversation turns.
const TurnNotifyChannel = "amical_turn_inserted"

// PostgresStore persists personas, turns and memories in PostgreSQL.
// Inserted turns are announced by a trigger on TurnNotifyChannel.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS personas (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			age INTEGER NOT NULL CHECK (age > 0),
			occupation TEXT NOT NULL,
			personality TEXT NOT NULL,
			tone TEXT NOT NULL,
			background TEXT NOT NULL,
			dream TEXT NOT NULL DEFAULT '',
			family_info TEXT NOT NULL DEFAULT '',
			story TEXT NOT NULL DEFAULT '',
			daily_message_time TEXT NOT NULL DEFAULT '18:00',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_personas_created ON personas (created_at DESC);`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			persona_id TEXT NOT NULL REFERENCES personas(id),
			role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_persona_created ON conversations (persona_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			persona_id TEXT NOT NULL REFERENCES personas(id),
			fact TEXT NOT NULL,
			importance TEXT NOT NULL,
			last_mentioned_at TIMESTAMPTZ NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_memories_persona ON memories (persona_id, created_at DESC);`,
		`CREATE OR REPLACE FUNCTION amical_notify_turn() RETURNS trigger AS $$
		BEGIN
			PERFORM pg_notify('` + TurnNotifyChannel + `', json_build_object('id', NEW.id, 'persona_id', NEW.persona_id)::text);
			RETURN NEW;
		END;
		$$ LANGUAGE plpgsql;`,
		`DROP TRIGGER IF EXISTS conversations_notify_insert ON conversations;`,
		`CREATE TRIGGER conversations_notify_insert AFTER INSERT ON conversations
			FOR EACH ROW EXECUTE FUNCTION amical_notify_turn();`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

const personaColumns = `id, name, age, occupation, personality, tone, background, dream, family_info, story,
	daily_message_time, created_at, updated_at`

func (s *PostgresStore) CreatePersona(ctx context.Context, p NewPersona) (Persona, error) {
	if err := p.Check(); err != nil {
		return Persona{}, err
	}
	persona := p.build(uuid.NewString(), time.Now().UTC())

	_, err := s.pool.Exec(ctx,
		`INSERT INTO personas (`+personaColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		persona.ID,
		persona.Name,
		persona.Age,
		persona.Occupation,
		persona.Personality,
		persona.Tone,
		persona.Background,
		persona.Dream,
		persona.FamilyInfo,
		persona.Story,
		persona.DailyMessageTime,
		persona.CreatedAt,
		persona.UpdatedAt,
	)
	if err != nil {
		return Persona{}, fmt.Errorf("insert persona: %w", err)
	}
	return persona, nil
}

func (s *PostgresStore) GetPersona(ctx context.Context, id string) (Persona, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+personaColumns+` FROM personas WHERE id=$1`, id)
	p, err := scanPersona(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Persona{}, ErrNotFound
	}
	if err != nil {
		return Persona{}, fmt.Errorf("get persona: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) ListPersonas(ctx context.Context) ([]Persona, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+personaColumns+` FROM personas ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query personas: %w", err)
	}
	defer rows.Close()

	var out []Persona
	for rows.Next() {
		p, err := scanPersona(rows)
		if err != nil {
			return nil, fmt.Errorf("scan persona row: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate persona rows: %w", err)
	}
	return out, nil
}

func scanPersona(row pgx.Row) (Persona, error) {
	var p Persona
	err := row.Scan(
		&p.ID, &p.Name, &p.Age, &p.Occupation, &p.Personality, &p.Tone, &p.Background,
		&p.Dream, &p.FamilyInfo, &p.Story, &p.DailyMessageTime, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

func (s *PostgresStore) AppendTurn(ctx context.Context, t Turn) (Turn, error) {
	if err := t.check(); err != nil {
		return Turn{}, err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversations (id, persona_id, role, content, created_at) VALUES ($1, $2, $3, $4, $5)`,
		t.ID,
		t.PersonaID,
		string(t.Role),
		t.Content,
		t.CreatedAt,
	)
	if isForeignKeyViolation(err) {
		return Turn{}, ErrNotFound
	}
	if err != nil {
		return Turn{}, fmt.Errorf("insert turn: %w", err)
	}
	return t, nil
}

// GetTurn loads one turn; the realtime listener uses it to resolve notifications.
func (s *PostgresStore) GetTurn(ctx context.Context, id string) (Turn, error) {
	var t Turn
	var role string
	err := s.pool.QueryRow(ctx,
		`SELECT id, persona_id, role, content, created_at FROM conversations WHERE id=$1`, id,
	).Scan(&t.ID, &t.PersonaID, &role, &t.Content, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Turn{}, ErrNotFound
	}
	if err != nil {
		return Turn{}, fmt.Errorf("get turn: %w", err)
	}
	t.Role = Role(role)
	return t, nil
}

func (s *PostgresStore) ListTurns(ctx context.Context, personaID string) ([]Turn, error) {
	return s.queryTurns(ctx,
		`SELECT id, persona_id, role, content, created_at
		 FROM conversations WHERE persona_id=$1 ORDER BY created_at ASC, id ASC`,
		personaID,
	)
}

func (s *PostgresStore) RecentTurns(ctx context.Context, personaID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.queryTurns(ctx,
		`SELECT id, persona_id, role, content, created_at
		 FROM conversations WHERE persona_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2`,
		personaID,
		limit,
	)
}

func (s *PostgresStore) queryTurns(ctx context.Context, sql string, args ...any) ([]Turn, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var items []Turn
	for rows.Next() {
		var t Turn
		var role string
		if err := rows.Scan(&t.ID, &t.PersonaID, &role, &t.Content, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		t.Role = Role(role)
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn rows: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) AddMemory(ctx context.Context, m Memory) (Memory, error) {
	if err := m.normalize(); err != nil {
		return Memory{}, err
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO memories (id, persona_id, fact, importance, last_mentioned_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID,
		m.PersonaID,
		m.Fact,
		string(m.Importance),
		m.LastMentionedAt,
		m.CreatedAt,
	)
	if isForeignKeyViolation(err) {
		return Memory{}, ErrNotFound
	}
	if err != nil {
		return Memory{}, fmt.Errorf("insert memory: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) TopMemories(ctx context.Context, personaID string, limit int, ranking Ranking) ([]Memory, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, persona_id, fact, importance, last_mentioned_at, created_at
		 FROM memories WHERE persona_id=$1 ORDER BY `+ranking.orderClause()+` LIMIT $2`,
		personaID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	items := make([]Memory, 0, limit)
	for rows.Next() {
		var m Memory
		var importance string
		if err := rows.Scan(&m.ID, &m.PersonaID, &m.Fact, &importance, &m.LastMentionedAt, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan memory row: %w", err)
		}
		m.Importance = Importance(importance)
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memory rows: %w", err)
	}
	return items, nil
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

func (s *PostgresStore) Mode() string { return "postgres" }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
