package store

import (
	"context"
	"fmt"
	"strings"
)

// NewStore picks a backend from the database URL:
// empty -> in-memory, postgres(ql):// -> PostgreSQL, sqlite:// or *.db -> SQLite.
func NewStore(ctx context.Context, databaseURL string, pub Publisher) (Store, error) {
	url := strings.TrimSpace(databaseURL)
	lower := strings.ToLower(url)
	switch {
	case url == "":
		return NewInMemoryStore(pub), nil
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return NewPostgresStore(ctx, url)
	case strings.HasPrefix(lower, "sqlite://"):
		return NewSQLiteStore(ctx, url[len("sqlite://"):], pub)
	case strings.HasSuffix(lower, ".db"), strings.HasSuffix(lower, ".sqlite"):
		return NewSQLiteStore(ctx, url, pub)
	default:
		return nil, fmt.Errorf("unsupported DATABASE_URL scheme %q", url)
	}
}
