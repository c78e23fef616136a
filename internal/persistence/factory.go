package persistence

import (
	"context"
	"fmt"
	"strings"
)

// NewStore picks a backend from url: empty or memory:// keeps snapshots in
// process, postgres:// and redis:// use those servers, sqlite:// (or a bare
// path ending in .db) uses a local database file.
func NewStore(ctx context.Context, url string) (Store, error) {
	url = strings.TrimSpace(url)
	lower := strings.ToLower(url)
	switch {
	case url == "", strings.HasPrefix(lower, "memory://"):
		return NewInMemoryStore(), nil
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return NewPostgresStore(ctx, url)
	case strings.HasPrefix(lower, "redis://"), strings.HasPrefix(lower, "rediss://"):
		return NewRedisStore(ctx, url)
	case strings.HasPrefix(lower, "sqlite://"):
		return NewSQLiteStore(ctx, url[len("sqlite://"):])
	case strings.HasSuffix(lower, ".db"):
		return NewSQLiteStore(ctx, url)
	default:
		return nil, fmt.Errorf("unsupported persistence url %q", url)
	}
}

// Mode names the backend behind s for health output.
func Mode(s Store) string {
	switch s.(type) {
	case *InMemoryStore:
		return "memory"
	case *PostgresStore:
		return "postgres"
	case *RedisStore:
		return "redis"
	case *SQLiteStore:
		return "sqlite"
	case nil:
		return "disabled"
	default:
		return "custom"
	}
}
