package history

import (
	"fmt"
	"os"
	"strings"
)

// Options selects a history backend.
type Options struct {
	// Backend is one of memory, sqlite, bolt or supabase.
	Backend string
	// DSN is the SQLite data source or the bbolt file path.
	DSN         string
	SupabaseURL string
	SupabaseKey string
}

// Open builds the configured Store.
func Open(opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		dsn := opts.DSN
		if dsn == "" {
			if err := os.MkdirAll("data", 0o755); err != nil {
				return nil, fmt.Errorf("history: mkdir data: %w", err)
			}
			dsn = "file:data/history.db?_foreign_keys=on"
		}
		return NewSQLiteStore(dsn)
	case "bolt":
		path := opts.DSN
		if path == "" {
			path = "data/history.bolt"
		}
		return NewBoltStore(path)
	case "supabase":
		return NewSupabaseStore(opts.SupabaseURL, opts.SupabaseKey)
	default:
		return nil, fmt.Errorf("history: unknown backend %q", opts.Backend)
	}
}
