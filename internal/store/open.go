package store

import (
	"context"
	"log"
)

// Backend is a Store that owns a connection and must be closed.
type Backend interface {
	Store
	Close()
}

// Open connects to the backend selected by databaseURL
// (sqlite3://<path> for SQLite, anything else is handed to pgx).
func Open(ctx context.Context, databaseURL string) (Backend, error) {
	if IsSQLite(databaseURL) {
		s, err := NewSQLite(ctx, SQLitePath(databaseURL))
		if err != nil {
			return nil, err
		}
		return sqliteBackend{s}, nil
	}
	p, err := NewPostgres(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	return p, nil
}

type sqliteBackend struct {
	*SQLite
}

func (b sqliteBackend) Close() {
	if err := b.SQLite.Close(); err != nil {
		log.Printf("sqlite close: %v", err)
	}
}
