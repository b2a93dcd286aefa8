package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"
)

// NewSQLiteStore opens (creating if needed) a SQLite database file and
// ensures the schema exists.
//
// Parameters:
//   - ctx: Context for schema initialization
//   - path: Filesystem path of the database file
//   - log: Logger for store operations
//
// Returns:
//   - Initialized store or error if the database cannot be opened
func NewSQLiteStore(ctx context.Context, path string, log *slog.Logger) (*SQLStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(on)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	store := NewSQLiteStoreWithDB(db, log)
	if err := store.InitSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	log.Info("Opened sqlite store", slog.String("path", path))
	return store, nil
}

// NewSQLiteStoreWithDB wraps an existing SQLite handle without touching the schema.
func NewSQLiteStoreWithDB(db *sql.DB, log *slog.Logger) *SQLStore {
	return newSQLStore(db, sqliteDialect, log)
}
