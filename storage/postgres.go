package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
)

// NewPostgresStore connects to PostgreSQL and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string, log *slog.Logger) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	store := NewPostgresStoreWithDB(db, log)
	if err := store.InitSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	log.Info("Connected to postgres store")
	return store, nil
}

// NewPostgresStoreWithDB wraps an existing PostgreSQL handle without touching the schema.
func NewPostgresStoreWithDB(db *sql.DB, log *slog.Logger) *SQLStore {
	return newSQLStore(db, postgresDialect, log)
}
