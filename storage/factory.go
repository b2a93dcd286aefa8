package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ruteri/form-intake-backend/interfaces"
)

// StoreFactory creates stores from location URIs.
type StoreFactory struct {
	log *slog.Logger
}

// NewStoreFactory creates a new factory instance.
func NewStoreFactory(logger *slog.Logger) *StoreFactory {
	return &StoreFactory{log: logger}
}

// StoreFor creates a store from a location URI.
// The URI format should be [scheme]://[auth@]host[:port][/path][?params]
//
// Supported schemes:
//   - memory:// - In-process store, contents are lost on restart
//   - sqlite://path/to/file.db or sqlite:///abs/path.db - Local SQLite database
//   - postgres:// or postgresql:// - PostgreSQL, the URI is passed to the driver as is
func (sf *StoreFactory) StoreFor(ctx context.Context, loc interfaces.StoreLocation) (interfaces.Store, error) {
	switch {
	case loc.IsMemory():
		sf.log.Debug("Creating memory store")
		return NewMemoryStore(sf.log), nil
	case loc.IsSQLite():
		return sf.createSQLiteStore(ctx, loc)
	case loc.IsPostgres():
		sf.log.Debug("Creating postgres store", slog.String("host", loc.Host))
		return NewPostgresStore(ctx, loc.Raw, sf.log)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", interfaces.ErrInvalidLocationURI, loc.Scheme)
	}
}

// createSQLiteStore resolves the database path from host and path.
// sqlite://data/intake.db is relative, sqlite:///var/lib/intake.db is absolute.
func (sf *StoreFactory) createSQLiteStore(ctx context.Context, loc interfaces.StoreLocation) (interfaces.Store, error) {
	path := loc.Path
	if loc.Host != "" {
		path = loc.Host + "/" + strings.TrimPrefix(path, "/")
		path = strings.TrimSuffix(path, "/")
	}
	if path == "" {
		return nil, fmt.Errorf("%w: empty path in sqlite URI %s", interfaces.ErrInvalidLocationURI, loc.Raw)
	}

	sf.log.Debug("Creating sqlite store", slog.String("path", path))
	return NewSQLiteStore(ctx, path, sf.log)
}
