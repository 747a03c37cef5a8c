// Package sqlite provides the embedded SQLite record store (default backend).
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"immunocore/internal/entitymodel/sqlbundle"
	"immunocore/internal/infra/persistence/sqlfilter"
	"immunocore/internal/infra/persistence/sqlstore"
	"immunocore/pkg/domain"
)

const driverName = "sqlite"

// Store is a SQLite-backed domain.RecordStore.
type Store struct {
	*sqlstore.Store
	path string
}

var _ domain.RecordStore = (*Store)(nil)

// Open opens or creates the database file at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite path required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open(driverName, path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer at a time; rebuilds hold the only connection
	db.SetMaxOpenConns(1)
	inner, err := sqlstore.Open(ctx, db, sqlstore.Dialect{
		Name:        driverName,
		DDL:         sqlbundle.SQLite(),
		Placeholder: sqlfilter.Question,
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: inner, path: path}, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }
