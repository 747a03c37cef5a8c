// Package postgres provides the PostgreSQL record store.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"immunocore/internal/entitymodel/sqlbundle"
	"immunocore/internal/infra/persistence/sqlfilter"
	"immunocore/internal/infra/persistence/sqlstore"
	"immunocore/pkg/domain"
)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/immunocore?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store is a PostgreSQL-backed domain.RecordStore.
type Store struct {
	*sqlstore.Store
}

var _ domain.RecordStore = (*Store)(nil)

// Open connects using dsn (or the local default) and applies the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, &domain.StoreUnavailableError{Driver: "postgres", Err: fmt.Errorf("open: %w", err)}
	}
	inner, err := sqlstore.Open(ctx, db, Dialect())
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: inner}, nil
}

// Dialect describes PostgreSQL to the shared SQL store.
func Dialect() sqlstore.Dialect {
	return sqlstore.Dialect{Name: "postgres", DDL: sqlbundle.Postgres(), Placeholder: sqlfilter.Dollar}
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
