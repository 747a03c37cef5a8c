package core

import (
	"context"
	"errors"
	"fmt"

	"immunocore/internal/infra/persistence/memory"
	"immunocore/internal/infra/persistence/postgres"
	"immunocore/internal/infra/persistence/sqlite"
	"immunocore/pkg/domain"
)

// OpenRecordStore opens the backend selected by cfg. Connection and schema
// failures are reported as *domain.StoreUnavailableError.
func OpenRecordStore(ctx context.Context, cfg StorageConfig) (domain.RecordStore, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = StorageSQLite
	}
	var (
		store domain.RecordStore
		err   error
	)
	switch driver {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		path := cfg.SQLitePath
		if path == "" {
			path = DefaultSQLitePath
		}
		store, err = sqlite.Open(ctx, path)
	case StoragePostgres:
		store, err = postgres.Open(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
	if err != nil {
		var unavailable *domain.StoreUnavailableError
		if errors.As(err, &unavailable) {
			return nil, err
		}
		return nil, &domain.StoreUnavailableError{Driver: string(driver), Err: err}
	}
	return store, nil
}
