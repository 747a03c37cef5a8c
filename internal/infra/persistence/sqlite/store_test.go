package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"immunocore/internal/infra/persistence/storetest"
	"immunocore/pkg/domain"
)

func TestStoreContract(t *testing.T) {
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "cell-count.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	storetest.Run(t, store)
}

func TestReopenKeepsDataAndVersion(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "cell-count.db")
	store, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	records := storetest.Fixtures()
	if err := store.Rebuild(ctx, records, storetest.Frequencies(records)); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	version, err := store.Version(ctx)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	if reopened.Path() != path {
		t.Fatalf("path = %q", reopened.Path())
	}
	got, err := reopened.Version(ctx)
	if err != nil || got != version {
		t.Fatalf("version after reopen = %d (%v), want %d", got, err, version)
	}
	samples, err := reopened.QuerySamples(ctx, domain.NewFilterSpec())
	if err != nil || len(samples) != len(records) {
		t.Fatalf("expected %d samples after reopen, got %d (%v)", len(records), len(samples), err)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestOpenUnwritableLocation(t *testing.T) {
	dir := t.TempDir()
	// a directory cannot be opened as a database file
	_, err := Open(context.Background(), dir)
	if err == nil {
		t.Fatal("expected error opening a directory")
	}
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}
