package testutil

import (
	"context"
	"database/sql/driver"
	"testing"
)

func TestStubRecordsExecsAndServesRows(t *testing.T) {
	ctx := context.Background()
	db, conn := NewStubDB()
	defer func() { _ = db.Close() }()
	conn.Results["FROM store_meta"] = StubRows{Columns: []string{"version"}, Values: [][]driver.Value{{int64(4)}}}

	if _, err := db.ExecContext(ctx, "INSERT INTO t (a) VALUES ($1)", "x"); err != nil {
		t.Fatalf("exec: %v", err)
	}
	if got := conn.ExecsContaining("INSERT INTO t"); len(got) != 1 || conn.ExecArgs[0][0] != "x" {
		t.Fatalf("exec not recorded: %v %v", got, conn.ExecArgs)
	}
	var v int64
	if err := db.QueryRowContext(ctx, "SELECT version FROM store_meta WHERE id = 1").Scan(&v); err != nil || v != 4 {
		t.Fatalf("version = %d (%v)", v, err)
	}

	conn.FailExecContaining = "boom"
	if _, err := db.ExecContext(ctx, "SELECT boom"); err == nil {
		t.Fatal("expected configured exec failure")
	}
}
