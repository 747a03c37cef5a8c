package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"immunocore/internal/blob/core"
)

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()
	meta := map[string]string{"format": "json"}
	if _, err := s.Put(ctx, "exp/summary.json", bytes.NewBufferString(`{"ok":true}`), core.PutOptions{ContentType: "application/json", Metadata: meta}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	meta["format"] = "mutated"
	info, rc, err := s.Get(ctx, "exp//summary.json")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	if string(body) != `{"ok":true}` || info.Metadata["format"] != "json" || info.Size != 11 {
		t.Fatalf("unexpected object %q %+v", body, info)
	}
	info.Metadata["format"] = "changed"
	if again, _ := s.Head(ctx, "exp/summary.json"); again.Metadata["format"] != "json" {
		t.Fatal("Head exposed internal metadata map")
	}
	list, _ := s.List(ctx, "exp/")
	if len(list) != 1 || s.Driver() != core.DriverMemory {
		t.Fatalf("List = %+v", list)
	}
	if err := s.Delete(ctx, "exp/summary.json"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Head(ctx, "exp/summary.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Put(ctx, "../x", bytes.NewBufferString(""), core.PutOptions{}); !errors.Is(err, core.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}
