package core

import (
	"errors"
	"testing"
)

func TestCleanKey(t *testing.T) {
	ok := map[string]string{
		"exports/a.csv":       "exports/a.csv",
		"exports//b/./c.json": "exports/b/c.json",
		"exports/x/../y.png":  "exports/y.png",
	}
	for in, want := range ok {
		got, err := CleanKey(in)
		if err != nil || got != want {
			t.Fatalf("CleanKey(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	for _, bad := range []string{"", "  ", "/etc/passwd", "../secret", "a/../../b", "..", `a\b`} {
		if _, err := CleanKey(bad); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("CleanKey(%q) should fail with ErrInvalidKey, got %v", bad, err)
		}
	}
}

func TestCloneMetadata(t *testing.T) {
	if CloneMetadata(nil) != nil {
		t.Fatal("nil should stay nil")
	}
	in := map[string]string{"a": "1"}
	out := CloneMetadata(in)
	out["a"] = "2"
	if in["a"] != "1" {
		t.Fatal("clone shares storage")
	}
}
