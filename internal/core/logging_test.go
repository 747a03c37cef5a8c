package core

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestLogrusLoggerFields(t *testing.T) {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)
	logger := NewLogrusLogger(base)

	logger.Info("operation completed", "operation", "load", "samples", 3)
	logger.Warn("operation rejected", "operation", "analyze", "dangling")
	logger.Debug("rank-sum test skipped")
	logger.Error("operation failed")

	entries := hook.AllEntries()
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
	if entries[0].Level != logrus.InfoLevel || entries[0].Data["operation"] != "load" || entries[0].Data["samples"] != 3 {
		t.Fatalf("unexpected info entry %+v", entries[0])
	}
	if entries[1].Level != logrus.WarnLevel || entries[1].Data["!BADKEY"] != "dangling" {
		t.Fatalf("unexpected warn entry %+v", entries[1].Data)
	}
	if entries[2].Level != logrus.DebugLevel || len(entries[2].Data) != 0 {
		t.Fatalf("unexpected debug entry %+v", entries[2])
	}
	if entries[3].Level != logrus.ErrorLevel {
		t.Fatalf("unexpected error entry %+v", entries[3])
	}
}

func TestNewLogrusLoggerDefaultsToStandard(t *testing.T) {
	if l := NewLogrusLogger(nil); l.base != logrus.StandardLogger() {
		t.Fatalf("expected standard logger")
	}
}

func TestNewCommandLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewCommandLogger(&buf, "warn")
	if err != nil {
		t.Fatalf("NewCommandLogger: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown")
	if out := buf.String(); strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("unexpected output %q", out)
	}
	if logger, err = NewCommandLogger(&buf, ""); err != nil || logger.GetLevel() != logrus.InfoLevel {
		t.Fatalf("expected info default, got %v %v", logger, err)
	}
	if _, err := NewCommandLogger(&buf, "chatty"); err == nil {
		t.Fatal("expected level parse error")
	}
}
