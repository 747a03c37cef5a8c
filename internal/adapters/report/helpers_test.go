package report

import (
	"context"
	"testing"
	"time"

	"immunocore/internal/core"
	"immunocore/internal/infra/persistence/memory"
	"immunocore/internal/infra/persistence/storetest"
	"immunocore/pkg/domain"
)

func loadedService(t *testing.T) *core.Service {
	t.Helper()
	svc := core.NewService(memory.NewStore(), core.WithClock(core.ClockFunc(func() time.Time {
		return time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	})))
	if _, err := svc.Load(context.Background(), storetest.Fixtures()); err != nil {
		t.Fatalf("load fixtures: %v", err)
	}
	return svc
}

// failingService returns err from every call.
type failingService struct{ err error }

func (f failingService) Analyze(context.Context, core.AnalysisRequest) (core.Analysis, error) {
	return core.Analysis{}, f.err
}

func (f failingService) Overview(context.Context) ([]domain.OverviewRow, error) { return nil, f.err }

func (f failingService) FilterOptions(context.Context) (map[domain.Attribute][]string, error) {
	return nil, f.err
}

func waitForExport(t *testing.T, s ExportScheduler, id string) ExportRecord {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec, ok := s.GetExport(id)
		if ok && (rec.Status == ExportStatusSucceeded || rec.Status == ExportStatusFailed) {
			return rec
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("export %s did not finish", id)
	return ExportRecord{}
}
