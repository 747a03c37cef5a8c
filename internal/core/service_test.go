package core

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"testing"
	"time"

	"immunocore/internal/infra/persistence/memory"
	"immunocore/internal/infra/persistence/storetest"
	"immunocore/pkg/domain"
)

func newLoadedService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	svc := NewService(memory.NewStore(), opts...)
	res, err := svc.Load(context.Background(), storetest.Fixtures())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Samples != 5 || res.FrequencyRows != 25 || res.Version == 0 {
		t.Fatalf("unexpected load result %+v", res)
	}
	return svc
}

func TestServiceOverview(t *testing.T) {
	svc := newLoadedService(t)
	rows, err := svc.Overview(context.Background())
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}
	if len(rows) != 25 || rows[0].Sample != "s1" || rows[0].Population != domain.PopulationBCell {
		t.Fatalf("unexpected overview head %+v", rows[0])
	}
	if rows[0].Count != 30 || rows[0].TotalCount != 100 || !approx(rows[0].Percentage, 0.3, 1e-12) {
		t.Fatalf("unexpected s1 b_cell row %+v", rows[0])
	}
}

func TestServiceAnalyze(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newLoadedService(t, WithClock(stubClock{t: now}))
	got, err := svc.Analyze(context.Background(), AnalysisRequest{
		Filter:      domain.FilterSpec{domain.AttrCondition: domain.Equals("melanoma"), domain.AttrTreatment: domain.Equals("miraclib")},
		Populations: []domain.Population{domain.PopulationBCell, domain.PopulationBCell},
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if got.SampleCount != 3 || len(got.Rows) != 3 {
		t.Fatalf("expected s1, s2 and s5, got %d samples and %d rows", got.SampleCount, len(got.Rows))
	}
	if !reflect.DeepEqual(got.Populations, []domain.Population{domain.PopulationBCell}) {
		t.Fatalf("duplicate populations should collapse: %v", got.Populations)
	}
	if got.Filter != "condition = melanoma AND treatment = miraclib" {
		t.Fatalf("filter description %q", got.Filter)
	}
	if !got.GeneratedAt.Equal(now) {
		t.Fatalf("GeneratedAt = %v", got.GeneratedAt)
	}
	if len(got.Summary) != 1 {
		t.Fatalf("expected one summary row, got %d", len(got.Summary))
	}
	b := got.Summary[0]
	if b.NYes != 2 || b.NNo != 1 || !b.PValue.Valid {
		t.Fatalf("unexpected b_cell summary %+v", b)
	}
	if !approx(b.MeanYes.Float64, (0.3+0.125)/2, 1e-12) || !approx(b.MeanNo.Float64, 20.0/90.0, 1e-12) {
		t.Fatalf("unexpected means %+v", b)
	}
	if len(got.QuickStats) != 3 || got.QuickStats[2].N != 3 {
		t.Fatalf("unexpected quick stats %+v", got.QuickStats)
	}
}

func TestServiceAnalyzeEmptySelectionIsNotAnError(t *testing.T) {
	log := &captureLogger{}
	svc := newLoadedService(t, WithLogger(log))
	for name, spec := range map[string]domain.FilterSpec{
		"no match":     {domain.AttrProject: domain.Equals("prj9")},
		"show nothing": {domain.AttrProject: domain.OneOf()},
	} {
		got, err := svc.Analyze(context.Background(), AnalysisRequest{Filter: spec})
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if got.SampleCount != 0 || len(got.Rows) != 0 || len(got.Summary) != 5 {
			t.Fatalf("%s: unexpected analysis %+v", name, got)
		}
		for _, g := range got.Summary {
			if g.PValue.Valid || g.Significant {
				t.Fatalf("%s: p-value computed without data: %+v", name, g)
			}
		}
	}
	if !log.has("d:rank-sum test skipped") {
		t.Fatalf("expected skipped-test debug log, got %v", log.calls)
	}
}

func TestServiceAnalyzeRejectsMalformedRequest(t *testing.T) {
	log := &captureLogger{}
	metrics := &captureMetricsRecorder{}
	svc := newLoadedService(t, WithLogger(log), WithMetricsRecorder(metrics))
	var fe *domain.FilterError
	_, err := svc.Analyze(context.Background(), AnalysisRequest{Filter: domain.FilterSpec{domain.AttrAge: domain.Equals("old")}})
	if !errors.As(err, &fe) || fe.Attribute != domain.AttrAge {
		t.Fatalf("expected age FilterError, got %v", err)
	}
	_, err = svc.Analyze(context.Background(), AnalysisRequest{Populations: []domain.Population{"t_reg"}})
	if !errors.As(err, &fe) {
		t.Fatalf("expected FilterError for unknown population, got %v", err)
	}
	if !log.has("w:operation rejected") || log.has("e:operation failed") {
		t.Fatalf("filter errors should log at warn: %v", log.calls)
	}
	if !metrics.has("analyze", false) {
		t.Fatal("expected failed analyze metric")
	}
}

func TestServiceLoadRejectsBadRecordsAndKeepsStore(t *testing.T) {
	log := &captureLogger{}
	tracer := &captureTracer{}
	svc := newLoadedService(t, WithLogger(log), WithTracer(tracer))
	bad := storetest.Fixtures()
	bad[0].Counts = domain.PopulationCounts{}
	_, err := svc.Load(context.Background(), bad)
	var die *domain.DataIntegrityError
	if !errors.As(err, &die) {
		t.Fatalf("expected DataIntegrityError, got %v", err)
	}
	if !log.has("e:operation failed") {
		t.Fatalf("expected error log, got %v", log.calls)
	}
	last := tracer.ended[len(tracer.ended)-1]
	if last.op != "load" || last.err == nil {
		t.Fatalf("expected failed load span, got %+v", last)
	}
	rows, err := svc.Overview(context.Background())
	if err != nil || len(rows) != 25 {
		t.Fatalf("previous load should survive, got %d rows (%v)", len(rows), err)
	}
}

func TestServiceFilterOptionsAndDistinct(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	svc := newLoadedService(t, WithMetricsRecorder(metrics), WithDistinctCache(NewDistinctCache(32)))
	opts, err := svc.FilterOptions(context.Background())
	if err != nil {
		t.Fatalf("FilterOptions: %v", err)
	}
	if len(opts) != len(domain.Attributes()) {
		t.Fatalf("expected every attribute, got %d", len(opts))
	}
	if !reflect.DeepEqual(opts[domain.AttrSampleType], []string{"PBMC", "WB"}) {
		t.Fatalf("sample types %v", opts[domain.AttrSampleType])
	}
	values, err := svc.DistinctValues(context.Background(), domain.AttrTimeFromTreatmentStart)
	if err != nil || !reflect.DeepEqual(values, []string{"0", "7", "14"}) {
		t.Fatalf("times = %v (%v)", values, err)
	}
	if !metrics.has("filter_options", true) || !metrics.has("distinct_values", true) || !metrics.has("load", true) {
		t.Fatalf("missing metrics: %+v", metrics.calls)
	}
}

func TestAnalyzeRecordsMatchesService(t *testing.T) {
	svc := newLoadedService(t)
	req := AnalysisRequest{Filter: domain.FilterSpec{domain.AttrSex: domain.Equals("F")}}
	fromStore, err := svc.Analyze(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	records := storetest.Fixtures()
	sort.Slice(records, func(i, j int) bool { return records[i].Sample < records[j].Sample })
	inMemory, err := AnalyzeRecords(records, req, fromStore.GeneratedAt)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(fromStore, inMemory) {
		t.Fatalf("store and in-memory pipelines disagree:\n%+v\n%+v", fromStore, inMemory)
	}
}
