package report

import (
	"context"
	"strings"
	"testing"
	"time"

	"gopkg.in/guregu/null.v3"

	"immunocore/internal/core"
	"immunocore/internal/infra/blob/fs"
	"immunocore/pkg/domain"
)

func sampleAnalysis() core.Analysis {
	return core.Analysis{
		Filter:      "All",
		Populations: []domain.Population{domain.PopulationBCell, domain.PopulationNKCell},
		SampleCount: 2,
		Summary: []domain.GroupSummary{
			{Population: domain.PopulationBCell, NYes: 1, NNo: 1, MeanYes: null.FloatFrom(0.2), MeanNo: null.FloatFrom(0.5), PValue: null.FloatFrom(1)},
			{Population: domain.PopulationNKCell, NYes: 1},
		},
		GeneratedAt: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC),
	}
}

func TestParseFormats(t *testing.T) {
	got, err := ParseFormats([]string{"PNG", " csv", "png"})
	if err != nil {
		t.Fatalf("ParseFormats: %v", err)
	}
	if len(got) != 2 || got[0] != FormatPNG || got[1] != FormatCSV {
		t.Fatalf("unexpected formats %v", got)
	}
	if got, _ := ParseFormats(nil); len(got) != len(DefaultFormats) {
		t.Fatalf("expected defaults, got %v", got)
	}
	if _, err := ParseFormats([]string{"xlsx"}); err == nil {
		t.Fatal("expected unsupported format error")
	}
}

func TestRenderCSVLeavesNullsEmpty(t *testing.T) {
	art, err := Render(FormatCSV, sampleAnalysis())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(art.Payload)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and two rows, got %q", art.Payload)
	}
	if lines[1] != "b_cell,1,1,0.2,0.5,,,,,1,false" {
		t.Fatalf("unexpected b_cell row %q", lines[1])
	}
	if lines[2] != "nk_cell,1,0,,,,,,,,false" {
		t.Fatalf("unexpected nk_cell row %q", lines[2])
	}
}

func TestRenderJSONAndPNG(t *testing.T) {
	art, err := Render(FormatJSON, sampleAnalysis())
	if err != nil {
		t.Fatalf("Render json: %v", err)
	}
	if !strings.Contains(string(art.Payload), `"p_value": null`) || art.ContentType != "application/json" {
		t.Fatalf("unexpected json artifact %s", art.Payload)
	}
	art, err = Render(FormatPNG, sampleAnalysis())
	if err != nil {
		t.Fatalf("Render png: %v", err)
	}
	if !strings.HasPrefix(string(art.Payload), "\x89PNG") {
		t.Fatalf("expected png signature")
	}
	if _, err := Render(FormatPNG, core.Analysis{}); err == nil {
		t.Fatal("expected error charting no populations")
	}
	if _, err := Render("xlsx", sampleAnalysis()); err == nil {
		t.Fatal("expected unsupported format error")
	}
}

func TestWriteArtifactsToFilesystem(t *testing.T) {
	store, err := fs.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	arts, err := WriteArtifacts(context.Background(), store, "run-1", sampleAnalysis(), []Format{FormatCSV, FormatJSON})
	if err != nil {
		t.Fatalf("WriteArtifacts: %v", err)
	}
	if len(arts) != 2 || arts[0].Key != "run-1/summary.csv" || arts[1].Key != "run-1/analysis.json" {
		t.Fatalf("unexpected artifacts %+v", arts)
	}
	if arts[0].SizeBytes == 0 || arts[0].URL != "" {
		t.Fatalf("unexpected csv artifact %+v", arts[0])
	}
	listed, err := store.List(context.Background(), "run-1/")
	if err != nil || len(listed) != 2 {
		t.Fatalf("expected 2 stored objects, got %v (%v)", listed, err)
	}
}
