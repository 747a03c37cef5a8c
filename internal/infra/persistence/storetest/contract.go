// Package storetest holds the behavioural contract every domain.RecordStore
// backend is tested against.
package storetest

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"testing"

	"gopkg.in/guregu/null.v3"

	"immunocore/pkg/domain"
)

// Fixtures returns five samples in non-sorted order. s4 has no treatment
// or response.
func Fixtures() []domain.SampleRecord {
	rec := func(sample, project, subject, condition string, age int, sex, treatment, response, sampleType string, t int, b int64) domain.SampleRecord {
		r := domain.SampleRecord{
			Project: project, Subject: subject, Condition: condition, Age: age, Sex: sex,
			Sample: sample, SampleType: sampleType, TimeFromTreatmentStart: t,
			Counts: domain.PopulationCounts{BCell: b, CD8TCell: 20, CD4TCell: 30, NKCell: 15, Monocyte: 5},
		}
		if treatment != "" {
			r.Treatment = null.StringFrom(treatment)
		}
		if response != "" {
			r.Response = null.StringFrom(response)
		}
		return r
	}
	return []domain.SampleRecord{
		rec("s3", "prj2", "sbj3", "carcinoma", 55, "F", "phauximab", "yes", "WB", 14, 40),
		rec("s1", "prj1", "sbj1", "melanoma", 70, "F", "miraclib", "yes", "PBMC", 0, 30),
		rec("s5", "prj3", "sbj5", "melanoma", 62, "F", "miraclib", "yes", "PBMC", 0, 10),
		rec("s2", "prj1", "sbj2", "melanoma", 9, "M", "miraclib", "no", "PBMC", 7, 20),
		rec("s4", "prj2", "sbj4", "healthy", 40, "M", "", "", "PBMC", 0, 30),
	}
}

// Frequencies derives the five frequency rows of each record.
func Frequencies(records []domain.SampleRecord) []domain.FrequencyRow {
	var out []domain.FrequencyRow
	for _, r := range records {
		total := r.Counts.Total()
		for _, p := range domain.Populations() {
			c := r.Counts.Get(p)
			out = append(out, domain.FrequencyRow{Sample: r.Sample, TotalCount: total, Population: p, Count: c, Percentage: float64(c) / float64(total)})
		}
	}
	return out
}

// Run exercises store, which must be empty.
func Run(t *testing.T, store domain.RecordStore) {
	t.Helper()
	ctx := context.Background()

	v0, err := store.Version(ctx)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if got := querySampleIDs(t, store, domain.NewFilterSpec()); len(got) != 0 {
		t.Fatalf("expected empty store, got %v", got)
	}

	records := Fixtures()
	if err := store.Rebuild(ctx, records, Frequencies(records)); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	v1, err := store.Version(ctx)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if v1 <= v0 {
		t.Fatalf("version did not advance: %d -> %d", v0, v1)
	}

	t.Run("query", func(t *testing.T) {
		cases := []struct {
			name string
			spec domain.FilterSpec
			want []string
		}{
			{"all ordered by sample", domain.NewFilterSpec(), []string{"s1", "s2", "s3", "s4", "s5"}},
			{"equals", domain.FilterSpec{domain.AttrProject: domain.Equals("prj1")}, []string{"s1", "s2"}},
			{"conjunction", domain.FilterSpec{domain.AttrCondition: domain.Equals("melanoma"), domain.AttrResponse: domain.Equals("yes")}, []string{"s1", "s5"}},
			{"membership", domain.FilterSpec{domain.AttrProject: domain.OneOf("prj2", "prj3")}, []string{"s3", "s4", "s5"}},
			{"null never matches", domain.FilterSpec{domain.AttrResponse: domain.OneOf("yes", "no")}, []string{"s1", "s2", "s3", "s5"}},
			{"integer", domain.FilterSpec{domain.AttrTimeFromTreatmentStart: domain.Equals("0")}, []string{"s1", "s4", "s5"}},
			{"integer membership", domain.FilterSpec{domain.AttrAge: domain.OneOf("9", "70")}, []string{"s1", "s2"}},
			{"no match", domain.FilterSpec{domain.AttrProject: domain.Equals("prj9")}, []string{}},
			{"show nothing", domain.FilterSpec{domain.AttrSex: domain.OneOf()}, []string{}},
			{"injection is a value", domain.FilterSpec{domain.AttrProject: domain.Equals("prj1' OR '1'='1")}, []string{}},
		}
		for _, tc := range cases {
			spec, err := tc.spec.Normalize()
			if err != nil {
				t.Fatalf("%s: normalize: %v", tc.name, err)
			}
			if got := querySampleIDs(t, store, spec); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
			}
		}
	})

	t.Run("raw specs are normalized", func(t *testing.T) {
		spec := domain.FilterSpec{domain.AttrTimeFromTreatmentStart: domain.Equals("007")}
		if got := querySampleIDs(t, store, spec); !reflect.DeepEqual(got, []string{"s2"}) {
			t.Fatalf("padded integer: got %v want [s2]", got)
		}
		spec = domain.FilterSpec{domain.AttrAge: domain.OneOf(" 09", "070")}
		if got := querySampleIDs(t, store, spec); !reflect.DeepEqual(got, []string{"s1", "s2"}) {
			t.Fatalf("padded membership: got %v want [s1 s2]", got)
		}
		var filterErr *domain.FilterError
		if _, err := store.QuerySamples(ctx, domain.FilterSpec{"colour": domain.Equals("red")}); !errors.As(err, &filterErr) {
			t.Fatalf("unknown attribute: expected FilterError, got %v", err)
		}
		if _, err := store.QuerySamples(ctx, domain.FilterSpec{domain.AttrAge: domain.Equals("old")}); !errors.As(err, &filterErr) {
			t.Fatalf("non-integer age: expected FilterError, got %v", err)
		}
	})

	t.Run("record round trip", func(t *testing.T) {
		got, err := store.QuerySamples(ctx, domain.FilterSpec{domain.AttrSample: domain.OneOf("s2", "s4")})
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		byID := map[string]domain.SampleRecord{}
		for _, r := range records {
			byID[r.Sample] = r
		}
		for _, r := range got {
			if !reflect.DeepEqual(r, byID[r.Sample]) {
				t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", r, byID[r.Sample])
			}
		}
		if len(got) != 2 || got[1].Response.Valid || got[1].Treatment.Valid {
			t.Fatalf("expected s4 with null treatment and response, got %+v", got)
		}
	})

	t.Run("frequencies", func(t *testing.T) {
		rows, err := store.ListFrequencies(ctx)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(rows) != len(records)*5 {
			t.Fatalf("expected %d rows, got %d", len(records)*5, len(rows))
		}
		for _, r := range rows {
			if r.TotalCount <= 0 || r.Count > r.TotalCount {
				t.Fatalf("bad total in %+v", r)
			}
			if r.Sample == "s1" && r.Population == domain.PopulationBCell && (r.Count != 30 || r.TotalCount != 100 || r.Percentage != 0.3) {
				t.Fatalf("unexpected s1 b_cell row %+v", r)
			}
		}
	})

	t.Run("distinct", func(t *testing.T) {
		cases := map[domain.Attribute][]string{
			domain.AttrProject:   {"prj1", "prj2", "prj3"},
			domain.AttrTreatment: {"miraclib", "phauximab"},
			domain.AttrResponse:  {"no", "yes"},
			domain.AttrAge:       {"40", "55", "62", "70", "9"},
		}
		for attr, want := range cases {
			got, err := store.DistinctValues(ctx, attr)
			if err != nil {
				t.Fatalf("distinct %s: %v", attr, err)
			}
			sort.Strings(got)
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("distinct %s: got %v want %v", attr, got, want)
			}
		}
		var fe *domain.FilterError
		if _, err := store.DistinctValues(ctx, "nonsense"); !errors.As(err, &fe) {
			t.Fatalf("expected FilterError for unknown attribute, got %v", err)
		}
	})

	t.Run("rebuild replaces", func(t *testing.T) {
		subset := records[:2]
		if err := store.Rebuild(ctx, subset, Frequencies(subset)); err != nil {
			t.Fatalf("rebuild: %v", err)
		}
		if got := querySampleIDs(t, store, domain.NewFilterSpec()); !reflect.DeepEqual(got, []string{"s1", "s3"}) {
			t.Fatalf("expected only rebuilt samples, got %v", got)
		}
		rows, err := store.ListFrequencies(ctx)
		if err != nil || len(rows) != 10 {
			t.Fatalf("expected 10 frequency rows, got %d (%v)", len(rows), err)
		}
		v2, err := store.Version(ctx)
		if err != nil || v2 <= v1 {
			t.Fatalf("version did not advance past %d: %d (%v)", v1, v2, err)
		}
	})

	t.Run("invalid rebuild keeps contents", func(t *testing.T) {
		before, _ := store.Version(ctx)
		dup := []domain.SampleRecord{records[0], records[0]}
		var die *domain.DataIntegrityError
		if err := store.Rebuild(ctx, dup, Frequencies(dup)); !errors.As(err, &die) {
			t.Fatalf("expected DataIntegrityError, got %v", err)
		}
		if got := querySampleIDs(t, store, domain.NewFilterSpec()); !reflect.DeepEqual(got, []string{"s1", "s3"}) {
			t.Fatalf("contents changed after failed rebuild: %v", got)
		}
		if after, _ := store.Version(ctx); after != before {
			t.Fatalf("version changed after failed rebuild: %d -> %d", before, after)
		}
	})
}

func querySampleIDs(t *testing.T, store domain.RecordStore, spec domain.FilterSpec) []string {
	t.Helper()
	got, err := store.QuerySamples(context.Background(), spec)
	if err != nil {
		t.Fatalf("query %v: %v", spec, err)
	}
	ids := make([]string, 0, len(got))
	for _, r := range got {
		ids = append(ids, r.Sample)
	}
	return ids
}
