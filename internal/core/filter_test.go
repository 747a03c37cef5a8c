package core

import (
	"errors"
	"reflect"
	"testing"

	"gopkg.in/guregu/null.v3"

	"immunocore/pkg/domain"
)

func filterFixture() []domain.SampleRecord {
	a := record("s3", "yes", 1, 1, 1, 1, 1)
	b := record("s1", "no", 1, 1, 1, 1, 1)
	b.Project = "prj2"
	b.TimeFromTreatmentStart = 7
	c := record("s2", "", 1, 1, 1, 1, 1)
	c.Treatment = null.String{}
	c.Sex = "M"
	return []domain.SampleRecord{a, b, c}
}

func ids(records []domain.SampleRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Sample
	}
	return out
}

func TestApplyFilter(t *testing.T) {
	cases := []struct {
		name string
		spec domain.FilterSpec
		want []string
	}{
		{"no constraints keeps input order", domain.NewFilterSpec(), []string{"s3", "s1", "s2"}},
		{"explicit any", domain.FilterSpec{domain.AttrProject: domain.Any()}, []string{"s3", "s1", "s2"}},
		{"equals", domain.FilterSpec{domain.AttrProject: domain.Equals("prj1")}, []string{"s3", "s2"}},
		{"and across attributes", domain.FilterSpec{domain.AttrProject: domain.Equals("prj1"), domain.AttrSex: domain.Equals("F")}, []string{"s3"}},
		{"or within membership", domain.FilterSpec{domain.AttrResponse: domain.OneOf("yes", "no")}, []string{"s3", "s1"}},
		{"null never matches", domain.FilterSpec{domain.AttrTreatment: domain.Equals("")}, []string{}},
		{"integer canonical form", domain.FilterSpec{domain.AttrTimeFromTreatmentStart: domain.Equals("007")}, []string{"s1"}},
		{"empty membership matches nothing", domain.FilterSpec{domain.AttrSex: domain.OneOf()}, []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := filterFixture()
			before := ids(input)
			got, err := ApplyFilter(tc.spec, input)
			if err != nil {
				t.Fatalf("ApplyFilter: %v", err)
			}
			if got == nil {
				t.Fatal("expected non-nil result")
			}
			if !reflect.DeepEqual(ids(got), tc.want) {
				t.Fatalf("got %v want %v", ids(got), tc.want)
			}
			if !reflect.DeepEqual(ids(input), before) {
				t.Fatal("input was modified")
			}
		})
	}
}

func TestApplyFilterRejectsMalformedSpec(t *testing.T) {
	for name, spec := range map[string]domain.FilterSpec{
		"unknown attribute": {domain.Attribute("colour"): domain.Equals("red")},
		"non-integer age":   {domain.AttrAge: domain.OneOf("60", "sixty")},
	} {
		_, err := ApplyFilter(spec, filterFixture())
		var fe *domain.FilterError
		if !errors.As(err, &fe) {
			t.Fatalf("%s: expected FilterError, got %v", name, err)
		}
	}
}
