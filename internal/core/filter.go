package core

import (
	"immunocore/pkg/domain"
)

// ApplyFilter returns the records satisfying every constraint of spec, in
// input order. A malformed spec yields a *domain.FilterError; a valid spec
// that selects nothing yields an empty, non-nil slice.
func ApplyFilter(spec domain.FilterSpec, records []domain.SampleRecord) ([]domain.SampleRecord, error) {
	norm, err := spec.Normalize()
	if err != nil {
		return nil, err
	}
	out := make([]domain.SampleRecord, 0, len(records))
	if norm.MatchesNothing() {
		return out, nil
	}
	for _, rec := range records {
		if norm.Matches(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}
