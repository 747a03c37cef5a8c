package core

import (
	"immunocore/pkg/domain"
)

// DeriveFrequencies emits one FrequencyRow per (sample, population) for all
// five populations, in input order then canonical population order. The
// total of each sample is always taken over every population, so a later
// population selection never changes a percentage.
func DeriveFrequencies(records []domain.SampleRecord) ([]domain.FrequencyRow, error) {
	populations := domain.Populations()
	out := make([]domain.FrequencyRow, 0, len(records)*len(populations))
	for _, rec := range records {
		total := rec.Counts.Total()
		if total <= 0 {
			return nil, &domain.DataIntegrityError{Sample: rec.Sample, Field: "total_count", Reason: "total count is zero, relative frequency undefined"}
		}
		for _, p := range populations {
			count := rec.Counts.Get(p)
			out = append(out, domain.FrequencyRow{
				Sample:     rec.Sample,
				TotalCount: total,
				Population: p,
				Count:      count,
				Percentage: float64(count) / float64(total),
			})
		}
	}
	return out, nil
}

// Annotate derives frequencies for the records and keeps only the selected
// populations, joining each row with its sample metadata. A nil selection
// keeps every population; an empty non-nil selection keeps none.
func Annotate(records []domain.SampleRecord, populations []domain.Population) ([]domain.AnnotatedRow, error) {
	rows, err := DeriveFrequencies(records)
	if err != nil {
		return nil, err
	}
	keep := populationSet(populations)
	bySample := make(map[string]domain.SampleRecord, len(records))
	for _, rec := range records {
		bySample[rec.Sample] = rec
	}
	out := make([]domain.AnnotatedRow, 0, len(rows))
	for _, row := range rows {
		if _, ok := keep[row.Population]; !ok {
			continue
		}
		rec := bySample[row.Sample]
		out = append(out, domain.AnnotatedRow{
			FrequencyRow:           row,
			Project:                rec.Project,
			Subject:                rec.Subject,
			Condition:              rec.Condition,
			Sex:                    rec.Sex,
			Treatment:              rec.Treatment,
			Response:               rec.Response,
			SampleType:             rec.SampleType,
			TimeFromTreatmentStart: rec.TimeFromTreatmentStart,
		})
	}
	return out, nil
}

func populationSet(populations []domain.Population) map[domain.Population]struct{} {
	if populations == nil {
		populations = domain.Populations()
	}
	set := make(map[domain.Population]struct{}, len(populations))
	for _, p := range populations {
		set[p] = struct{}{}
	}
	return set
}
