// Package domain defines the sample records, derived frequency rows, filter
// specifications and group summaries shared by immunocore's stores, core
// pipeline and adapters.
package domain

import (
	"fmt"
	"strings"

	"gopkg.in/guregu/null.v3"
)

// Population identifies one of the fixed immune-cell populations counted per sample.
type Population string

// Counted populations in canonical reporting order.
const (
	PopulationBCell    Population = "b_cell"
	PopulationCD8TCell Population = "cd8_t_cell"
	PopulationCD4TCell Population = "cd4_t_cell"
	PopulationNKCell   Population = "nk_cell"
	PopulationMonocyte Population = "monocyte"
)

var canonicalPopulations = [...]Population{
	PopulationBCell,
	PopulationCD8TCell,
	PopulationCD4TCell,
	PopulationNKCell,
	PopulationMonocyte,
}

// Populations returns the five counted populations in canonical order.
// The returned slice is a fresh copy.
func Populations() []Population {
	out := make([]Population, len(canonicalPopulations))
	copy(out, canonicalPopulations[:])
	return out
}

// ParsePopulation resolves a population name, rejecting unknown values.
func ParsePopulation(name string) (Population, error) {
	candidate := Population(strings.TrimSpace(name))
	for _, p := range canonicalPopulations {
		if p == candidate {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown population %q", name)
}

// Index reports the canonical position of the population, or -1.
func (p Population) Index() int {
	for i, candidate := range canonicalPopulations {
		if candidate == p {
			return i
		}
	}
	return -1
}

// Response values recorded for treated subjects.
const (
	ResponseYes = "yes"
	ResponseNo  = "no"
)

// PopulationCounts holds the raw per-population cell counts of a sample.
type PopulationCounts struct {
	BCell    int64 `json:"b_cell"`
	CD8TCell int64 `json:"cd8_t_cell"`
	CD4TCell int64 `json:"cd4_t_cell"`
	NKCell   int64 `json:"nk_cell"`
	Monocyte int64 `json:"monocyte"`
}

// Get returns the count for a population. Unknown populations report zero.
func (c PopulationCounts) Get(p Population) int64 {
	switch p {
	case PopulationBCell:
		return c.BCell
	case PopulationCD8TCell:
		return c.CD8TCell
	case PopulationCD4TCell:
		return c.CD4TCell
	case PopulationNKCell:
		return c.NKCell
	case PopulationMonocyte:
		return c.Monocyte
	default:
		return 0
	}
}

// Total sums all five populations.
func (c PopulationCounts) Total() int64 {
	return c.BCell + c.CD8TCell + c.CD4TCell + c.NKCell + c.Monocyte
}

// SampleRecord is one row of the record store: metadata plus raw counts for a sample.
type SampleRecord struct {
	Project                string           `json:"project"`
	Subject                string           `json:"subject"`
	Condition              string           `json:"condition"`
	Age                    int              `json:"age"`
	Sex                    string           `json:"sex"`
	Treatment              null.String      `json:"treatment"`
	Response               null.String      `json:"response"`
	Sample                 string           `json:"sample"`
	SampleType             string           `json:"sample_type"`
	TimeFromTreatmentStart int              `json:"time_from_treatment_start"`
	Counts                 PopulationCounts `json:"counts"`
}

// Validate checks the per-record invariants: identity present, counts
// non-negative, total positive and response within {yes,no} when set.
func (r SampleRecord) Validate() error {
	if strings.TrimSpace(r.Sample) == "" {
		return &DataIntegrityError{Field: "sample", Reason: "sample id is required"}
	}
	for _, p := range canonicalPopulations {
		if n := r.Counts.Get(p); n < 0 {
			return &DataIntegrityError{Sample: r.Sample, Field: string(p), Reason: fmt.Sprintf("negative count %d", n)}
		}
	}
	if r.Counts.Total() == 0 {
		return &DataIntegrityError{Sample: r.Sample, Field: "total_count", Reason: "total count is zero"}
	}
	if r.Response.Valid && r.Response.String != ResponseYes && r.Response.String != ResponseNo {
		return &DataIntegrityError{Sample: r.Sample, Field: "response", Reason: fmt.Sprintf("unexpected response %q", r.Response.String)}
	}
	return nil
}

// ValidateRecords validates every record and rejects duplicate sample ids.
func ValidateRecords(records []SampleRecord) error {
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return err
		}
		if _, dup := seen[r.Sample]; dup {
			return &DataIntegrityError{Sample: r.Sample, Field: "sample", Reason: "duplicate sample id"}
		}
		seen[r.Sample] = struct{}{}
	}
	return nil
}

// FrequencyRow is the derived relative frequency of one population within one sample.
// Percentage is the un-scaled ratio Count/TotalCount.
type FrequencyRow struct {
	Sample     string     `json:"sample"`
	TotalCount int64      `json:"total_count"`
	Population Population `json:"population"`
	Count      int64      `json:"count"`
	Percentage float64    `json:"percentage"`
}

// OverviewRow is the flat reporting projection of a FrequencyRow.
type OverviewRow = FrequencyRow

// AnnotatedRow joins a FrequencyRow with the metadata of its sample. It is the
// shape of the filtered data table consumed by the group comparator.
type AnnotatedRow struct {
	FrequencyRow
	Project                string      `json:"project"`
	Subject                string      `json:"subject"`
	Condition              string      `json:"condition"`
	Sex                    string      `json:"sex"`
	Treatment              null.String `json:"treatment"`
	Response               null.String `json:"response"`
	SampleType             string      `json:"sample_type"`
	TimeFromTreatmentStart int         `json:"time_from_treatment_start"`
}

// GroupSummary reports responder vs non-responder statistics for one population.
// Statistics of an empty partition are null; PValue is null when the test was skipped.
type GroupSummary struct {
	Population  Population `json:"population"`
	NYes        int        `json:"n_yes"`
	NNo         int        `json:"n_no"`
	MeanYes     null.Float `json:"mean_yes"`
	MeanNo      null.Float `json:"mean_no"`
	MedianYes   null.Float `json:"median_yes"`
	MedianNo    null.Float `json:"median_no"`
	StdYes      null.Float `json:"std_yes"`
	StdNo       null.Float `json:"std_no"`
	PValue      null.Float `json:"p_value"`
	Significant bool       `json:"significant"`
}

// RankSumMethod names how a rank-sum p-value was computed.
type RankSumMethod string

const (
	RankSumExact      RankSumMethod = "exact"
	RankSumAsymptotic RankSumMethod = "asymptotic"
)

// RankSumResult is the outcome of a two-sided Mann-Whitney U test.
type RankSumResult struct {
	U      float64       `json:"u"`
	PValue float64       `json:"p_value"`
	Method RankSumMethod `json:"method"`
}

// MetricSummary is a describe-style summary of one numeric column of the filtered rows.
type MetricSummary struct {
	Metric string     `json:"metric"`
	N      int        `json:"n"`
	Mean   null.Float `json:"mean"`
	Std    null.Float `json:"std"`
	Min    null.Float `json:"min"`
	Q25    null.Float `json:"q25"`
	Median null.Float `json:"median"`
	Q75    null.Float `json:"q75"`
	Max    null.Float `json:"max"`
}
