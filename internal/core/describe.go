package core

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"gopkg.in/guregu/null.v3"

	"immunocore/pkg/domain"
)

// Metric names reported by Describe.
const (
	MetricCount      = "count"
	MetricTotalCount = "total_count"
	MetricPercentage = "percentage"
)

// Describe summarises the count, total_count and percentage columns of the
// filtered rows: mean, sample standard deviation, min, quartiles and max.
func Describe(rows []domain.AnnotatedRow) []domain.MetricSummary {
	counts := make([]float64, len(rows))
	totals := make([]float64, len(rows))
	percentages := make([]float64, len(rows))
	for i, row := range rows {
		counts[i] = float64(row.Count)
		totals[i] = float64(row.TotalCount)
		percentages[i] = row.Percentage
	}
	return []domain.MetricSummary{
		describeColumn(MetricCount, counts),
		describeColumn(MetricTotalCount, totals),
		describeColumn(MetricPercentage, percentages),
	}
}

func describeColumn(metric string, values []float64) domain.MetricSummary {
	summary := domain.MetricSummary{Metric: metric, N: len(values)}
	if len(values) == 0 {
		return summary
	}
	data := stats.Float64Data(values)
	if v, err := data.Mean(); err == nil {
		summary.Mean = null.FloatFrom(v)
	}
	if len(values) > 1 {
		if v, err := data.StandardDeviationSample(); err == nil {
			summary.Std = null.FloatFrom(v)
		}
	}
	if v, err := data.Min(); err == nil {
		summary.Min = null.FloatFrom(v)
	}
	if v, err := data.Max(); err == nil {
		summary.Max = null.FloatFrom(v)
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	summary.Q25 = null.FloatFrom(linearQuantile(sorted, 0.25))
	summary.Median = null.FloatFrom(linearQuantile(sorted, 0.5))
	summary.Q75 = null.FloatFrom(linearQuantile(sorted, 0.75))
	return summary
}

// linearQuantile interpolates between the order statistics bracketing
// position q*(n-1). sorted must be ascending and non-empty.
func linearQuantile(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := math.Floor(pos)
	hi := math.Ceil(pos)
	if lo == hi {
		return sorted[int(lo)]
	}
	frac := pos - lo
	return sorted[int(lo)]*(1-frac) + sorted[int(hi)]*frac
}
