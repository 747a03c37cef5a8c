package core

import (
	"sort"

	"immunocore/pkg/domain"
)

// Overview projects the derived frequency table into the flat reporting
// view, ordered by sample id then canonical population order.
func Overview(rows []domain.FrequencyRow) []domain.OverviewRow {
	out := make([]domain.OverviewRow, len(rows))
	copy(out, rows)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Sample != out[j].Sample {
			return out[i].Sample < out[j].Sample
		}
		return out[i].Population.Index() < out[j].Population.Index()
	})
	return out
}
