package core

import (
	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
	"gopkg.in/guregu/null.v3"

	"immunocore/pkg/domain"
)

// SignificanceLevel is the fixed threshold below which a population's
// responder/non-responder difference is flagged. No correction is applied
// for the number of populations tested.
const SignificanceLevel = 0.05

func isSignificant(p float64) bool { return p < SignificanceLevel }

type responseGroups struct {
	yes []float64
	no  []float64
}

// CompareGroups summarises each population's relative frequencies by
// response and runs a two-sided rank-sum test between responders and
// non-responders. Results follow order exactly; a nil order means canonical
// population order. Rows whose response is neither "yes" nor "no" are not
// part of either group.
func CompareGroups(rows []domain.AnnotatedRow, order []domain.Population) []domain.GroupSummary {
	if order == nil {
		order = domain.Populations()
	}
	groups := make(map[domain.Population]*responseGroups, len(order))
	for _, row := range rows {
		if !row.Response.Valid {
			continue
		}
		g, ok := groups[row.Population]
		if !ok {
			g = &responseGroups{}
			groups[row.Population] = g
		}
		switch row.Response.String {
		case domain.ResponseYes:
			g.yes = append(g.yes, row.Percentage)
		case domain.ResponseNo:
			g.no = append(g.no, row.Percentage)
		}
	}

	out := make([]domain.GroupSummary, 0, len(order))
	for _, p := range order {
		g := groups[p]
		if g == nil {
			g = &responseGroups{}
		}
		summary := domain.GroupSummary{Population: p, NYes: len(g.yes), NNo: len(g.no)}
		summary.MeanYes, summary.MedianYes, summary.StdYes = describeGroup(g.yes)
		summary.MeanNo, summary.MedianNo, summary.StdNo = describeGroup(g.no)
		if len(g.yes) > 0 && len(g.no) > 0 {
			if res, err := MannWhitneyU(g.yes, g.no); err == nil {
				summary.PValue = null.FloatFrom(res.PValue)
				summary.Significant = isSignificant(res.PValue)
			}
		}
		out = append(out, summary)
	}
	return out
}

// describeGroup returns mean, median and sample standard deviation. The
// standard deviation needs at least two observations.
func describeGroup(values []float64) (mean, median, std null.Float) {
	if len(values) == 0 {
		return
	}
	m, sd := stat.MeanStdDev(values, nil)
	mean = null.FloatFrom(m)
	if med, err := stats.Median(values); err == nil {
		median = null.FloatFrom(med)
	}
	if len(values) > 1 {
		std = null.FloatFrom(sd)
	}
	return
}
