package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"gopkg.in/guregu/null.v3"

	"immunocore/internal/core"
	"immunocore/pkg/domain"
)

var (
	headerStyle      = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle        = lipgloss.NewStyle().Padding(0, 1)
	significantStyle = cellStyle.Bold(true)
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

func printOverview(w io.Writer, rows []domain.OverviewRow) {
	t := newTable("sample", "total_count", "population", "count", "percentage")
	for _, r := range rows {
		t.Row(r.Sample, strconv.FormatInt(r.TotalCount, 10), string(r.Population),
			strconv.FormatInt(r.Count, 10), fmt.Sprintf("%.2f", r.Percentage*100))
	}
	fmt.Fprintln(w, t.Render())
}

func printFilterOptions(w io.Writer, options map[domain.Attribute][]string) {
	t := newTable("attribute", "values")
	for _, attr := range domain.Attributes() {
		values := options[attr]
		label := fmt.Sprint(values)
		if len(values) == 0 {
			label = "(none)"
		}
		t.Row(string(attr), label)
	}
	fmt.Fprintln(w, t.Render())
}

func printAnalysis(w io.Writer, a core.Analysis) {
	fmt.Fprintf(w, "Filter: %s\nSamples: %d\n\n", a.Filter, a.SampleCount)

	stats := newTable("metric", "n", "mean", "std", "min", "25%", "50%", "75%", "max")
	for _, m := range a.QuickStats {
		stats.Row(m.Metric, strconv.Itoa(m.N), num(m.Mean), num(m.Std), num(m.Min), num(m.Q25), num(m.Median), num(m.Q75), num(m.Max))
	}
	fmt.Fprintln(w, stats.Render())

	significant := make(map[int]bool, len(a.Summary))
	summary := newTable("population", "n_yes", "n_no", "mean_yes %", "mean_no %", "median_yes %", "median_no %", "std_yes %", "std_no %", "p_value", "significant")
	for i, g := range a.Summary {
		significant[i] = g.Significant
		mark := ""
		if g.Significant {
			mark = "*"
		}
		summary.Row(string(g.Population), strconv.Itoa(g.NYes), strconv.Itoa(g.NNo),
			pct(g.MeanYes), pct(g.MeanNo), pct(g.MedianYes), pct(g.MedianNo), pct(g.StdYes), pct(g.StdNo),
			pval(g.PValue), mark)
	}
	summary.StyleFunc(func(row, _ int) lipgloss.Style {
		switch {
		case row == table.HeaderRow:
			return headerStyle
		case significant[row]:
			return significantStyle
		default:
			return cellStyle
		}
	})
	fmt.Fprintln(w, summary.Render())
}

func num(f null.Float) string {
	if !f.Valid {
		return "-"
	}
	return strconv.FormatFloat(f.Float64, 'f', 4, 64)
}

// pct presents a ratio as a percentage.
func pct(f null.Float) string {
	if !f.Valid {
		return "-"
	}
	return fmt.Sprintf("%.2f", f.Float64*100)
}

func pval(f null.Float) string {
	if !f.Valid {
		return "n/a"
	}
	return strconv.FormatFloat(f.Float64, 'g', 4, 64)
}
