package report

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"flowval/domain/flow"
	"flowval/domain/site"
	"flowval/domain/stats"
)

// FromConvergence tabulates a convergence curve, one row per checkpoint.
func FromConvergence(res *stats.VariabilityResult) Table {
	t := Table{
		Name:    fmt.Sprintf("convergence-%s", res.Space),
		Columns: []string{"checkpoint", "realizations_used", "mean", "std"},
	}
	for _, p := range res.Curve.Points {
		t.Rows = append(t.Rows, []interface{}{p.Checkpoint, p.Used, p.Mean, p.Std})
	}
	return t
}

// FromWeekTests tabulates per-week p-values.
func FromWeekTests(m *stats.WeeklyMoments) Table {
	t := Table{
		Name:    fmt.Sprintf("weekly-tests-%s", m.Space),
		Columns: []string{"week", "rank_sum_p", "levene_p", "degenerate"},
	}
	for _, w := range m.Tests {
		t.Rows = append(t.Rows, []interface{}{w.Week, w.RankSumP, w.LeveneP, w.Degenerate})
	}
	return t
}

// FromRanges summarises FDC envelopes per site: the extreme ranks of each
// envelope and how often the synthetic band spans the historical one.
func FromRanges(ranges []stats.SiteRange) Table {
	t := Table{
		Name: "fdc-ranges",
		Columns: []string{
			"site", "hist_years", "syn_years",
			"hist_max_q", "syn_max_q", "hist_min_q", "syn_min_q", "coverage",
		},
	}
	for _, r := range ranges {
		h, s := r.Historical, r.Synthetic
		last := h.Len() - 1
		t.Rows = append(t.Rows, []interface{}{
			r.Site.String(), h.Years, s.Years,
			h.Max[0], s.Max[0], h.Min[last], s.Min[s.Len()-1],
			r.Coverage(),
		})
	}
	return t
}

// FromAssembly describes each column of an assembled Qdaily matrix.
func FromAssembly(label string, m *flow.Matrix, catalog site.Catalog) Table {
	t := Table{
		Name:    fmt.Sprintf("qdaily-%s", label),
		Columns: []string{"site", "rows", "years", "min", "mean", "max"},
	}
	for j, key := range m.Sites() {
		name := key.String()
		if i := catalog.Index(key); i >= 0 {
			name = catalog[i].String()
		}
		col := m.Column(j)
		t.Rows = append(t.Rows, []interface{}{
			name, m.Rows(), m.Years(),
			floats.Min(col), stat.Mean(col, nil), floats.Max(col),
		})
	}
	return t
}
