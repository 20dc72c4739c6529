package plot

import (
	"context"
	"fmt"
	"image/color"
	"math"
	"strconv"

	gplot "gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"flowval/domain/stats"
	"flowval/internal/moments"
)

// Alpha is the significance level marked on the p-value panels.
const Alpha = moments.Alpha

// RenderMoments draws five stacked panels per week: totals, means and stds
// as paired synthetic/historical boxplots, then rank-sum and Levene
// p-values with the significance line.
func (r *Renderer) RenderMoments(ctx context.Context, path string, m *stats.WeeklyMoments) error {
	if m == nil || m.Weeks() == 0 {
		return fmt.Errorf("no weekly tests to plot")
	}

	weeks := m.Weeks()
	labels := make([]string, weeks)
	for w := range labels {
		if (w+1)%4 == 0 || w == 0 {
			labels[w] = strconv.Itoa(w + 1)
		}
	}

	panels := []struct {
		title    string
		syn, hst [][]float64
	}{
		{"Weekly flows", m.SyntheticTotals, m.HistoricalTotals},
		{"Weekly means", m.SyntheticMeans, m.HistoricalMeans},
		{"Weekly standard deviations", m.SyntheticStds, m.HistoricalStds},
	}

	plots := make([][]*gplot.Plot, 0, 5)
	for _, pn := range panels {
		p := gplot.New()
		p.Title.Text = fmt.Sprintf("%s (%s space; blue synthetic, red historical)", pn.title, m.Space)
		if err := pairedBoxes(p, pn.syn, pn.hst); err != nil {
			return fmt.Errorf("%s: %w", pn.title, err)
		}
		p.NominalX(labels...)
		plots = append(plots, []*gplot.Plot{p})
	}

	rankSum := make([]float64, weeks)
	levene := make([]float64, weeks)
	for i, t := range m.Tests {
		rankSum[i], levene[i] = t.RankSumP, t.LeveneP
	}
	for _, pv := range []struct {
		title  string
		values []float64
	}{
		{"Wilcoxon rank-sum p-values", rankSum},
		{"Levene p-values", levene},
	} {
		p, err := pvaluePanel(pv.title, pv.values)
		if err != nil {
			return fmt.Errorf("%s: %w", pv.title, err)
		}
		p.NominalX(labels...)
		plots = append(plots, []*gplot.Plot{p})
	}
	plots[len(plots)-1][0].X.Label.Text = "Week"

	return r.save(ctx, path, page{
		width:  12 * vg.Inch,
		height: 17 * vg.Inch,
		title:  fmt.Sprintf("%s %s-space weekly moments", m.Site, m.Space),
		plots:  plots,
	})
}

func pairedBoxes(p *gplot.Plot, syn, hist [][]float64) error {
	if len(syn) != len(hist) {
		return fmt.Errorf("synthetic has %d weeks, historical has %d", len(syn), len(hist))
	}
	width := vg.Points(4)
	for w := range syn {
		for _, side := range []struct {
			values []float64
			fill   color.Color
			offset vg.Length
		}{
			{syn[w], SyntheticColor, -width / 2},
			{hist[w], HistoricalColor, width / 2},
		} {
			values := finite(side.values)
			if len(values) == 0 {
				continue
			}
			b, err := plotter.NewBoxPlot(width, float64(w), values)
			if err != nil {
				return fmt.Errorf("week %d: %w", w+1, err)
			}
			b.FillColor = side.fill
			b.Offset = side.offset
			b.GlyphStyle.Radius = vg.Points(1)
			p.Add(b)
		}
	}
	return nil
}

// pvaluePanel plots NaN p-values of degenerate weeks as empty bars.
func pvaluePanel(title string, pvalues []float64) (*gplot.Plot, error) {
	values := make(plotter.Values, len(pvalues))
	for i, v := range pvalues {
		if !math.IsNaN(v) {
			values[i] = v
		}
	}
	bars, err := plotter.NewBarChart(values, vg.Points(6))
	if err != nil {
		return nil, err
	}
	bars.Color = SyntheticColor
	bars.LineStyle.Width = vg.Points(0.5)

	threshold, err := plotter.NewLine(plotter.XYs{
		{X: -0.5, Y: Alpha},
		{X: float64(len(pvalues)) - 0.5, Y: Alpha},
	})
	if err != nil {
		return nil, err
	}
	threshold.LineStyle = dashed(thresholdColor)

	p := gplot.New()
	p.Title.Text = title
	p.Y.Label.Text = "p"
	p.Y.Min, p.Y.Max = 0, 1
	p.Add(bars, threshold)
	p.Legend.Add(fmt.Sprintf("p = %.2f", Alpha), threshold)
	p.Legend.Top = true
	return p, nil
}
