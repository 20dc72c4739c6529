package plot

import (
	"context"
	"fmt"
	"math"
	"strconv"

	gplot "gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"flowval/domain/stats"
)

// RenderVariability draws the internal-variability figure: snapshot
// boxplots per checkpoint above the convergence of the mean and std.
func (r *Renderer) RenderVariability(ctx context.Context, path string, res *stats.VariabilityResult) error {
	if res == nil || len(res.Curve.Points) == 0 {
		return fmt.Errorf("no convergence points to plot")
	}

	labels := make([]string, len(res.Curve.Points))
	for i, pt := range res.Curve.Points {
		labels[i] = strconv.Itoa(pt.Checkpoint)
	}

	boxes := gplot.New()
	boxes.Title.Text = VariabilityTitle(res)
	boxes.Y.Label.Text = res.Space + " flow"
	for i, snap := range res.Snapshots {
		values := finite(snap.Values)
		if len(values) == 0 {
			continue
		}
		b, err := plotter.NewBoxPlot(vg.Points(14), float64(i), values)
		if err != nil {
			return fmt.Errorf("snapshot at checkpoint %d: %w", snap.Checkpoint, err)
		}
		b.FillColor = SyntheticColor
		boxes.Add(b)
	}
	boxes.NominalX(labels...)

	mean, err := convergenceLine(res.Curve.Means())
	if err != nil {
		return fmt.Errorf("mean line: %w", err)
	}
	mu := gplot.New()
	mu.Y.Label.Text = "μ"
	mu.Add(plotter.NewGrid())
	if mean != nil {
		mu.Add(mean)
	}
	mu.NominalX(labels...)

	std, err := convergenceLine(res.Curve.Stds())
	if err != nil {
		return fmt.Errorf("std line: %w", err)
	}
	sigma := gplot.New()
	sigma.Y.Label.Text = "σ"
	sigma.X.Label.Text = "Number of realizations"
	sigma.Add(plotter.NewGrid())
	if std != nil {
		sigma.Add(std)
	}
	sigma.NominalX(labels...)

	return r.save(ctx, path, page{
		width:  10 * vg.Inch,
		height: 10 * vg.Inch,
		title:  fmt.Sprintf("%s %s-space inflows", res.Site, res.Space),
		plots:  [][]*gplot.Plot{{boxes}, {mu}, {sigma}},
	})
}

// VariabilityTitle describes the extracted tail, e.g.
// "Range of the lower 25% of annual log flows".
func VariabilityTitle(res *stats.VariabilityResult) string {
	side := "higher"
	if res.Tail == "drought" {
		side = "lower"
	}
	pct := int(math.Round(res.Quantile * 100))
	return fmt.Sprintf("Range of the %s %d%% of annual %s flows", side, pct, res.Space)
}

// convergenceLine skips non-finite points and returns nil when none remain.
func convergenceLine(ys []float64) (*plotter.Line, error) {
	xys := make(plotter.XYs, 0, len(ys))
	for i, y := range ys {
		if math.IsNaN(y) || math.IsInf(y, 0) {
			continue
		}
		xys = append(xys, plotter.XY{X: float64(i), Y: y})
	}
	if len(xys) == 0 {
		return nil, nil
	}
	l, err := plotter.NewLine(xys)
	if err != nil {
		return nil, err
	}
	l.LineStyle = solid(lineColor)
	return l, nil
}
