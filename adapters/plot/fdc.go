package plot

import (
	"context"
	"fmt"
	"image/color"

	gplot "gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"flowval/domain/stats"
)

const fdcColumns = 5

// RenderFDCRanges draws one semilog panel per site with the synthetic and
// historical envelopes shaded, five panels per row.
func (r *Renderer) RenderFDCRanges(ctx context.Context, path, title string, ranges []stats.SiteRange) error {
	if len(ranges) == 0 {
		return fmt.Errorf("no site ranges to plot")
	}

	rows := (len(ranges) + fdcColumns - 1) / fdcColumns
	plots := make([][]*gplot.Plot, rows)
	for i := range plots {
		plots[i] = make([]*gplot.Plot, fdcColumns)
	}

	for i, sr := range ranges {
		p := gplot.New()
		p.Title.Text = sr.Site.String()
		p.X.Label.Text = "Exceedance probability"
		if i%fdcColumns == 0 {
			p.Y.Label.Text = "Q (10^6 gal/week)"
		}
		p.X.Min, p.X.Max = 0, 1

		syn, err := band(sr.Synthetic, SyntheticColor)
		if err != nil {
			return fmt.Errorf("synthetic band for %s: %w", sr.Site, err)
		}
		hist, err := band(sr.Historical, withAlpha(HistoricalColor, 180))
		if err != nil {
			return fmt.Errorf("historical band for %s: %w", sr.Site, err)
		}
		p.Add(syn, hist)

		if positive(sr.Synthetic) && positive(sr.Historical) {
			p.Y.Scale = gplot.LogScale{}
			p.Y.Tick.Marker = gplot.LogTicks{Prec: -1}
		}
		if i == 0 {
			p.Legend.Add("Synthetic", syn)
			p.Legend.Add("Historical", hist)
			p.Legend.Top = true
		}
		plots[i/fdcColumns][i%fdcColumns] = p
	}

	return r.save(ctx, path, page{
		width:  vg.Length(fdcColumns) * 3.4 * vg.Inch,
		height: vg.Length(rows) * 3.2 * vg.Inch,
		title:  title,
		plots:  plots,
	})
}

// band outlines the envelope: along the maximum, then back along the minimum.
func band(env *stats.Envelope, fill color.Color) (*plotter.Polygon, error) {
	if env == nil || env.Len() == 0 {
		return nil, fmt.Errorf("empty envelope")
	}
	n := env.Len()
	xys := make(plotter.XYs, 0, 2*n)
	for i := 0; i < n; i++ {
		xys = append(xys, plotter.XY{X: env.P[i], Y: env.Max[i]})
	}
	for i := n - 1; i >= 0; i-- {
		xys = append(xys, plotter.XY{X: env.P[i], Y: env.Min[i]})
	}
	poly, err := plotter.NewPolygon(xys)
	if err != nil {
		return nil, err
	}
	poly.Color = fill
	poly.LineStyle.Width = 0
	return poly, nil
}

func positive(env *stats.Envelope) bool {
	for _, v := range env.Min {
		if v <= 0 {
			return false
		}
	}
	return true
}

func withAlpha(c color.RGBA, a uint8) color.NRGBA {
	return color.NRGBA{R: c.R, G: c.G, B: c.B, A: a}
}
