// Package plot renders analysis results as PDF figures with gonum/plot.
package plot

import (
	"context"
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	gplot "gonum.org/v1/plot"
	"gonum.org/v1/plot/font"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgpdf"

	"flowval/internal"
)

var (
	// SyntheticColor is matplotlib's lightskyblue.
	SyntheticColor = color.RGBA{R: 135, G: 206, B: 250, A: 255}
	// HistoricalColor is matplotlib's lightcoral.
	HistoricalColor = color.RGBA{R: 240, G: 128, B: 128, A: 255}

	thresholdColor = color.RGBA{R: 200, G: 0, B: 0, A: 255}
	lineColor      = color.RGBA{R: 31, G: 119, B: 180, A: 255}
)

// Renderer implements ports.FigureRenderer.
type Renderer struct {
	logger *internal.Logger
}

// NewRenderer creates a PDF figure renderer
func NewRenderer(logger *internal.Logger) *Renderer {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Renderer{logger: logger}
}

// page describes one PDF page laid out as a grid of aligned plots.
type page struct {
	width, height vg.Length
	title         string
	plots         [][]*gplot.Plot
}

const titleBand = vg.Length(28)

func (r *Renderer) save(ctx context.Context, path string, pg page) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create figure directory: %w", err)
	}

	c := vgpdf.New(pg.width, pg.height)
	dc := draw.New(c)

	padTop := vg.Length(6)
	if pg.title != "" {
		padTop = titleBand
		dc.FillText(draw.TextStyle{
			Color:   color.Black,
			Font:    font.From(gplot.DefaultFont, 14),
			Handler: gplot.DefaultTextHandler,
			XAlign:  draw.XCenter,
			YAlign:  draw.YTop,
		}, vg.Point{X: (dc.Min.X + dc.Max.X) / 2, Y: dc.Max.Y - 6}, pg.title)
	}

	rows := len(pg.plots)
	cols := 0
	for _, row := range pg.plots {
		if len(row) > cols {
			cols = len(row)
		}
	}
	tiles := draw.Tiles{
		Rows:      rows,
		Cols:      cols,
		PadX:      vg.Millimeter * 4,
		PadY:      vg.Millimeter * 4,
		PadTop:    padTop,
		PadBottom: vg.Points(6),
		PadLeft:   vg.Points(6),
		PadRight:  vg.Points(6),
	}

	grid := make([][]*gplot.Plot, rows)
	for i, row := range pg.plots {
		grid[i] = make([]*gplot.Plot, cols)
		copy(grid[i], row)
	}
	canvases := gplot.Align(grid, tiles, dc)
	for i := range grid {
		for j, p := range grid[i] {
			if p != nil {
				p.Draw(canvases[i][j])
			}
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create figure %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	n, err := c.WriteTo(f)
	if err != nil {
		return fmt.Errorf("failed to write figure %s: %w", path, err)
	}
	r.logger.Info("[plot] wrote %s (%s)", path, humanize.Bytes(uint64(n)))
	return nil
}

func dashed(c color.Color) draw.LineStyle {
	return draw.LineStyle{
		Color:  c,
		Width:  vg.Points(1),
		Dashes: []vg.Length{vg.Points(4), vg.Points(3)},
	}
}

func solid(c color.Color) draw.LineStyle {
	return draw.LineStyle{Color: c, Width: vg.Points(1.2)}
}

// finite drops NaN and infinite values, which gonum/plot refuses to draw.
// Log-space flows of zero weeks reach the figures as -Inf.
func finite(values []float64) plotter.Values {
	out := make(plotter.Values, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}
