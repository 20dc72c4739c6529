package fdc

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"flowval/domain/core"
	"flowval/domain/flow"
	"flowval/domain/site"
	"flowval/domain/stats"
	"flowval/internal"
)

// ExceedanceProbabilities returns P[i] = (i-0.5)/n for i = 1..n.
func ExceedanceProbabilities(n int) []float64 {
	p := make([]float64, n)
	for i := range p {
		p[i] = (float64(i+1) - 0.5) / float64(n)
	}
	return p
}

// AnnualCurves reshapes series into (years x window) and sorts every year
// descending, giving one flow-duration curve per year.
func AnnualCurves(series []float64, window int) (*flow.Grid, error) {
	if window <= 0 || len(series) == 0 || len(series)%window != 0 {
		return nil, fmt.Errorf("%w: %d values is not a whole number of %d-week years",
			core.ErrShapeMismatch, len(series), window)
	}
	years := len(series) / window
	sorted := make([]float64, len(series))
	copy(sorted, series)
	for y := 0; y < years; y++ {
		year := sorted[y*window : (y+1)*window]
		sort.Sort(sort.Reverse(sort.Float64Slice(year)))
	}
	return flow.NewGrid(years, window, sorted)
}

// BuildEnvelope returns the per-rank minimum and maximum across the annual
// flow-duration curves of series.
func BuildEnvelope(series []float64, window int) (*stats.Envelope, error) {
	curves, err := AnnualCurves(series, window)
	if err != nil {
		return nil, err
	}
	env := &stats.Envelope{
		P:     ExceedanceProbabilities(window),
		Min:   curves.Row(0),
		Max:   curves.Row(0),
		Years: curves.Rows(),
	}
	for y := 1; y < curves.Rows(); y++ {
		for i := 0; i < window; i++ {
			v := curves.At(y, i)
			if v < env.Min[i] {
				env.Min[i] = v
			}
			if v > env.Max[i] {
				env.Max[i] = v
			}
		}
	}
	return env, nil
}

// Builder computes site envelopes concurrently.
type Builder struct {
	workers int
	logger  *internal.Logger
}

// NewBuilder creates a range builder. workers <= 0 uses GOMAXPROCS.
func NewBuilder(workers int, logger *internal.Logger) *Builder {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Builder{workers: internal.WorkerLimit(workers), logger: logger}
}

// BuildRanges computes historical and synthetic envelopes for every site.
// The matrices may cover different numbers of years but must list the same
// sites in the same order. catalog supplies display names.
func (b *Builder) BuildRanges(ctx context.Context, hist, syn *flow.Matrix, window int, catalog site.Catalog) ([]stats.SiteRange, error) {
	if !hist.SameSites(syn) {
		return nil, fmt.Errorf("%w: historical %v vs synthetic %v", core.ErrSiteMismatch, hist.Sites(), syn.Sites())
	}

	keys := hist.Sites()
	ranges := make([]stats.SiteRange, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for j := range keys {
		j := j
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			h, err := BuildEnvelope(hist.Column(j), window)
			if err != nil {
				return fmt.Errorf("historical %s: %w", keys[j], err)
			}
			s, err := BuildEnvelope(syn.Column(j), window)
			if err != nil {
				return fmt.Errorf("synthetic %s: %w", keys[j], err)
			}
			ranges[j] = stats.SiteRange{Site: lookup(catalog, keys[j]), Historical: h, Synthetic: s}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	b.logger.Debug("[fdc] built envelopes for %d sites", len(ranges))
	return ranges, nil
}

// BuildRanges is Builder.BuildRanges with default workers and no display names.
func BuildRanges(ctx context.Context, hist, syn *flow.Matrix, window int) ([]stats.SiteRange, error) {
	return NewBuilder(0, nil).BuildRanges(ctx, hist, syn, window, nil)
}

func lookup(catalog site.Catalog, key core.SiteKey) site.Site {
	if i := catalog.Index(key); i >= 0 {
		return catalog[i]
	}
	return site.Site{Key: key}
}
