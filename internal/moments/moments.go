package moments

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"flowval/domain/core"
	"flowval/domain/flow"
	"flowval/domain/site"
	"flowval/domain/stats"
	"flowval/internal"
	"flowval/ports"
)

// Analysis names the RNG stream used for bootstrap draws.
const Analysis = "moments"

// Alpha is the significance level at which a week counts as different.
const Alpha = 0.05

// Analyzer computes weekly moments and per-week distribution tests.
type Analyzer struct {
	rng     ports.RNGPort
	workers int
	center  Center
	logger  *internal.Logger
}

// NewAnalyzer creates an analyzer. workers <= 0 uses GOMAXPROCS; a nil
// logger uses the package default.
func NewAnalyzer(rng ports.RNGPort, workers int, logger *internal.Logger) *Analyzer {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Analyzer{
		rng:     rng,
		workers: internal.WorkerLimit(workers),
		center:  CenterMedian,
		logger:  logger,
	}
}

// WithCenter sets the Levene centering.
func (a *Analyzer) WithCenter(c Center) *Analyzer {
	a.center = c
	return a
}

// CompareWeeks runs default-configured week comparisons.
func CompareWeeks(hist *flow.Grid, syn *flow.Ensemble) ([]stats.WeekTest, error) {
	return NewAnalyzer(nil, 0, nil).CompareWeeks(context.Background(), hist, syn)
}

// CompareWeeks tests, for every week w, historical column w against the
// synthetic values of week w pooled over all realizations and years.
func (a *Analyzer) CompareWeeks(ctx context.Context, hist *flow.Grid, syn *flow.Ensemble) ([]stats.WeekTest, error) {
	if err := checkShapes(hist, syn); err != nil {
		return nil, err
	}

	weeks := hist.Cols()
	tests := make([]stats.WeekTest, weeks)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for w := 0; w < weeks; w++ {
		w := w
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			h, s := hist.Column(w), syn.WeekSample(w)
			rs, err := RankSum(h, s)
			if err != nil {
				return fmt.Errorf("week %d rank-sum: %w", w+1, err)
			}
			lv, err := Levene(h, s, a.center)
			if err != nil {
				return fmt.Errorf("week %d levene: %w", w+1, err)
			}
			tests[w] = stats.WeekTest{
				Week:       w + 1,
				RankSumP:   rs,
				LeveneP:    lv,
				Degenerate: math.IsNaN(rs) || math.IsNaN(lv),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tests, nil
}

// Request describes one weekly-moments computation.
type Request struct {
	Site       site.Site
	Space      flow.Space
	Historical *flow.Grid     // years x weeks
	Synthetic  *flow.Ensemble // realizations x years x weeks
	RunID      string
	Seed       int64
}

// ComputeWeeklyMoments transforms both inputs into the requested space,
// computes synthetic per-realization weekly moments, bootstraps historical
// weekly moments with as many resamples as there are realizations, and
// runs the per-week tests.
func (a *Analyzer) ComputeWeeklyMoments(ctx context.Context, req Request) (*stats.WeeklyMoments, error) {
	if req.Historical == nil || req.Synthetic == nil {
		return nil, core.NewNoInputError(fmt.Sprintf("weekly moments for %s", req.Site))
	}
	if a.rng == nil {
		return nil, fmt.Errorf("weekly moments for %s: no random source configured", req.Site)
	}
	if err := checkShapes(req.Historical, req.Synthetic); err != nil {
		return nil, err
	}

	space := req.Space
	if space == "" {
		space = flow.Real
	}
	hist := req.Historical.InSpace(space)
	syn := req.Synthetic.InSpace(space)
	weeks := hist.Cols()

	out := &stats.WeeklyMoments{
		Site:             req.Site,
		Space:            space.String(),
		SyntheticTotals:  make([][]float64, weeks),
		HistoricalTotals: make([][]float64, weeks),
	}
	for w := 0; w < weeks; w++ {
		out.SyntheticTotals[w] = syn.WeekSample(w)
		out.HistoricalTotals[w] = hist.Column(w)
	}

	out.SyntheticMeans, out.SyntheticStds = realizationMoments(syn)

	streamName := Analysis + "-" + space.String()
	r, err := a.rng.Stream(ctx, req.RunID, streamName, string(req.Site.Key), req.Seed)
	if err != nil {
		return nil, fmt.Errorf("bootstrap stream for %s: %w", req.Site, err)
	}
	out.HistoricalMeans, out.HistoricalStds = bootstrap(hist, syn.Realizations(), r.Intn)

	tests, err := a.CompareWeeks(ctx, hist, syn)
	if err != nil {
		return nil, fmt.Errorf("weekly tests for %s: %w", req.Site, err)
	}
	out.Tests = tests

	if degenerate := out.DegenerateWeeks(); len(degenerate) > 0 {
		a.logger.Warn("[moments] %s (%s): NaN p-values in weeks %v", req.Site, space, degenerate)
	}
	a.logger.Debug("[moments] %s (%s): %d weeks, %d realizations, %d historical years",
		req.Site, space, weeks, syn.Realizations(), hist.Rows())
	return out, nil
}

func checkShapes(hist *flow.Grid, syn *flow.Ensemble) error {
	if hist.Rows() < 2 {
		return fmt.Errorf("%w: %d historical years", core.ErrInsufficientData, hist.Rows())
	}
	if hist.Cols() != syn.Weeks() {
		return fmt.Errorf("%w: historical has %d weeks, synthetic has %d",
			core.ErrShapeMismatch, hist.Cols(), syn.Weeks())
	}
	return nil
}

// realizationMoments returns, per week, the mean and population std over
// years of every realization.
func realizationMoments(e *flow.Ensemble) (means, stds [][]float64) {
	R, Y, W := e.Dims()
	means = make([][]float64, W)
	stds = make([][]float64, W)
	years := make([]float64, Y)
	for w := 0; w < W; w++ {
		means[w] = make([]float64, R)
		stds[w] = make([]float64, R)
		for r := 0; r < R; r++ {
			for y := 0; y < Y; y++ {
				years[y] = e.At(r, y, w)
			}
			means[w][r], stds[w][r] = stat.PopMeanStdDev(years, nil)
		}
	}
	return means, stds
}

// bootstrap draws resamples of N = hist.Rows() years with replacement and
// returns per-week mean and population std of every resample. Indices are
// drawn resample by resample so a seed fixes the result.
func bootstrap(hist *flow.Grid, resamples int, intn func(int) int) (means, stds [][]float64) {
	N, W := hist.Rows(), hist.Cols()
	means = make([][]float64, W)
	stds = make([][]float64, W)
	for w := 0; w < W; w++ {
		means[w] = make([]float64, resamples)
		stds[w] = make([]float64, resamples)
	}

	idx := make([]int, N)
	sample := make([]float64, N)
	for b := 0; b < resamples; b++ {
		for i := range idx {
			idx[i] = intn(N)
		}
		for w := 0; w < W; w++ {
			for i, y := range idx {
				sample[i] = hist.At(y, w)
			}
			means[w][b], stds[w][b] = stat.PopMeanStdDev(sample, nil)
		}
	}
	return means, stds
}
