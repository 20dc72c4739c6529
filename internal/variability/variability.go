package variability

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"flowval/domain/core"
	"flowval/domain/flow"
	"flowval/domain/site"
	"flowval/domain/stats"
)

// Window decides how many realizations a checkpoint aggregates.
type Window int

const (
	// WindowExclusive aggregates the first c-1 realizations at checkpoint c.
	WindowExclusive Window = iota
	// WindowInclusive aggregates the first c realizations at checkpoint c.
	WindowInclusive
)

func (w Window) String() string {
	if w == WindowInclusive {
		return "inclusive"
	}
	return "exclusive"
}

// ParseWindow accepts "exclusive" and "inclusive".
func ParseWindow(s string) (Window, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "exclusive", "":
		return WindowExclusive, nil
	case "inclusive":
		return WindowInclusive, nil
	}
	return WindowExclusive, fmt.Errorf("unknown window %q (want exclusive or inclusive)", s)
}

// used returns the number of realizations aggregated at checkpoint c.
func (w Window) used(c int) int {
	if w == WindowInclusive {
		return c
	}
	return c - 1
}

// DefaultCheckpoints returns 50, 100, ..., 1000.
func DefaultCheckpoints() []int {
	cps, _ := Checkpoints(50, 1000, 50)
	return cps
}

// Checkpoints returns start, start+step, ... up to and including stop.
func Checkpoints(start, stop, step int) ([]int, error) {
	if start <= 0 || step <= 0 || stop < start {
		return nil, fmt.Errorf("%w: start=%d stop=%d step=%d", core.ErrInvalidCheckpoints, start, stop, step)
	}
	var out []int
	for c := start; c <= stop; c += step {
		out = append(out, c)
	}
	return out, nil
}

// KeptWeeks is floor(weeks*quantile), the number of values kept per year.
func KeptWeeks(weeks int, quantile float64) int {
	return int(math.Floor(float64(weeks) * quantile))
}

// ExtractTail sorts every (realization, year) ascending for Drought or
// descending for Flood and keeps the first floor(weeks*quantile) values.
func ExtractTail(e *flow.Ensemble, quantile float64, tail flow.Tail) (*flow.Ensemble, error) {
	if quantile <= 0 || quantile > 1 || math.IsNaN(quantile) {
		return nil, fmt.Errorf("%w: %v is outside (0, 1]", core.ErrInvalidQuantile, quantile)
	}
	keep := KeptWeeks(e.Weeks(), quantile)
	if keep < 1 {
		return nil, fmt.Errorf("%w: %v of %d weeks keeps no values", core.ErrInvalidQuantile, quantile, e.Weeks())
	}

	return e.MapYears(func(row []float64) []float64 {
		if tail == flow.Flood {
			sort.Sort(sort.Reverse(sort.Float64Slice(row)))
		} else {
			sort.Float64s(row)
		}
		return row[:keep]
	})
}

// realizationMoments returns the population mean and std of every
// realization's extracted values.
func realizationMoments(tails *flow.Ensemble) (means, stds []float64) {
	n := tails.Realizations()
	means = make([]float64, n)
	stds = make([]float64, n)
	for r := 0; r < n; r++ {
		means[r], stds[r] = stat.PopMeanStdDev(tails.Realization(r), nil)
	}
	return means, stds
}

// Converge computes, at each checkpoint, the mean of the first n
// per-realization means and the population std of the first n
// per-realization stds, with n chosen by window.
func Converge(tails *flow.Ensemble, checkpoints []int, window Window) (*stats.ConvergenceCurve, error) {
	if len(checkpoints) == 0 {
		return nil, fmt.Errorf("%w: no checkpoints", core.ErrInvalidCheckpoints)
	}
	for i := 1; i < len(checkpoints); i++ {
		if checkpoints[i] <= checkpoints[i-1] {
			return nil, fmt.Errorf("%w: checkpoints must increase", core.ErrInvalidCheckpoints)
		}
	}

	means, stds := realizationMoments(tails)
	curve := &stats.ConvergenceCurve{Window: window.String(), Points: make([]stats.ConvergencePoint, 0, len(checkpoints))}
	for _, c := range checkpoints {
		n := window.used(c)
		if n < 1 || n > len(means) {
			return nil, fmt.Errorf("%w: checkpoint %d uses %d of %d realizations",
				core.ErrInsufficientRealizations, c, n, len(means))
		}
		_, spread := stat.PopMeanStdDev(stds[:n], nil)
		curve.Points = append(curve.Points, stats.ConvergencePoint{
			Checkpoint: c,
			Used:       n,
			Mean:       stat.Mean(means[:n], nil),
			Std:        spread,
		})
	}
	return curve, nil
}

// Snapshots returns the extracted values of realization c-1 for every checkpoint c.
func Snapshots(tails *flow.Ensemble, checkpoints []int) ([]stats.Snapshot, error) {
	out := make([]stats.Snapshot, 0, len(checkpoints))
	for _, c := range checkpoints {
		idx := c - 1
		if idx < 0 || idx >= tails.Realizations() {
			return nil, fmt.Errorf("%w: checkpoint %d has no realization %d",
				core.ErrInsufficientRealizations, c, idx)
		}
		out = append(out, stats.Snapshot{Checkpoint: c, Realization: idx, Values: tails.Realization(idx)})
	}
	return out, nil
}

// Options configures Analyze.
type Options struct {
	Quantile    float64
	Tail        flow.Tail
	Space       flow.Space
	Window      Window
	Checkpoints []int
}

// Analyze runs the whole internal-variability procedure for one site:
// space transform, tail extraction, convergence and snapshots.
func Analyze(s site.Site, e *flow.Ensemble, opts Options) (*stats.VariabilityResult, error) {
	checkpoints := opts.Checkpoints
	if len(checkpoints) == 0 {
		checkpoints = DefaultCheckpoints()
	}
	space := opts.Space
	if space == "" {
		space = flow.Real
	}

	tails, err := ExtractTail(e.InSpace(space), opts.Quantile, opts.Tail)
	if err != nil {
		return nil, err
	}
	curve, err := Converge(tails, checkpoints, opts.Window)
	if err != nil {
		return nil, err
	}
	snaps, err := Snapshots(tails, checkpoints)
	if err != nil {
		return nil, err
	}

	return &stats.VariabilityResult{
		Site:      s,
		Space:     space.String(),
		Tail:      opts.Tail.String(),
		Quantile:  opts.Quantile,
		Kept:      tails.Weeks(),
		Curve:     *curve,
		Snapshots: snaps,
	}, nil
}
