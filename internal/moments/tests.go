package moments

import (
	"errors"
	"fmt"
	"math"
	"strings"

	moremath "github.com/aclements/go-moremath/stats"
	mstats "github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"flowval/domain/core"
)

// Center selects the location each Levene group is centered on.
type Center string

const (
	CenterMedian Center = "median" // Brown-Forsythe
	CenterMean   Center = "mean"   // classic Levene
)

// ParseCenter accepts "median" and "mean". Empty selects the median.
func ParseCenter(s string) (Center, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "median":
		return CenterMedian, nil
	case "mean":
		return CenterMean, nil
	default:
		return "", fmt.Errorf("unknown levene center %q (want median or mean)", s)
	}
}

// RankSum returns the two-sided Wilcoxon rank-sum p-value for x and y.
// Samples whose values are all equal give NaN and no error.
func RankSum(x, y []float64) (float64, error) {
	if len(x) == 0 || len(y) == 0 {
		return math.NaN(), fmt.Errorf("%w: rank-sum needs two non-empty samples (got %d and %d)",
			core.ErrInsufficientData, len(x), len(y))
	}
	res, err := moremath.MannWhitneyUTest(x, y, moremath.LocationDiffers)
	switch {
	case errors.Is(err, moremath.ErrSamplesEqual):
		return math.NaN(), nil
	case errors.Is(err, moremath.ErrSampleSize):
		return math.NaN(), fmt.Errorf("%w: %v", core.ErrInsufficientData, err)
	case err != nil:
		return math.NaN(), err
	}
	return clampP(res.P), nil
}

// Levene tests equality of variances between x and y. The statistic is
// F-distributed with (1, N-2) degrees of freedom. Zero spread inside both
// groups gives NaN and no error.
func Levene(x, y []float64, center Center) (float64, error) {
	if len(x) < 2 || len(y) < 2 {
		return math.NaN(), fmt.Errorf("%w: levene needs at least two values per group (got %d and %d)",
			core.ErrInsufficientData, len(x), len(y))
	}

	zx, err := deviations(x, center)
	if err != nil {
		return math.NaN(), err
	}
	zy, err := deviations(y, center)
	if err != nil {
		return math.NaN(), err
	}

	nx, ny := float64(len(zx)), float64(len(zy))
	n := nx + ny
	mx, my := stat.Mean(zx, nil), stat.Mean(zy, nil)
	grand := (nx*mx + ny*my) / n

	between := nx*(mx-grand)*(mx-grand) + ny*(my-grand)*(my-grand)
	within := sumSquares(zx, mx) + sumSquares(zy, my)
	if within == 0 || math.IsNaN(within) || math.IsInf(within, 0) {
		return math.NaN(), nil
	}

	w := (n - 2) * between / within
	f := distuv.F{D1: 1, D2: n - 2}
	return clampP(f.Survival(w)), nil
}

func deviations(x []float64, center Center) ([]float64, error) {
	var c float64
	switch center {
	case CenterMean:
		c = stat.Mean(x, nil)
	case CenterMedian, "":
		m, err := mstats.Median(x)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrInsufficientData, err)
		}
		c = m
	default:
		return nil, fmt.Errorf("unknown levene center %q", center)
	}
	z := make([]float64, len(x))
	for i, v := range x {
		z[i] = math.Abs(v - c)
	}
	return z, nil
}

func sumSquares(x []float64, mean float64) float64 {
	var s float64
	for _, v := range x {
		d := v - mean
		s += d * d
	}
	return s
}

func clampP(p float64) float64 {
	if math.IsNaN(p) {
		return p
	}
	return math.Max(0, math.Min(1, p))
}
