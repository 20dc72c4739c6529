package stats

import (
	"math"

	"flowval/domain/site"
)

// ============================================================================
// INTERNAL VARIABILITY
// ============================================================================

// ConvergencePoint is the aggregate statistic at one realization checkpoint.
type ConvergencePoint struct {
	Checkpoint int     `json:"checkpoint"` // nominal realization count
	Used       int     `json:"used"`       // realizations actually aggregated
	Mean       float64 `json:"mean"`       // mean of per-realization means
	Std        float64 `json:"std"`        // population std of per-realization stds
}

// ConvergenceCurve is ordered by checkpoint.
type ConvergenceCurve struct {
	Window string             `json:"window"`
	Points []ConvergencePoint `json:"points"`
}

func (c *ConvergenceCurve) Checkpoints() []float64 {
	out := make([]float64, len(c.Points))
	for i, p := range c.Points {
		out[i] = float64(p.Checkpoint)
	}
	return out
}

func (c *ConvergenceCurve) Means() []float64 {
	out := make([]float64, len(c.Points))
	for i, p := range c.Points {
		out[i] = p.Mean
	}
	return out
}

func (c *ConvergenceCurve) Stds() []float64 {
	out := make([]float64, len(c.Points))
	for i, p := range c.Points {
		out[i] = p.Std
	}
	return out
}

// Snapshot holds the extracted tail values of one realization, shown as a
// boxplot above the convergence lines.
type Snapshot struct {
	Checkpoint  int       `json:"checkpoint"`
	Realization int       `json:"realization"` // zero-based
	Values      []float64 `json:"values"`
}

// VariabilityResult bundles everything the internal-variability figure shows.
type VariabilityResult struct {
	Site      site.Site        `json:"site"`
	Space     string           `json:"space"`
	Tail      string           `json:"tail"`
	Quantile  float64          `json:"quantile"`
	Kept      int              `json:"kept"` // weeks kept per year
	Curve     ConvergenceCurve `json:"curve"`
	Snapshots []Snapshot       `json:"snapshots"`
}

// ============================================================================
// FLOW DURATION CURVES
// ============================================================================

// Envelope is the per-rank range of annual flow-duration curves.
// INVARIANTS:
// - len(P) == len(Min) == len(Max)
// - Min[i] <= Max[i]
type Envelope struct {
	P     []float64 `json:"p"`     // exceedance probability per rank
	Min   []float64 `json:"min"`   // lowest flow at each rank across years
	Max   []float64 `json:"max"`   // highest flow at each rank across years
	Years int       `json:"years"` // number of annual curves
}

func (e *Envelope) Len() int { return len(e.P) }

// Contains reports whether v lies within the envelope at rank i.
func (e *Envelope) Contains(i int, v float64) bool {
	return v >= e.Min[i] && v <= e.Max[i]
}

// SiteRange pairs the historical and synthetic envelopes of one site.
type SiteRange struct {
	Site       site.Site `json:"site"`
	Historical *Envelope `json:"historical"`
	Synthetic  *Envelope `json:"synthetic"`
}

// Coverage is the fraction of ranks where the synthetic envelope spans the
// historical one.
func (r SiteRange) Coverage() float64 {
	n := r.Historical.Len()
	if n == 0 || r.Synthetic.Len() != n {
		return math.NaN()
	}
	covered := 0
	for i := 0; i < n; i++ {
		if r.Synthetic.Min[i] <= r.Historical.Min[i] && r.Synthetic.Max[i] >= r.Historical.Max[i] {
			covered++
		}
	}
	return float64(covered) / float64(n)
}

// ============================================================================
// WEEKLY MOMENTS
// ============================================================================

// WeekTest holds the distribution comparison for one week (1-based).
// P-values are NaN when the week's samples are degenerate.
type WeekTest struct {
	Week       int     `json:"week"`
	RankSumP   float64 `json:"rank_sum_p"`
	LeveneP    float64 `json:"levene_p"`
	Degenerate bool    `json:"degenerate"`
}

// Significant reports whether either test rejects at alpha.
func (w WeekTest) Significant(alpha float64) bool {
	return w.RankSumP < alpha || w.LeveneP < alpha
}

// WeeklyMoments holds per-week samples for the moments figure. Every slice
// is indexed [week][sample].
type WeeklyMoments struct {
	Site  site.Site `json:"site"`
	Space string    `json:"space"`

	SyntheticTotals  [][]float64 `json:"-"` // all realizations x years
	HistoricalTotals [][]float64 `json:"-"` // all historical years

	SyntheticMeans  [][]float64 `json:"-"` // one per realization
	SyntheticStds   [][]float64 `json:"-"`
	HistoricalMeans [][]float64 `json:"-"` // one per bootstrap resample
	HistoricalStds  [][]float64 `json:"-"`

	Tests []WeekTest `json:"tests"`
}

// Weeks returns the number of weeks covered.
func (m *WeeklyMoments) Weeks() int { return len(m.Tests) }

// DegenerateWeeks lists weeks whose tests produced NaN.
func (m *WeeklyMoments) DegenerateWeeks() []int {
	var weeks []int
	for _, t := range m.Tests {
		if t.Degenerate {
			weeks = append(weeks, t.Week)
		}
	}
	return weeks
}
