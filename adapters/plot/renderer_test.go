package plot

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowval/domain/flow"
	"flowval/domain/site"
	"flowval/domain/stats"
	"flowval/internal/fdc"
	"flowval/internal/moments"
	"flowval/internal/testkit"
	"flowval/internal/variability"
	"flowval/ports"
)

var _ ports.FigureRenderer = (*Renderer)(nil)

func assertPDF(t *testing.T, path string) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")), "%s is not a PDF", path)
}

func TestRenderFDCRanges(t *testing.T) {
	gen := testkit.NewFlowGenerator(testkit.DefaultFlowConfig())
	catalog := site.DefaultCatalog()

	ranges := make([]stats.SiteRange, 0, catalog.Len())
	for _, s := range catalog {
		h, err := fdc.BuildEnvelope(gen.Historical(6).Flatten(), 52)
		require.NoError(t, err)
		syn, err := fdc.BuildEnvelope(gen.Synthetic(4, 2).Flatten(), 52)
		require.NoError(t, err)
		ranges = append(ranges, stats.SiteRange{Site: s, Historical: h, Synthetic: syn})
	}

	// nested directory is created on demand
	path := filepath.Join(t.TempDir(), "figures", "FDCs-stat.pdf")
	require.NoError(t, NewRenderer(nil).RenderFDCRanges(context.Background(), path, "Weekly FDC ranges", ranges))
	assertPDF(t, path)

	err := NewRenderer(nil).RenderFDCRanges(context.Background(), path, "", nil)
	assert.Error(t, err)
}

func TestRenderVariability(t *testing.T) {
	e := testkit.NewFlowGenerator(testkit.DefaultFlowConfig()).Ensemble(100, 2)
	res, err := variability.Analyze(site.Site{Key: "trainingJordanLakeInflow", Name: "Jordan Lake"}, e, variability.Options{
		Quantile:    0.25,
		Tail:        flow.Drought,
		Space:       flow.Log,
		Window:      variability.WindowExclusive,
		Checkpoints: []int{25, 50, 75, 100},
	})
	require.NoError(t, err)
	assert.Equal(t, "Range of the lower 25% of annual log flows", VariabilityTitle(res))

	path := filepath.Join(t.TempDir(), "internal-variability-log-stat.pdf")
	require.NoError(t, NewRenderer(nil).RenderVariability(context.Background(), path, res))
	assertPDF(t, path)

	assert.Error(t, NewRenderer(nil).RenderVariability(context.Background(), path, &stats.VariabilityResult{}))
}

func TestRenderMoments(t *testing.T) {
	gen := testkit.NewFlowGenerator(testkit.DefaultFlowConfig())
	hist := gen.Historical(10)
	syn := gen.Ensemble(20, 2)

	tests, err := moments.CompareWeeks(hist, syn)
	require.NoError(t, err)
	m := &stats.WeeklyMoments{
		Site:             site.Site{Key: "trainingFallsLakeInflow", Name: "Falls Lake"},
		Space:            "real",
		SyntheticTotals:  make([][]float64, 52),
		HistoricalTotals: make([][]float64, 52),
		SyntheticMeans:   make([][]float64, 52),
		HistoricalMeans:  make([][]float64, 52),
		SyntheticStds:    make([][]float64, 52),
		HistoricalStds:   make([][]float64, 52),
		Tests:            tests,
	}
	for w := 0; w < 52; w++ {
		m.SyntheticTotals[w] = syn.WeekSample(w)
		m.HistoricalTotals[w] = hist.Column(w)
		m.SyntheticMeans[w] = []float64{1, 2, 3}
		m.HistoricalMeans[w] = []float64{1.5, 2.5}
		m.SyntheticStds[w] = []float64{0.5, 0.7}
		m.HistoricalStds[w] = []float64{0.6, 0.4}
	}
	// degenerate week renders as an empty bar
	m.Tests[3].RankSumP = math.NaN()
	m.Tests[3].Degenerate = true

	ctx, cancel := context.WithCancel(context.Background())
	path := filepath.Join(t.TempDir(), "moments_pvalues_real_Falls Lake-stat.pdf")
	require.NoError(t, NewRenderer(nil).RenderMoments(ctx, path, m))
	assertPDF(t, path)

	cancel()
	assert.ErrorIs(t, NewRenderer(nil).RenderMoments(ctx, path, m), context.Canceled)
}

func TestBand_Empty(t *testing.T) {
	_, err := band(&stats.Envelope{}, SyntheticColor)
	assert.Error(t, err)
	assert.False(t, positive(&stats.Envelope{Min: []float64{1, 0}}))
}

func TestRender_NonFiniteValues(t *testing.T) {
	inf := math.Inf(-1)
	m := &stats.WeeklyMoments{
		Site:             site.Site{Key: "trainingMichieInflow", Name: "Lake Michie"},
		Space:            "log",
		SyntheticTotals:  [][]float64{{1, 2, inf}, {inf, inf}},
		HistoricalTotals: [][]float64{{inf, 1.5}, {2, 3}},
		SyntheticMeans:   [][]float64{{1, 2}, {math.NaN(), 2}},
		HistoricalMeans:  [][]float64{{inf}, {1}},
		SyntheticStds:    [][]float64{{0.5}, {0.5}},
		HistoricalStds:   [][]float64{{math.NaN()}, {0.4}},
		Tests: []stats.WeekTest{
			{Week: 1, RankSumP: math.NaN(), LeveneP: math.NaN(), Degenerate: true},
			{Week: 2, RankSumP: 0.3, LeveneP: 0.8},
		},
	}
	path := filepath.Join(t.TempDir(), "moments_pvalues_log_Lake Michie-stat.pdf")
	if err := NewRenderer(nil).RenderMoments(context.Background(), path, m); err != nil {
		t.Fatalf("RenderMoments with -Inf flows failed: %v", err)
	}
	assertPDF(t, path)

	res := &stats.VariabilityResult{
		Site:     site.Site{Key: "trainingMichieInflow"},
		Space:    "log",
		Tail:     "drought",
		Quantile: 0.25,
		Curve: stats.ConvergenceCurve{Points: []stats.ConvergencePoint{
			{Checkpoint: 50, Used: 49, Mean: inf, Std: math.NaN()},
			{Checkpoint: 100, Used: 99, Mean: 1.2, Std: math.NaN()},
		}},
		Snapshots: []stats.Snapshot{
			{Checkpoint: 50, Values: []float64{inf, inf}},
			{Checkpoint: 100, Values: []float64{inf, 0.5, 1.5}},
		},
	}
	path = filepath.Join(t.TempDir(), "internal-variability-log-stat.pdf")
	if err := NewRenderer(nil).RenderVariability(context.Background(), path, res); err != nil {
		t.Fatalf("RenderVariability with -Inf flows failed: %v", err)
	}
	assertPDF(t, path)
}
