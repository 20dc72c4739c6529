package variability

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"flowval/domain/core"
	"flowval/domain/flow"
	"flowval/domain/site"
	"flowval/internal/testkit"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-12 }

func TestCheckpoints(t *testing.T) {
	cps := DefaultCheckpoints()
	if len(cps) != 20 || cps[0] != 50 || cps[19] != 1000 {
		t.Fatalf("Expected 50..1000 step 50, got %v", cps)
	}

	cps, err := Checkpoints(2, 6, 2)
	if err != nil {
		t.Fatalf("Checkpoints failed: %v", err)
	}
	if len(cps) != 3 || cps[0] != 2 || cps[1] != 4 || cps[2] != 6 {
		t.Errorf("Expected [2 4 6], got %v", cps)
	}

	testCases := []struct {
		name              string
		start, stop, step int
	}{
		{"zero start", 0, 10, 1},
		{"stop before start", 10, 5, 1},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Checkpoints(tc.start, tc.stop, tc.step); !errors.Is(err, core.ErrInvalidCheckpoints) {
				t.Errorf("Expected ErrInvalidCheckpoints, got %v", err)
			}
		})
	}
}

func TestParseWindow(t *testing.T) {
	testCases := []struct {
		in   string
		want Window
	}{
		{"Inclusive", WindowInclusive},
		{"", WindowExclusive},
		{"exclusive", WindowExclusive},
	}
	for _, tc := range testCases {
		w, err := ParseWindow(tc.in)
		if err != nil {
			t.Fatalf("ParseWindow(%q) failed: %v", tc.in, err)
		}
		if w != tc.want {
			t.Errorf("ParseWindow(%q) = %v, expected %v", tc.in, w, tc.want)
		}
	}
	if _, err := ParseWindow("open"); err == nil {
		t.Error("Expected an error for an unknown window")
	}
}

func TestExtractTail_SortsAndSlices(t *testing.T) {
	e, err := flow.NewEnsemble(1, 2, 4, []float64{3, 1, 4, 2, 8, 6, 5, 7})
	if err != nil {
		t.Fatal(err)
	}

	drought, err := ExtractTail(e, 0.5, flow.Drought)
	if err != nil {
		t.Fatalf("ExtractTail failed: %v", err)
	}
	if !floats.Equal(drought.Year(0, 0), []float64{1, 2}) || !floats.Equal(drought.Year(0, 1), []float64{5, 6}) {
		t.Errorf("Unexpected drought tails %v, %v", drought.Year(0, 0), drought.Year(0, 1))
	}

	flood, err := ExtractTail(e, 1.0, flow.Flood)
	if err != nil {
		t.Fatalf("ExtractTail failed: %v", err)
	}
	if !floats.Equal(flood.Year(0, 0), []float64{4, 3, 2, 1}) {
		t.Errorf("Unexpected flood tail %v", flood.Year(0, 0))
	}
	if !floats.Equal(e.Year(0, 0), []float64{3, 1, 4, 2}) {
		t.Errorf("Input was mutated: %v", e.Year(0, 0))
	}
}

func TestExtractTail_InvalidQuantile(t *testing.T) {
	e, err := flow.NewEnsemble(1, 1, 52, make([]float64, 52))
	if err != nil {
		t.Fatal(err)
	}

	for _, q := range []float64{0, -0.5, 1.01, math.NaN(), 0.01} {
		if _, err := ExtractTail(e, q, flow.Drought); !errors.Is(err, core.ErrInvalidQuantile) {
			t.Errorf("Quantile %v: expected ErrInvalidQuantile, got %v", q, err)
		}
	}

	// 52*0.25 = 13 weeks, matching the lower-25% analysis
	out, err := ExtractTail(e, 0.25, flow.Drought)
	if err != nil {
		t.Fatalf("ExtractTail failed: %v", err)
	}
	if out.Weeks() != 13 {
		t.Errorf("Expected 13 kept weeks, got %d", out.Weeks())
	}
}

// ensemble of n realizations x 1 year x 2 weeks where realization r holds
// {r, r+2}: mean r+1, population std 1.
func linearEnsemble(t *testing.T, n int) *flow.Ensemble {
	t.Helper()
	data := make([]float64, 0, 2*n)
	for r := 0; r < n; r++ {
		data = append(data, float64(r), float64(r+2))
	}
	e, err := flow.NewEnsemble(n, 1, 2, data)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestConverge_WindowBoundary(t *testing.T) {
	e := linearEnsemble(t, 4)

	excl, err := Converge(e, []int{2, 4}, WindowExclusive)
	if err != nil {
		t.Fatalf("Converge failed: %v", err)
	}
	if len(excl.Points) != 2 || excl.Window != "exclusive" {
		t.Fatalf("Unexpected curve %+v", excl)
	}
	// checkpoint 2 uses realization 0 only, checkpoint 4 uses 0..2
	p0, p1 := excl.Points[0], excl.Points[1]
	if p0.Used != 1 || !near(p0.Mean, 1.0) {
		t.Errorf("Checkpoint 2: expected 1 realization with mean 1, got %d and %v", p0.Used, p0.Mean)
	}
	if p1.Used != 3 || !near(p1.Mean, 2.0) || !near(p1.Std, 0) {
		t.Errorf("Checkpoint 4: expected 3 realizations, mean 2, std 0, got %+v", p1)
	}

	incl, err := Converge(e, []int{2, 4}, WindowInclusive)
	if err != nil {
		t.Fatalf("Converge failed: %v", err)
	}
	if incl.Points[0].Used != 2 || !near(incl.Points[0].Mean, 1.5) {
		t.Errorf("Inclusive checkpoint 2: got %+v", incl.Points[0])
	}
	if incl.Points[1].Used != 4 || !near(incl.Points[1].Mean, 2.5) {
		t.Errorf("Inclusive checkpoint 4: got %+v", incl.Points[1])
	}
}

func TestConverge_RealizationBounds(t *testing.T) {
	e := linearEnsemble(t, 50)

	// c=50 with the exclusive window needs only 49 realizations
	curve, err := Converge(e, []int{50}, WindowExclusive)
	if err != nil {
		t.Fatalf("Converge failed: %v", err)
	}
	if curve.Points[0].Used != 49 {
		t.Errorf("Expected 49 realizations, got %d", curve.Points[0].Used)
	}

	curve, err = Converge(e, []int{50}, WindowInclusive)
	if err != nil {
		t.Fatalf("Converge failed: %v", err)
	}
	if curve.Points[0].Used != 50 {
		t.Errorf("Expected 50 realizations, got %d", curve.Points[0].Used)
	}

	testCases := []struct {
		name        string
		checkpoints []int
		window      Window
		want        error
	}{
		{"beyond ensemble", []int{51}, WindowInclusive, core.ErrInsufficientRealizations},
		{"nothing before first", []int{1}, WindowExclusive, core.ErrInsufficientRealizations},
		{"decreasing", []int{10, 5}, WindowExclusive, core.ErrInvalidCheckpoints},
		{"none", nil, WindowExclusive, core.ErrInvalidCheckpoints},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Converge(e, tc.checkpoints, tc.window); !errors.Is(err, tc.want) {
				t.Errorf("Expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestConverge_StdIsSpreadOfRealizationStds(t *testing.T) {
	// realization stds 1 and 3 -> population std of {1,3} is 1
	e, err := flow.NewEnsemble(3, 1, 2, []float64{0, 2, 0, 6, 0, 0})
	if err != nil {
		t.Fatal(err)
	}

	curve, err := Converge(e, []int{3}, WindowExclusive)
	if err != nil {
		t.Fatalf("Converge failed: %v", err)
	}
	if !near(curve.Points[0].Std, 1.0) || !near(curve.Points[0].Mean, 2.0) {
		t.Errorf("Expected mean 2 and std 1, got %+v", curve.Points[0])
	}
}

func TestSnapshots(t *testing.T) {
	e := linearEnsemble(t, 4)
	snaps, err := Snapshots(e, []int{2, 4})
	if err != nil {
		t.Fatalf("Snapshots failed: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("Expected 2 snapshots, got %d", len(snaps))
	}
	if snaps[0].Realization != 1 || !floats.Equal(snaps[0].Values, []float64{1, 3}) {
		t.Errorf("Unexpected first snapshot %+v", snaps[0])
	}
	if !floats.Equal(snaps[1].Values, []float64{3, 5}) {
		t.Errorf("Unexpected second snapshot %+v", snaps[1])
	}

	if _, err := Snapshots(e, []int{5}); !errors.Is(err, core.ErrInsufficientRealizations) {
		t.Errorf("Expected ErrInsufficientRealizations, got %v", err)
	}
}

// The checkpointed mean should settle as more realizations are pooled:
// across independent ensembles its variance at c=1000 must not exceed the
// variance at c=50.
func TestConverge_VarianceStabilizes(t *testing.T) {
	const repeats = 12
	first := make([]float64, repeats)
	last := make([]float64, repeats)

	for i := 0; i < repeats; i++ {
		cfg := testkit.DefaultFlowConfig()
		cfg.Seed = int64(1000 + i)
		e := testkit.NewFlowGenerator(cfg).Ensemble(1000, 1)

		tails, err := ExtractTail(e, 0.25, flow.Drought)
		if err != nil {
			t.Fatal(err)
		}
		curve, err := Converge(tails, DefaultCheckpoints(), WindowExclusive)
		if err != nil {
			t.Fatal(err)
		}

		first[i] = curve.Points[0].Mean
		last[i] = curve.Points[len(curve.Points)-1].Mean
	}

	if vl, vf := stat.Variance(last, nil), stat.Variance(first, nil); vl > vf {
		t.Errorf("Variance at c=1000 (%v) exceeds variance at c=50 (%v)", vl, vf)
	}
}

func TestAnalyze(t *testing.T) {
	cfg := testkit.DefaultFlowConfig()
	e := testkit.NewFlowGenerator(cfg).Ensemble(100, 3)
	s := site.Site{Key: "trainingJordanLakeInflow", Name: "Jordan Lake"}

	res, err := Analyze(s, e, Options{
		Quantile:    0.25,
		Tail:        flow.Flood,
		Space:       flow.Log,
		Window:      WindowExclusive,
		Checkpoints: []int{50, 100},
	})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if res.Space != "log" || res.Tail != "flood" || res.Kept != 13 {
		t.Errorf("Unexpected labels: space %s, tail %s, kept %d", res.Space, res.Tail, res.Kept)
	}
	if len(res.Curve.Points) != 2 || len(res.Snapshots) != 2 {
		t.Fatalf("Expected 2 points and 2 snapshots, got %d and %d", len(res.Curve.Points), len(res.Snapshots))
	}
	if len(res.Snapshots[1].Values) != 3*13 {
		t.Errorf("Expected 39 snapshot values, got %d", len(res.Snapshots[1].Values))
	}
	// log-space flood tail of lognormal(8.5, .) flows sits above the log mean
	if res.Curve.Points[1].Mean <= cfg.LogMean {
		t.Errorf("Flood tail mean %v not above log mean %v", res.Curve.Points[1].Mean, cfg.LogMean)
	}
	if math.IsNaN(res.Curve.Points[1].Std) {
		t.Error("Std is NaN")
	}
}
