package app

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"flowval/adapters/csvgrid"
	"flowval/adapters/excel"
	"flowval/adapters/markdown"
	"flowval/adapters/plot"
	"flowval/adapters/rng"
	"flowval/domain/core"
	"flowval/domain/flow"
	"flowval/domain/report"
	"flowval/domain/run"
	"flowval/domain/site"
	"flowval/domain/stats"
	"flowval/internal/config"
	"flowval/internal/errors"
	"flowval/internal/fdc"
	"flowval/internal/testkit"
)

type mockFigures struct {
	mock.Mock
}

func (m *mockFigures) RenderFDCRanges(ctx context.Context, path, title string, ranges []stats.SiteRange) error {
	return m.Called(ctx, path, title, ranges).Error(0)
}

func (m *mockFigures) RenderVariability(ctx context.Context, path string, res *stats.VariabilityResult) error {
	return m.Called(ctx, path, res).Error(0)
}

func (m *mockFigures) RenderMoments(ctx context.Context, path string, wm *stats.WeeklyMoments) error {
	return m.Called(ctx, path, wm).Error(0)
}

type mockArchive struct {
	mock.Mock
}

func (m *mockArchive) SaveRun(ctx context.Context, manifest *run.Manifest, r *report.Report) error {
	return m.Called(ctx, manifest, r).Error(0)
}

func (m *mockArchive) GetRun(ctx context.Context, runID string) (*run.Manifest, error) {
	args := m.Called(ctx, runID)
	return args.Get(0).(*run.Manifest), args.Error(1)
}

func (m *mockArchive) ListRuns(ctx context.Context, analysis run.Analysis, limit int) ([]*run.Manifest, error) {
	args := m.Called(ctx, analysis, limit)
	return args.Get(0).([]*run.Manifest), args.Error(1)
}

var testCatalog = site.Catalog{
	{Key: "trainingAlphaInflow", Name: "Alpha Creek"},
	{Key: "trainingBetaInflow", Name: "Beta/Gamma Lake"},
}

const (
	testHistYears    = 6
	testRealizations = 12
	testEnsYears     = 3
)

// newStudy writes a two-site study and returns a config pointing at it.
func newStudy(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	study, err := testkit.WriteStudy(root, testkit.StudyConfig{
		Catalog:          testCatalog,
		HistoricalYears:  testHistYears,
		Realizations:     testRealizations,
		EnsembleYears:    testEnsYears,
		HistoricalSuffix: ".csv",
		SyntheticSuffix:  "_SYN01.csv",
		EnsembleSuffix:   "_SYN60.csv",
		Flow:             testkit.DefaultFlowConfig(),
	})
	require.NoError(t, err)

	cfg := config.Default()
	for _, s := range testCatalog {
		cfg.Sites = append(cfg.Sites, config.SiteConfig{Key: string(s.Key), Name: s.Name})
	}
	cfg.Data.HistoricalYears = testHistYears
	cfg.Data.Realizations = testRealizations
	cfg.Data.HistoricalDir = study.HistoricalDir
	cfg.Data.SyntheticDir = study.SyntheticDir
	cfg.Analysis.Site = "trainingAlphaInflow"
	cfg.Analysis.CheckpointStart = 4
	cfg.Analysis.CheckpointStop = 12
	cfg.Analysis.CheckpointStep = 4
	cfg.Output.FigureDir = filepath.Join(root, "figures")
	cfg.Output.ReportDir = filepath.Join(root, "reports")
	cfg.Workers = 2
	require.NoError(t, cfg.Validate())
	return cfg
}

func newRecorder(cfg *config.Config) *Recorder {
	return NewRecorder(cfg.Output, excel.NewWriter(nil), markdown.NewWriter(nil), nil, nil)
}

func newAssembly(cfg *config.Config) *AssemblyService {
	return NewAssemblyService(cfg, csvgrid.NewReader(nil), csvgrid.Locator{}, csvgrid.NewMatrixStore(nil), newRecorder(cfg), nil)
}

func TestAssemblyService_Run(t *testing.T) {
	cfg := newStudy(t)
	res, err := newAssembly(cfg).Run(context.Background(), AssemblyRequest{})
	require.NoError(t, err)

	assert.Equal(t, testHistYears*flow.WeeksPerYear, res.Historical.Rows())
	assert.Equal(t, testRealizations*flow.WeeksPerYear, res.Synthetic.Rows())
	assert.Equal(t, len(testCatalog), res.Historical.Cols())
	assert.False(t, res.Historical.HasNaN())
	assert.Equal(t, testCatalog.Keys(), res.Synthetic.Sites())

	assert.FileExists(t, res.HistoricalPath)
	assert.FileExists(t, res.SyntheticPath)
	assert.Equal(t, "Qdaily-syn-stat.csv", filepath.Base(res.SyntheticPath))
	assert.Len(t, res.Manifest.Inputs, 2*len(testCatalog))
	assert.Contains(t, res.Manifest.Outputs, res.HistoricalPath)

	loaded, err := run.LoadManifest(res.ManifestPath)
	require.NoError(t, err)
	assert.Equal(t, res.Manifest.RunID, loaded.RunID)
	assert.False(t, loaded.Fingerprint.Fingerprint.IsEmpty())
}

func TestAssemblyService_DiscoverIgnoresQdaily(t *testing.T) {
	cfg := newStudy(t)
	svc := newAssembly(cfg)
	_, err := svc.Run(context.Background(), AssemblyRequest{})
	require.NoError(t, err)

	// the first run left Qdaily-hist.csv in the historical directory
	res, err := svc.Run(context.Background(), AssemblyRequest{Discover: true})
	require.NoError(t, err)
	assert.Equal(t, testCatalog.Sorted().Keys(), res.Catalog.Keys())
}

func TestAssemblyService_ShapeMismatch(t *testing.T) {
	cfg := newStudy(t)
	cfg.Data.HistoricalYears = testHistYears + 1

	_, err := newAssembly(cfg).Run(context.Background(), AssemblyRequest{})
	require.Error(t, err)
	assert.Equal(t, errors.CodeShapeMismatch, errors.GetCode(err))
	assert.ErrorIs(t, err, core.ErrShapeMismatch)
}

func TestAssemblyService_MissingSite(t *testing.T) {
	cfg := newStudy(t)
	cfg.Sites = append(cfg.Sites, config.SiteConfig{Key: "trainingMissingInflow"})

	_, err := newAssembly(cfg).Run(context.Background(), AssemblyRequest{})
	require.Error(t, err)
	assert.Equal(t, errors.CodeNoInput, errors.GetCode(err))
}

func TestFDCService_AssemblesWhenMissing(t *testing.T) {
	cfg := newStudy(t)
	figures := &mockFigures{}
	figures.On("RenderFDCRanges", mock.Anything, FDCFigurePath(cfg), FDCTitle, mock.Anything).Return(nil)

	svc := NewFDCService(cfg, newAssembly(cfg), csvgrid.NewMatrixStore(nil), figures, newRecorder(cfg), nil)
	res, err := svc.Run(context.Background(), FDCRequest{})
	require.NoError(t, err)
	figures.AssertExpectations(t)

	require.Len(t, res.Ranges, len(testCatalog))
	for i, r := range res.Ranges {
		assert.Equal(t, testCatalog[i], r.Site)
		assert.Equal(t, testHistYears, r.Historical.Years)
		assert.Equal(t, testRealizations, r.Synthetic.Years)
	}
	assert.FileExists(t, HistoricalMatrixPath(cfg))
	assert.Contains(t, res.Manifest.Outputs, res.FigurePath)
	assert.FileExists(t, filepath.Join(cfg.Output.ReportDir, "manifest-fdc-stat.yaml"))
}

func TestFDCService_NoMatricesNoAssembler(t *testing.T) {
	cfg := newStudy(t)
	svc := NewFDCService(cfg, nil, csvgrid.NewMatrixStore(nil), &mockFigures{}, nil, nil)

	_, err := svc.Run(context.Background(), FDCRequest{})
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
}

func TestFDCService_RenderFailure(t *testing.T) {
	cfg := newStudy(t)
	figures := &mockFigures{}
	figures.On("RenderFDCRanges", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(assert.AnError)

	svc := NewFDCService(cfg, newAssembly(cfg), csvgrid.NewMatrixStore(nil), figures, nil, nil)
	_, err := svc.Run(context.Background(), FDCRequest{})
	require.Error(t, err)
	assert.Equal(t, errors.CodeRenderError, errors.GetCode(err))
	assert.ErrorIs(t, err, assert.AnError)
}

func TestFDCService_FollowsDiscoveredColumnOrder(t *testing.T) {
	cfg := newStudy(t)
	// configured order is not the sorted discovery order
	cfg.Sites[0], cfg.Sites[1] = cfg.Sites[1], cfg.Sites[0]

	_, err := newAssembly(cfg).Run(context.Background(), AssemblyRequest{Discover: true})
	require.NoError(t, err)
	order, err := csvgrid.NewMatrixStore(nil).Sites(context.Background(), HistoricalMatrixPath(cfg))
	require.NoError(t, err)
	assert.Equal(t, testCatalog.Sorted().Keys(), order)

	figures := &mockFigures{}
	figures.On("RenderFDCRanges", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	svc := NewFDCService(cfg, nil, csvgrid.NewMatrixStore(nil), figures, nil, nil)
	res, err := svc.Run(context.Background(), FDCRequest{})
	require.NoError(t, err)

	require.Len(t, res.Ranges, len(testCatalog))
	for _, r := range res.Ranges {
		want, _, err := testCatalog.Lookup(string(r.Site.Key))
		require.NoError(t, err)
		assert.Equal(t, want, r.Site, "display name follows the key")

		grid, err := csvgrid.NewReader(nil).ReadGrid(context.Background(), filepath.Join(cfg.Data.HistoricalDir, string(r.Site.Key)+".csv"))
		require.NoError(t, err)
		own, err := fdc.BuildEnvelope(grid.Flatten(), flow.WeeksPerYear)
		require.NoError(t, err)
		assert.InDeltaSlice(t, own.Max, r.Historical.Max, 1e-9, "site %s", r.Site.Key)
		assert.InDeltaSlice(t, own.Min, r.Historical.Min, 1e-9, "site %s", r.Site.Key)
	}
}

func TestFDCService_MatrixWithoutColumnOrder(t *testing.T) {
	cfg := newStudy(t)
	_, err := newAssembly(cfg).Run(context.Background(), AssemblyRequest{})
	require.NoError(t, err)
	sidecar := csvgrid.SitesPath(HistoricalMatrixPath(cfg))
	require.NoError(t, os.Remove(sidecar))

	svc := NewFDCService(cfg, nil, csvgrid.NewMatrixStore(nil), &mockFigures{}, nil, nil)
	_, err = svc.Run(context.Background(), FDCRequest{})
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))

	figures := &mockFigures{}
	figures.On("RenderFDCRanges", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	svc = NewFDCService(cfg, newAssembly(cfg), csvgrid.NewMatrixStore(nil), figures, nil, nil)
	res, err := svc.Run(context.Background(), FDCRequest{})
	require.NoError(t, err)
	assert.Equal(t, testCatalog[0], res.Ranges[0].Site)
	assert.FileExists(t, sidecar, "reassembly records the column order")
}

func TestVariabilityService_Run(t *testing.T) {
	cfg := newStudy(t)
	figures := &mockFigures{}
	figures.On("RenderVariability", mock.Anything, VariabilityFigurePath(cfg, flow.Log), mock.Anything).Return(nil)

	svc := NewVariabilityService(cfg, csvgrid.NewReader(nil), csvgrid.Locator{}, figures, newRecorder(cfg), nil)
	res, err := svc.Run(context.Background(), VariabilityRequest{Space: flow.Log})
	require.NoError(t, err)
	figures.AssertExpectations(t)

	assert.Equal(t, testCatalog[0], res.Result.Site)
	assert.Equal(t, "log", res.Result.Space)
	require.Len(t, res.Result.Curve.Points, 3)
	assert.Equal(t, []int{3, 7, 11}, []int{
		res.Result.Curve.Points[0].Used, res.Result.Curve.Points[1].Used, res.Result.Curve.Points[2].Used,
	})
	assert.Equal(t, flow.WeeksPerYear, res.Result.Kept)
	assert.Equal(t, "internal-variability-log-stat.pdf", filepath.Base(res.FigurePath))
}

func TestVariabilityService_SiteByName(t *testing.T) {
	cfg := newStudy(t)
	cfg.Analysis.Quantile = 0.25
	cfg.Analysis.Tail = "drought"
	figures := &mockFigures{}
	figures.On("RenderVariability", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	svc := NewVariabilityService(cfg, csvgrid.NewReader(nil), csvgrid.Locator{}, figures, nil, nil)
	res, err := svc.Run(context.Background(), VariabilityRequest{Site: "beta/gamma lake", Space: flow.Real})
	require.NoError(t, err)
	assert.Equal(t, testCatalog[1], res.Result.Site)
	assert.Equal(t, 13, res.Result.Kept)
	assert.Equal(t, "drought", res.Result.Tail)
}

func TestVariabilityService_Errors(t *testing.T) {
	t.Run("unknown site", func(t *testing.T) {
		cfg := newStudy(t)
		svc := NewVariabilityService(cfg, csvgrid.NewReader(nil), csvgrid.Locator{}, &mockFigures{}, nil, nil)
		_, err := svc.Run(context.Background(), VariabilityRequest{Site: "nowhere"})
		require.Error(t, err)
		assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
	})

	t.Run("too few realizations", func(t *testing.T) {
		cfg := newStudy(t)
		cfg.Analysis.CheckpointStop = 20
		svc := NewVariabilityService(cfg, csvgrid.NewReader(nil), csvgrid.Locator{}, &mockFigures{}, nil, nil)
		_, err := svc.Run(context.Background(), VariabilityRequest{})
		require.Error(t, err)
		assert.ErrorIs(t, err, core.ErrInsufficientRealizations)
	})
}

func TestMomentsService_Run(t *testing.T) {
	cfg := newStudy(t)
	figures := &mockFigures{}
	figures.On("RenderMoments", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	svc, err := NewMomentsService(cfg, csvgrid.NewReader(nil), csvgrid.Locator{}, rng.NewSeededAdapter(), figures, newRecorder(cfg), nil)
	require.NoError(t, err)
	res, err := svc.Run(context.Background(), MomentsRequest{Site: "trainingBetaInflow"})
	require.NoError(t, err)

	require.Len(t, res.Moments, 2)
	assert.Equal(t, "real", res.Moments[0].Space)
	assert.Equal(t, "log", res.Moments[1].Space)
	for _, wm := range res.Moments {
		require.Equal(t, flow.WeeksPerYear, wm.Weeks())
		require.Len(t, wm.HistoricalMeans, flow.WeeksPerYear)
		assert.Len(t, wm.HistoricalMeans[0], testRealizations, "one bootstrap resample per realization")
		for _, w := range wm.Tests {
			assert.True(t, w.RankSumP >= 0 && w.RankSumP <= 1, "week %d rank-sum p %v", w.Week, w.RankSumP)
			assert.True(t, w.LeveneP >= 0 && w.LeveneP <= 1, "week %d levene p %v", w.Week, w.LeveneP)
		}
	}

	assert.Equal(t, []string{
		filepath.Join(cfg.Output.FigureDir, "moments_pvalues_real_Beta-Gamma Lake-stat.pdf"),
		filepath.Join(cfg.Output.FigureDir, "moments_pvalues_log_Beta-Gamma Lake-stat.pdf"),
	}, res.FigurePaths)
	figures.AssertNumberOfCalls(t, "RenderMoments", 2)
}

func TestMomentsService_ZeroFlowInLogSpace(t *testing.T) {
	cfg := newStudy(t)
	path := filepath.Join(cfg.Data.HistoricalDir, "trainingAlphaInflow.csv")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(string(raw), "\n")
	fields := strings.Split(lines[0], ",")
	fields[3] = "0"
	lines[0] = strings.Join(fields, ",")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644))

	svc, err := NewMomentsService(cfg, csvgrid.NewReader(nil), csvgrid.Locator{}, rng.NewSeededAdapter(),
		plot.NewRenderer(nil), newRecorder(cfg), nil)
	require.NoError(t, err)
	res, err := svc.Run(context.Background(), MomentsRequest{Spaces: []flow.Space{flow.Log}})
	require.NoError(t, err)

	wm := res.Moments[0]
	assert.True(t, wm.Tests[3].Degenerate)
	assert.True(t, math.IsNaN(wm.Tests[3].LeveneP))
	assert.FileExists(t, res.FigurePaths[0])
	assert.FileExists(t, res.ManifestPath)
}

func TestMomentsService_Reproducible(t *testing.T) {
	cfg := newStudy(t)
	figures := &mockFigures{}
	figures.On("RenderMoments", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	runOnce := func() *stats.WeeklyMoments {
		svc, err := NewMomentsService(cfg, csvgrid.NewReader(nil), csvgrid.Locator{}, rng.NewSeededAdapter(), figures, nil, nil)
		require.NoError(t, err)
		res, err := svc.Run(context.Background(), MomentsRequest{Spaces: []flow.Space{flow.Real}})
		require.NoError(t, err)
		return res.Moments[0]
	}
	a, b := runOnce(), runOnce()
	assert.Equal(t, a.HistoricalMeans, b.HistoricalMeans)
	assert.Equal(t, a.Tests, b.Tests)
}

func TestNewMomentsService_BadCenter(t *testing.T) {
	cfg := newStudy(t)
	cfg.Analysis.LeveneCenter = "trimmed"
	_, err := NewMomentsService(cfg, csvgrid.NewReader(nil), csvgrid.Locator{}, rng.NewSeededAdapter(), &mockFigures{}, nil, nil)
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
}

func TestRecorder_WritesArtifactsAndArchives(t *testing.T) {
	cfg := newStudy(t)
	cfg.Output.Report = true
	cfg.Output.Summary = true

	archive := &mockArchive{}
	archive.On("SaveRun", mock.Anything, mock.AnythingOfType("*run.Manifest"), mock.AnythingOfType("*report.Report")).Return(nil)
	rec := NewRecorder(cfg.Output, excel.NewWriter(nil), markdown.NewWriter(nil), archive, nil)

	m := run.NewManifest(run.AnalysisFDC, "stat", 42, CodeVersion)
	tbl := report.Table{Name: "fdc-ranges", Columns: []string{"site", "coverage"}}
	require.NoError(t, tbl.AddRow("Alpha Creek", 0.9))

	path, err := rec.Record(context.Background(), m, report.New("FDC").Add(tbl))
	require.NoError(t, err)
	archive.AssertExpectations(t)

	assert.FileExists(t, path)
	for _, name := range []string{"report-fdc-stat.xlsx", "summary-fdc-stat.md", "summary-fdc-stat.html"} {
		assert.Contains(t, m.Outputs, filepath.Join(cfg.Output.ReportDir, name))
		assert.FileExists(t, filepath.Join(cfg.Output.ReportDir, name))
	}
	assert.False(t, m.FinishedAt.IsZero())
}

func TestReadRunReport(t *testing.T) {
	cfg := newStudy(t)
	cfg.Output.Report = true
	rec := NewRecorder(cfg.Output, excel.NewWriter(nil), nil, nil, nil)

	m := run.NewManifest(run.AnalysisFDC, "stat", 42, CodeVersion)
	tbl := report.Table{Name: "fdc-ranges", Columns: []string{"site", "coverage"}}
	require.NoError(t, tbl.AddRow("Alpha Creek", 0.9))
	_, err := rec.Record(context.Background(), m, report.New("FDC").Add(tbl))
	require.NoError(t, err)

	back, err := ReadRunReport(context.Background(), m, excel.NewReader(nil))
	require.NoError(t, err)
	got, ok := back.Table("fdc-ranges")
	require.True(t, ok)
	assert.Equal(t, []interface{}{"Alpha Creek", "0.9"}, got.Rows[0])

	_, err = ReadRunReport(context.Background(), run.NewManifest(run.AnalysisFDC, "stat", 42, CodeVersion), excel.NewReader(nil))
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))
}

func TestRecorder_ArchiveFailure(t *testing.T) {
	cfg := newStudy(t)
	archive := &mockArchive{}
	archive.On("SaveRun", mock.Anything, mock.Anything, mock.Anything).Return(errors.DatabaseError("connection refused"))
	rec := NewRecorder(cfg.Output, nil, nil, archive, nil)

	path, err := rec.Record(context.Background(), run.NewManifest(run.AnalysisFDC, "stat", 42, CodeVersion), report.New("FDC"))
	require.Error(t, err)
	assert.Equal(t, errors.CodeDatabaseError, errors.GetCode(err))
	assert.FileExists(t, path, "manifest is written before archiving")
}

func TestInventory(t *testing.T) {
	cfg := newStudy(t)
	cfg.Sites = append(cfg.Sites, config.SiteConfig{Key: "trainingMissingInflow"})
	require.NoError(t, os.Remove(filepath.Join(cfg.Data.SyntheticDir, "trainingBetaInflow_SYN60.csv")))

	files, err := Inventory(cfg, csvgrid.Locator{})
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.True(t, files[0].Complete())
	assert.False(t, files[1].Complete())
	assert.NotEmpty(t, files[1].Historical)
	assert.Empty(t, files[1].Ensemble)
	assert.Empty(t, files[2].Historical)
}

func TestPipeline_Run(t *testing.T) {
	cfg := newStudy(t)
	figures := &mockFigures{}
	figures.On("RenderFDCRanges", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	figures.On("RenderVariability", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	figures.On("RenderMoments", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	rec := newRecorder(cfg)
	assembly := newAssembly(cfg)
	moments, err := NewMomentsService(cfg, csvgrid.NewReader(nil), csvgrid.Locator{}, rng.NewSeededAdapter(), figures, rec, nil)
	require.NoError(t, err)
	p := &Pipeline{
		Assembly:    assembly,
		FDC:         NewFDCService(cfg, assembly, csvgrid.NewMatrixStore(nil), figures, rec, nil),
		Variability: NewVariabilityService(cfg, csvgrid.NewReader(nil), csvgrid.Locator{}, figures, rec, nil),
		Moments:     moments,
	}

	res, err := p.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, res.Variability, 2)
	assert.Len(t, res.Moments.Moments, 2)
	figures.AssertNumberOfCalls(t, "RenderVariability", 2)

	for _, a := range []run.Analysis{run.AnalysisAssemble, run.AnalysisFDC, run.AnalysisVariability, run.AnalysisMoments} {
		assert.FileExists(t, filepath.Join(cfg.Output.ReportDir, "manifest-"+string(a)+"-stat.yaml"))
	}
}
