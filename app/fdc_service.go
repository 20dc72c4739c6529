package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"flowval/domain/core"
	"flowval/domain/flow"
	"flowval/domain/report"
	"flowval/domain/run"
	"flowval/domain/site"
	"flowval/domain/stats"
	"flowval/internal"
	"flowval/internal/config"
	"flowval/internal/errors"
	"flowval/internal/fdc"
	"flowval/ports"
)

// FDCTitle heads the flow-duration-curve figure.
const FDCTitle = "Flow duration curves assuming extreme flooding"

// FDCService compares historical and synthetic flow duration curve ranges
type FDCService struct {
	cfg      *config.Config
	assembly *AssemblyService
	matrices ports.MatrixStore
	builder  *fdc.Builder
	figures  ports.FigureRenderer
	recorder *Recorder
	logger   *internal.Logger
}

// FDCRequest controls where the matrices come from
type FDCRequest struct {
	// Reassemble rebuilds the Qdaily matrices even when both files exist.
	Reassemble bool
	Title      string
}

// FDCResult contains the per-site envelopes and the files written
type FDCResult struct {
	Ranges       []stats.SiteRange
	FigurePath   string
	Manifest     *run.Manifest
	ManifestPath string
}

// NewFDCService creates an FDC service. assembly is used when the Qdaily
// matrices are missing or a rebuild is requested.
func NewFDCService(cfg *config.Config, assembly *AssemblyService, matrices ports.MatrixStore,
	figures ports.FigureRenderer, recorder *Recorder, logger *internal.Logger) *FDCService {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &FDCService{
		cfg:      cfg,
		assembly: assembly,
		matrices: matrices,
		builder:  fdc.NewBuilder(cfg.Workers, logger),
		figures:  figures,
		recorder: recorder,
		logger:   logger,
	}
}

// FDCFigurePath is the figure written for the configured dataset tag.
func FDCFigurePath(cfg *config.Config) string {
	return filepath.Join(cfg.Output.FigureDir, fmt.Sprintf("FDCs-%s.pdf", cfg.Data.Tag))
}

// Run loads both Qdaily matrices, builds every site's annual FDC envelopes
// and draws them side by side.
func (s *FDCService) Run(ctx context.Context, req FDCRequest) (*FDCResult, error) {
	catalog, err := s.cfg.Catalog()
	if err != nil {
		return nil, errors.ConfigInvalid(err.Error())
	}

	m := run.NewManifest(run.AnalysisFDC, s.cfg.Data.Tag, s.cfg.Analysis.Seed, CodeVersion)
	m.Set("window", s.cfg.Data.Weeks)

	hist, syn, catalog, err := s.load(ctx, catalog, req.Reassemble, m)
	if err != nil {
		return nil, err
	}

	ranges, err := s.builder.BuildRanges(ctx, hist, syn, s.cfg.Data.Weeks, catalog)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build flow duration curve ranges")
	}
	for _, r := range ranges {
		s.logger.Debug("[fdc] %s: %d historical, %d synthetic years, coverage %.2f",
			r.Site, r.Historical.Years, r.Synthetic.Years, r.Coverage())
	}

	title := req.Title
	if title == "" {
		title = FDCTitle
	}
	result := &FDCResult{Ranges: ranges, FigurePath: FDCFigurePath(s.cfg), Manifest: m}
	if err := s.figures.RenderFDCRanges(ctx, result.FigurePath, title, ranges); err != nil {
		return nil, errors.RenderError(result.FigurePath, err)
	}
	m.AddOutput(result.FigurePath)
	s.logger.Info("[fdc] %d sites plotted to %s", len(ranges), result.FigurePath)

	rep := report.New(fmt.Sprintf("Flow duration curve ranges (%s)", s.cfg.Data.Tag)).Add(report.FromRanges(ranges))
	if s.recorder != nil {
		if result.ManifestPath, err = s.recorder.Record(ctx, m, rep); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// load reads both Qdaily matrices and labels their columns with the site
// order recorded when they were written, which differs from the configured
// catalog after a discovery assembly. Matrices without a recorded order are
// reassembled.
func (s *FDCService) load(ctx context.Context, catalog site.Catalog, reassemble bool, m *run.Manifest) (*flow.Matrix, *flow.Matrix, site.Catalog, error) {
	histPath, synPath := HistoricalMatrixPath(s.cfg), SyntheticMatrixPath(s.cfg)

	assemble := reassemble || !exists(histPath) || !exists(synPath)
	if !assemble {
		order, err := s.columnOrder(ctx, histPath, synPath)
		switch {
		case core.IsNoInputError(err):
			s.logger.Warn("[fdc] %v, reassembling", err)
			assemble = true
		case err != nil:
			return nil, nil, nil, errors.Wrap(err, "failed to read matrix column order")
		default:
			catalog = catalog.Arrange(order)
		}
	}

	if assemble {
		if s.assembly == nil {
			return nil, nil, nil, errors.Wrap(errors.InvalidInput("no assembled matrices at "+histPath+" and "+synPath), "failed to load matrices")
		}
		s.logger.Info("[fdc] assembling Qdaily matrices for dataset %s", s.cfg.Data.Tag)
		res, err := s.assembly.Run(ctx, AssemblyRequest{})
		if err != nil {
			return nil, nil, nil, err
		}
		catalog = res.Catalog
		histPath, synPath = res.HistoricalPath, res.SyntheticPath
	}

	keys := catalog.Keys()
	hist, err := s.matrices.ReadMatrix(ctx, histPath, keys, s.cfg.Data.Weeks)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "failed to read historical matrix")
	}
	syn, err := s.matrices.ReadMatrix(ctx, synPath, keys, s.cfg.Data.Weeks)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "failed to read synthetic matrix")
	}
	for _, p := range []string{histPath, synPath} {
		if err := m.AddInput(p); err != nil {
			return nil, nil, nil, errors.Wrap(errors.InternalError(err.Error()), "failed to fingerprint input")
		}
	}
	return hist, syn, catalog, nil
}

// columnOrder returns the recorded site order shared by both matrices.
func (s *FDCService) columnOrder(ctx context.Context, histPath, synPath string) ([]core.SiteKey, error) {
	hist, err := s.matrices.Sites(ctx, histPath)
	if err != nil {
		return nil, err
	}
	syn, err := s.matrices.Sites(ctx, synPath)
	if err != nil {
		return nil, err
	}
	if !site.FromKeys(hist).Equal(site.FromKeys(syn)) {
		return nil, fmt.Errorf("%w: %s has columns %v, %s has %v", core.ErrSiteMismatch, histPath, hist, synPath, syn)
	}
	return hist, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
