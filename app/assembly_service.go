package app

import (
	"context"
	"fmt"
	"path/filepath"

	"flowval/domain/flow"
	"flowval/domain/report"
	"flowval/domain/run"
	"flowval/domain/site"
	"flowval/internal"
	"flowval/internal/assembly"
	"flowval/internal/config"
	"flowval/internal/errors"
	"flowval/ports"
)

// AssemblyService builds the historical and synthetic Qdaily matrices
type AssemblyService struct {
	cfg       *config.Config
	assembler *assembly.Assembler
	matrices  ports.MatrixStore
	recorder  *Recorder
	logger    *internal.Logger
}

// AssemblyRequest selects the sites to assemble
type AssemblyRequest struct {
	// Discover ignores the configured catalog and takes the sorted historical
	// file keys instead. Synthetic files must exist for the same keys.
	Discover bool
}

// AssemblyResult holds both matrices and where they were written
type AssemblyResult struct {
	Catalog        site.Catalog
	Historical     *flow.Matrix
	Synthetic      *flow.Matrix
	HistoricalPath string
	SyntheticPath  string
	Manifest       *run.Manifest
	ManifestPath   string
}

// NewAssemblyService creates an assembly service
func NewAssemblyService(cfg *config.Config, reader ports.GridReader, locator ports.GridLocator,
	matrices ports.MatrixStore, recorder *Recorder, logger *internal.Logger) *AssemblyService {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &AssemblyService{
		cfg:       cfg,
		assembler: assembly.NewAssembler(reader, locator, cfg.Workers, logger),
		matrices:  matrices,
		recorder:  recorder,
		logger:    logger,
	}
}

// HistoricalMatrixPath is where the assembled historical matrix lives.
func HistoricalMatrixPath(cfg *config.Config) string {
	return filepath.Join(cfg.Data.HistoricalDir, "Qdaily-hist.csv")
}

// SyntheticMatrixPath is where the assembled synthetic matrix of the dataset tag lives.
func SyntheticMatrixPath(cfg *config.Config) string {
	return filepath.Join(cfg.Data.SyntheticDir, fmt.Sprintf("Qdaily-syn-%s.csv", cfg.Data.Tag))
}

func historicalSource(cfg *config.Config) assembly.Source {
	return assembly.Source{
		Label:  "historical",
		Dir:    cfg.Data.HistoricalDir,
		Suffix: cfg.Data.HistoricalSuffix,
		Match:  cfg.Data.HistoricalMatch,
		Rows:   cfg.Data.HistoricalYears * cfg.Data.Weeks,
		Weeks:  cfg.Data.Weeks,
	}
}

func syntheticSource(cfg *config.Config) assembly.Source {
	return assembly.Source{
		Label:  "synthetic",
		Dir:    cfg.Data.SyntheticDir,
		Suffix: cfg.Data.SyntheticSuffix,
		Rows:   cfg.Data.Realizations * cfg.Data.Weeks,
		Weeks:  cfg.Data.Weeks,
	}
}

// Run assembles both datasets, writes the two Qdaily files and records the run.
func (s *AssemblyService) Run(ctx context.Context, req AssemblyRequest) (*AssemblyResult, error) {
	catalog, err := s.cfg.Catalog()
	if err != nil {
		return nil, errors.ConfigInvalid(err.Error())
	}
	if req.Discover {
		catalog = nil
	}

	m := run.NewManifest(run.AnalysisAssemble, s.cfg.Data.Tag, s.cfg.Analysis.Seed, CodeVersion)
	m.Set("weeks", s.cfg.Data.Weeks)
	m.Set("historical_years", s.cfg.Data.HistoricalYears)
	m.Set("realizations", s.cfg.Data.Realizations)
	m.Set("discover", req.Discover)

	histSrc := historicalSource(s.cfg)
	catalog, histPaths, err := s.assembler.Resolve(histSrc, catalog)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve historical files")
	}
	synSrc := syntheticSource(s.cfg)
	_, synPaths, err := s.assembler.Resolve(synSrc, catalog)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve synthetic files")
	}

	s.logger.Info("[assemble] %d sites, dataset %s", len(catalog), s.cfg.Data.Tag)

	hist, err := s.assembler.Load(ctx, histSrc, catalog, histPaths)
	if err != nil {
		return nil, errors.Wrap(err, "failed to assemble historical matrix")
	}
	syn, err := s.assembler.Load(ctx, synSrc, catalog, synPaths)
	if err != nil {
		return nil, errors.Wrap(err, "failed to assemble synthetic matrix")
	}

	for _, p := range append(append([]string{}, histPaths...), synPaths...) {
		if err := m.AddInput(p); err != nil {
			return nil, errors.Wrap(errors.InternalError(err.Error()), "failed to fingerprint input")
		}
	}

	result := &AssemblyResult{
		Catalog:        catalog,
		Historical:     hist,
		Synthetic:      syn,
		HistoricalPath: HistoricalMatrixPath(s.cfg),
		SyntheticPath:  SyntheticMatrixPath(s.cfg),
		Manifest:       m,
	}
	if err := s.matrices.WriteMatrix(ctx, result.HistoricalPath, hist); err != nil {
		return nil, errors.Wrap(err, "failed to write historical matrix")
	}
	m.AddOutput(result.HistoricalPath)
	if err := s.matrices.WriteMatrix(ctx, result.SyntheticPath, syn); err != nil {
		return nil, errors.Wrap(err, "failed to write synthetic matrix")
	}
	m.AddOutput(result.SyntheticPath)

	rep := report.New(fmt.Sprintf("Qdaily assembly (%s)", s.cfg.Data.Tag)).Add(
		report.FromAssembly("historical", hist, catalog),
		report.FromAssembly("synthetic", syn, catalog),
	)
	if s.recorder != nil {
		if result.ManifestPath, err = s.recorder.Record(ctx, m, rep); err != nil {
			return nil, err
		}
	}
	return result, nil
}
