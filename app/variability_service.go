package app

import (
	"context"
	"fmt"
	"path/filepath"

	"flowval/domain/flow"
	"flowval/domain/report"
	"flowval/domain/run"
	"flowval/domain/site"
	"flowval/domain/stats"
	"flowval/internal"
	"flowval/internal/config"
	"flowval/internal/errors"
	"flowval/internal/variability"
	"flowval/ports"
)

// VariabilityService checks how the tail statistics of one site's synthetic
// ensemble settle as realizations are added
type VariabilityService struct {
	cfg      *config.Config
	reader   ports.GridReader
	locator  ports.GridLocator
	figures  ports.FigureRenderer
	recorder *Recorder
	logger   *internal.Logger
}

// VariabilityRequest names the site; empty fields fall back to the analysis config
type VariabilityRequest struct {
	Site  string
	Space flow.Space
}

// VariabilityResult wraps the analysis result with the files written
type VariabilityResult struct {
	Result       *stats.VariabilityResult
	FigurePath   string
	Manifest     *run.Manifest
	ManifestPath string
}

// NewVariabilityService creates a variability service
func NewVariabilityService(cfg *config.Config, reader ports.GridReader, locator ports.GridLocator,
	figures ports.FigureRenderer, recorder *Recorder, logger *internal.Logger) *VariabilityService {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &VariabilityService{
		cfg:      cfg,
		reader:   reader,
		locator:  locator,
		figures:  figures,
		recorder: recorder,
		logger:   logger,
	}
}

// VariabilityFigurePath is the figure written for a space and the configured tag.
func VariabilityFigurePath(cfg *config.Config, space flow.Space) string {
	return filepath.Join(cfg.Output.FigureDir, fmt.Sprintf("internal-variability-%s-%s.pdf", space, cfg.Data.Tag))
}

// VariabilityOptions converts the analysis config into variability options.
func VariabilityOptions(a config.AnalysisConfig, space flow.Space) (variability.Options, error) {
	tail, err := flow.ParseTail(a.Tail)
	if err != nil {
		return variability.Options{}, errors.ConfigInvalid(err.Error())
	}
	window, err := variability.ParseWindow(a.Window)
	if err != nil {
		return variability.Options{}, errors.ConfigInvalid(err.Error())
	}
	checkpoints, err := variability.Checkpoints(a.CheckpointStart, a.CheckpointStop, a.CheckpointStep)
	if err != nil {
		return variability.Options{}, errors.ConfigInvalid(err.Error())
	}
	return variability.Options{
		Quantile:    a.Quantile,
		Tail:        tail,
		Space:       space,
		Window:      window,
		Checkpoints: checkpoints,
	}, nil
}

// Run loads the site's ensemble file, runs the analysis and draws the figure.
func (s *VariabilityService) Run(ctx context.Context, req VariabilityRequest) (*VariabilityResult, error) {
	target, err := lookupSite(s.cfg, req.Site)
	if err != nil {
		return nil, err
	}
	space := req.Space
	if space == "" {
		if space, err = flow.ParseSpace(s.cfg.Analysis.Space); err != nil {
			return nil, errors.ConfigInvalid(err.Error())
		}
	}
	opts, err := VariabilityOptions(s.cfg.Analysis, space)
	if err != nil {
		return nil, err
	}

	m := run.NewManifest(run.AnalysisVariability, s.cfg.Data.Tag, s.cfg.Analysis.Seed, CodeVersion)
	m.Set("site", string(target.Key))
	m.Set("space", space.String())
	m.Set("tail", opts.Tail.String())
	m.Set("quantile", opts.Quantile)
	m.Set("window", opts.Window.String())
	m.Set("checkpoints", opts.Checkpoints)

	path, err := s.locator.Resolve(s.cfg.Data.SyntheticDir, target.Key, s.cfg.Data.EnsembleSuffix)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to locate ensemble of %s", target)
	}
	grid, err := s.reader.ReadGrid(ctx, path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read ensemble of %s", target)
	}
	if err := m.AddInput(path); err != nil {
		return nil, errors.Wrap(errors.InternalError(err.Error()), "failed to fingerprint input")
	}
	ensemble, err := flow.FromGrid(grid, s.cfg.Data.Weeks)
	if err != nil {
		return nil, errors.Wrapf(err, "ensemble of %s", target)
	}
	s.logger.Info("[variability] %s: %d realizations x %d years", target, ensemble.Realizations(), ensemble.Years())

	res, err := variability.Analyze(target, ensemble, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "variability analysis of %s", target)
	}

	result := &VariabilityResult{Result: res, FigurePath: VariabilityFigurePath(s.cfg, space), Manifest: m}
	if err := s.figures.RenderVariability(ctx, result.FigurePath, res); err != nil {
		return nil, errors.RenderError(result.FigurePath, err)
	}
	m.AddOutput(result.FigurePath)

	last := res.Curve.Points[len(res.Curve.Points)-1]
	s.logger.Info("[variability] %s %s: μ=%.4g σ=%.4g at %d realizations", target, space, last.Mean, last.Std, last.Checkpoint)

	rep := report.New(fmt.Sprintf("Internal variability of %s (%s)", target, s.cfg.Data.Tag)).Add(report.FromConvergence(res))
	if s.recorder != nil {
		if result.ManifestPath, err = s.recorder.Record(ctx, m, rep); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// lookupSite resolves ref, or the configured analysis site when ref is empty.
func lookupSite(cfg *config.Config, ref string) (site.Site, error) {
	catalog, err := cfg.Catalog()
	if err != nil {
		return site.Site{}, errors.ConfigInvalid(err.Error())
	}
	if ref == "" {
		ref = cfg.Analysis.Site
	}
	s, _, err := catalog.Lookup(ref)
	if err != nil {
		return site.Site{}, errors.InvalidInput(err.Error())
	}
	return s, nil
}
