package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"flowval/domain/flow"
	"flowval/domain/report"
	"flowval/domain/run"
	"flowval/domain/site"
	"flowval/domain/stats"
	"flowval/internal"
	"flowval/internal/config"
	"flowval/internal/errors"
	"flowval/internal/moments"
	"flowval/ports"
)

// MomentsService compares weekly flow distributions of one site's
// historical record and synthetic ensemble in every requested space
type MomentsService struct {
	cfg      *config.Config
	reader   ports.GridReader
	locator  ports.GridLocator
	analyzer *moments.Analyzer
	figures  ports.FigureRenderer
	recorder *Recorder
	logger   *internal.Logger
}

// MomentsRequest names the site and spaces; empty values use the config
// site and both spaces
type MomentsRequest struct {
	Site   string
	Spaces []flow.Space
}

// MomentsResult holds one WeeklyMoments and one figure per space
type MomentsResult struct {
	Moments      []*stats.WeeklyMoments
	FigurePaths  []string
	Manifest     *run.Manifest
	ManifestPath string
}

// NewMomentsService creates a moments service. The Levene centering comes
// from analysis.levene_center.
func NewMomentsService(cfg *config.Config, reader ports.GridReader, locator ports.GridLocator, rng ports.RNGPort,
	figures ports.FigureRenderer, recorder *Recorder, logger *internal.Logger) (*MomentsService, error) {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	center, err := moments.ParseCenter(cfg.Analysis.LeveneCenter)
	if err != nil {
		return nil, errors.ConfigInvalid(err.Error())
	}
	return &MomentsService{
		cfg:      cfg,
		reader:   reader,
		locator:  locator,
		analyzer: moments.NewAnalyzer(rng, cfg.Workers, logger).WithCenter(center),
		figures:  figures,
		recorder: recorder,
		logger:   logger,
	}, nil
}

// MomentsFigurePath is the figure written for a site, a space and the configured tag.
func MomentsFigurePath(cfg *config.Config, s site.Site, space flow.Space) string {
	name := s.Name
	if name == "" {
		name = string(s.Key)
	}
	name = strings.NewReplacer("/", "-", "\\", "-").Replace(name)
	return filepath.Join(cfg.Output.FigureDir, fmt.Sprintf("moments_pvalues_%s_%s-%s.pdf", space, name, cfg.Data.Tag))
}

// Run loads the site's historical grid and ensemble once, then computes,
// draws and tabulates the weekly moments in each space.
func (s *MomentsService) Run(ctx context.Context, req MomentsRequest) (*MomentsResult, error) {
	target, err := lookupSite(s.cfg, req.Site)
	if err != nil {
		return nil, err
	}
	spaces := req.Spaces
	if len(spaces) == 0 {
		spaces = flow.Spaces()
	}

	m := run.NewManifest(run.AnalysisMoments, s.cfg.Data.Tag, s.cfg.Analysis.Seed, CodeVersion)
	m.Set("site", string(target.Key))
	m.Set("levene_center", s.cfg.Analysis.LeveneCenter)
	names := make([]string, len(spaces))
	for i, sp := range spaces {
		names[i] = sp.String()
	}
	m.Set("spaces", names)

	hist, syn, err := s.load(ctx, target, m)
	if err != nil {
		return nil, err
	}
	s.logger.Info("[moments] %s: %d historical years, %d realizations x %d years",
		target, hist.Rows(), syn.Realizations(), syn.Years())

	result := &MomentsResult{Manifest: m}
	rep := report.New(fmt.Sprintf("Weekly moments of %s (%s)", target, s.cfg.Data.Tag))
	for _, space := range spaces {
		wm, err := s.analyzer.ComputeWeeklyMoments(ctx, moments.Request{
			Site:       target,
			Space:      space,
			Historical: hist,
			Synthetic:  syn,
			Seed:       s.cfg.Analysis.Seed,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "weekly moments of %s in %s space", target, space)
		}

		path := MomentsFigurePath(s.cfg, target, space)
		if err := s.figures.RenderMoments(ctx, path, wm); err != nil {
			return nil, errors.RenderError(path, err)
		}
		m.AddOutput(path)

		rejected := 0
		for _, t := range wm.Tests {
			if t.Significant(moments.Alpha) {
				rejected++
			}
		}
		s.logger.Info("[moments] %s %s space: %d of %d weeks differ at p < %.2f",
			target, space, rejected, wm.Weeks(), moments.Alpha)

		result.Moments = append(result.Moments, wm)
		result.FigurePaths = append(result.FigurePaths, path)
		rep.Add(report.FromWeekTests(wm))
	}

	if s.recorder != nil {
		if result.ManifestPath, err = s.recorder.Record(ctx, m, rep); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (s *MomentsService) load(ctx context.Context, target site.Site, m *run.Manifest) (*flow.Grid, *flow.Ensemble, error) {
	histPath, err := s.locator.Resolve(s.cfg.Data.HistoricalDir, target.Key, s.cfg.Data.HistoricalSuffix)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to locate historical record of %s", target)
	}
	synPath, err := s.locator.Resolve(s.cfg.Data.SyntheticDir, target.Key, s.cfg.Data.EnsembleSuffix)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to locate ensemble of %s", target)
	}

	hist, err := s.reader.ReadGrid(ctx, histPath)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to read historical record of %s", target)
	}
	grid, err := s.reader.ReadGrid(ctx, synPath)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to read ensemble of %s", target)
	}
	syn, err := flow.FromGrid(grid, s.cfg.Data.Weeks)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "ensemble of %s", target)
	}

	for _, p := range []string{histPath, synPath} {
		if err := m.AddInput(p); err != nil {
			return nil, nil, errors.Wrap(errors.InternalError(err.Error()), "failed to fingerprint input")
		}
	}
	return hist, syn, nil
}
