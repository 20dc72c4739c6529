package assembly

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"flowval/domain/core"
	"flowval/domain/flow"
	"flowval/domain/site"
	"flowval/internal"
	"flowval/ports"
)

// Source describes one dataset directory of per-site grids.
type Source struct {
	Label  string // "historical" or "synthetic", used in messages
	Dir    string
	Suffix string // appended to a site key to form its file name
	Match  string // discovery filter; defaults to Suffix
	Rows   int    // expected values per file (years*weeks); 0 accepts the first file's count
	Weeks  int    // weeks per year; defaults to flow.WeeksPerYear
}

func (s Source) match() string {
	if s.Match != "" {
		return s.Match
	}
	return s.Suffix
}

func (s Source) weeks() int {
	if s.Weeks > 0 {
		return s.Weeks
	}
	return flow.WeeksPerYear
}

// Assembler builds Qdaily matrices: each site's grid flattened row-major
// (year-major, then week) into the site's column.
type Assembler struct {
	reader  ports.GridReader
	locator ports.GridLocator
	workers int
	logger  *internal.Logger
}

// NewAssembler creates an assembler. workers <= 0 uses GOMAXPROCS.
func NewAssembler(reader ports.GridReader, locator ports.GridLocator, workers int, logger *internal.Logger) *Assembler {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Assembler{
		reader:  reader,
		locator: locator,
		workers: internal.WorkerLimit(workers),
		logger:  logger,
	}
}

// Resolve maps the catalog to file paths. An empty catalog discovers sites
// from the directory in sorted key order.
func (a *Assembler) Resolve(src Source, catalog site.Catalog) (site.Catalog, []string, error) {
	if len(catalog) == 0 {
		keys, err := a.locator.Discover(src.Dir, src.match(), src.Suffix)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", src.Label, err)
		}
		catalog = site.FromKeys(keys)
		a.logger.Debug("[assembly] %s: discovered %d sites in %s", src.Label, len(keys), src.Dir)
	}

	paths := make([]string, len(catalog))
	for i, s := range catalog {
		path, err := a.locator.Resolve(src.Dir, s.Key, src.Suffix)
		if err != nil {
			return nil, nil, fmt.Errorf("%s site %s: %w", src.Label, s.Key, err)
		}
		paths[i] = path
	}
	return catalog, paths, nil
}

// Assemble resolves and loads every catalog site into one matrix.
func (a *Assembler) Assemble(ctx context.Context, src Source, catalog site.Catalog) (*flow.Matrix, error) {
	sites, paths, err := a.Resolve(src, catalog)
	if err != nil {
		return nil, err
	}
	return a.Load(ctx, src, sites, paths)
}

// Load reads paths concurrently and fills columns in catalog order.
func (a *Assembler) Load(ctx context.Context, src Source, sites site.Catalog, paths []string) (*flow.Matrix, error) {
	if len(sites) == 0 {
		return nil, core.NewNoInputError(src.Label + " has no sites")
	}
	if len(paths) != len(sites) {
		return nil, fmt.Errorf("%w: %d paths for %d sites", core.ErrSiteMismatch, len(paths), len(sites))
	}

	columns := make([][]float64, len(sites))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i := range paths {
		i := i
		g.Go(func() error {
			grid, err := a.reader.ReadGrid(gctx, paths[i])
			if err != nil {
				return err
			}
			if src.Rows > 0 && grid.Len() != src.Rows {
				return core.NewShapeError(paths[i], grid.Len(), src.Rows)
			}
			columns[i] = grid.Flatten()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%s: %w", src.Label, err)
	}

	for i := 1; i < len(columns); i++ {
		if len(columns[i]) != len(columns[0]) {
			return nil, fmt.Errorf("%s: %w", src.Label, core.NewShapeError(paths[i], len(columns[i]), len(columns[0])))
		}
	}

	m, err := flow.NewMatrix(sites.Keys(), src.weeks(), columns)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", src.Label, err)
	}
	a.logger.Info("Assembled %s matrix: %s rows x %d sites", src.Label, humanize.Comma(int64(m.Rows())), m.Cols())
	return m, nil
}
