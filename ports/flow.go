package ports

import (
	"context"

	"flowval/domain/core"
	"flowval/domain/flow"
)

// GridReader loads one per-site CSV grid.
type GridReader interface {
	ReadGrid(ctx context.Context, path string) (*flow.Grid, error)
}

// MatrixStore persists assembled Qdaily matrices.
type MatrixStore interface {
	WriteMatrix(ctx context.Context, path string, m *flow.Matrix) error
	ReadMatrix(ctx context.Context, path string, sites []core.SiteKey, weeks int) (*flow.Matrix, error)
	// Sites returns the column order the matrix at path was written with.
	Sites(ctx context.Context, path string) ([]core.SiteKey, error)
}

// GridLocator maps site keys to files in a dataset directory.
type GridLocator interface {
	// Discover lists keys of files matching match, sorted by key.
	Discover(dir, match, suffix string) ([]core.SiteKey, error)
	// Resolve returns the path of <dir>/<key><suffix>.
	Resolve(dir string, key core.SiteKey, suffix string) (string, error)
}
