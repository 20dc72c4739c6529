package csvgrid

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	gzip "github.com/klauspost/pgzip"

	"flowval/domain/core"
	"flowval/domain/flow"
	"flowval/internal"
)

// MatrixStore writes Qdaily matrices as comma-delimited text with every value
// in %.18e notation, and reads them back. The column order is kept in a
// sidecar file next to the matrix, one site key per line.
type MatrixStore struct {
	logger *internal.Logger
}

// NewMatrixStore creates a matrix store
func NewMatrixStore(logger *internal.Logger) *MatrixStore {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &MatrixStore{logger: logger}
}

// SitesPath is the sidecar holding the column order of the matrix at path.
func SitesPath(path string) string {
	return path + ".sites"
}

// WriteMatrix writes m to path, creating parent directories. A .gz path is
// compressed. The site order is written to SitesPath(path).
func (s *MatrixStore) WriteMatrix(ctx context.Context, path string, m *flow.Matrix) (err error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	var dst io.Writer = f
	var zw *gzip.Writer
	if isGzip(path) {
		zw = gzip.NewWriter(f)
		dst = zw
	}

	w := bufio.NewWriter(dst)
	buf := make([]byte, 0, 32)
	for i := 0; i < m.Rows(); i++ {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		for j := 0; j < m.Cols(); j++ {
			if j > 0 {
				w.WriteByte(',')
			}
			buf = strconv.AppendFloat(buf[:0], m.At(i, j), 'e', 18, 64)
			w.Write(buf)
		}
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			return fmt.Errorf("failed to compress %s: %w", path, err)
		}
	}

	if err := writeSites(SitesPath(path), m.Sites()); err != nil {
		return err
	}

	if info, statErr := f.Stat(); statErr == nil {
		s.logger.Info("Wrote %s (%s rows x %d sites, %s)", path,
			humanize.Comma(int64(m.Rows())), m.Cols(), humanize.Bytes(uint64(info.Size())))
	}
	return nil
}

// ReadMatrix reads a matrix written by WriteMatrix. sites names the columns
// in file order.
func (s *MatrixStore) ReadMatrix(ctx context.Context, path string, sites []core.SiteKey, weeks int) (*flow.Matrix, error) {
	grid, err := NewReader(s.logger).ReadGrid(ctx, path)
	if err != nil {
		return nil, err
	}
	if grid.Cols() != len(sites) {
		return nil, fmt.Errorf("%w: %s has %d columns for %d sites",
			core.ErrSiteMismatch, path, grid.Cols(), len(sites))
	}
	return flow.MatrixFromDense(sites, weeks, grid.Rows(), grid.Flatten())
}

// Sites returns the column order recorded when the matrix at path was written.
// A matrix without a sidecar reports core.ErrNoInput.
func (s *MatrixStore) Sites(ctx context.Context, path string) ([]core.SiteKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sidecar := SitesPath(path)
	raw, err := os.ReadFile(sidecar)
	if os.IsNotExist(err) {
		return nil, core.NewNoInputError("column order " + sidecar)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", sidecar, err)
	}

	var keys []core.SiteKey
	for _, line := range strings.Split(string(raw), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			keys = append(keys, core.SiteKey(line))
		}
	}
	if len(keys) == 0 {
		return nil, core.NewNoInputError("column order " + sidecar)
	}
	return keys, nil
}

func writeSites(path string, sites []core.SiteKey) error {
	var b strings.Builder
	for _, k := range sites {
		b.WriteString(string(k))
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
