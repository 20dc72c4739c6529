package csvgrid

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	gzip "github.com/klauspost/pgzip"

	"flowval/domain/core"
	"flowval/domain/flow"
	"flowval/internal"
)

// Reader loads comma-delimited numeric grids without a header row.
// Files ending in .gz are decompressed on the fly.
type Reader struct {
	logger *internal.Logger
}

// NewReader creates a grid reader
func NewReader(logger *internal.Logger) *Reader {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Reader{logger: logger}
}

// ReadGrid reads path into a grid. Ragged rows are a shape mismatch naming the file.
func (r *Reader) ReadGrid(ctx context.Context, path string) (*flow.Grid, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.NewNoInputError(path)
		}
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	var src io.Reader = file
	if isGzip(path) {
		zr, err := gzip.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream %s: %w", path, err)
		}
		defer zr.Close()
		src = zr
	}

	grid, err := parseGrid(ctx, src, path)
	if err != nil {
		return nil, err
	}
	r.logger.Trace("[csvgrid] %s: %dx%d", path, grid.Rows(), grid.Cols())
	return grid, nil
}

func parseGrid(ctx context.Context, src io.Reader, name string) (*flow.Grid, error) {
	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1 // checked below so the error names the file
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	var data []float64
	cols := -1
	rows := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}
		if cols < 0 {
			cols = len(record)
			data = make([]float64, 0, cols*128)
		} else if len(record) != cols {
			return nil, fmt.Errorf("%w: %s row %d has %d values, expected %d",
				core.ErrShapeMismatch, name, rows+1, len(record), cols)
		}
		for j, cell := range record {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, fmt.Errorf("%s row %d column %d: %w", name, rows+1, j+1, err)
			}
			data = append(data, v)
		}
		rows++
		if rows%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
	}
	if rows == 0 {
		return nil, core.NewNoInputError(name + " is empty")
	}
	return flow.NewGrid(rows, cols, data)
}

func isGzip(path string) bool {
	return strings.HasSuffix(path, ".gz")
}
