package flow

import (
	"fmt"

	"flowval/domain/core"
)

// Grid is a row-major 2-D array of weekly flows, e.g. one site's historical
// record (years x 52) or a synthetic file (realizations x years*52).
type Grid struct {
	rows int
	cols int
	data []float64
}

// NewGrid copies data into a rows x cols grid.
func NewGrid(rows, cols int, data []float64) (*Grid, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("%w: grid must be non-empty, got %dx%d", core.ErrShapeMismatch, rows, cols)
	}
	if len(data) != rows*cols {
		return nil, core.NewShapeError("grid", len(data), rows*cols)
	}
	owned := make([]float64, len(data))
	copy(owned, data)
	return &Grid{rows: rows, cols: cols, data: owned}, nil
}

// GridFromRows builds a grid from equally sized rows.
func GridFromRows(rows [][]float64) (*Grid, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: grid has no rows", core.ErrShapeMismatch)
	}
	cols := len(rows[0])
	data := make([]float64, 0, len(rows)*cols)
	for i, r := range rows {
		if len(r) != cols {
			return nil, fmt.Errorf("%w: row %d has %d columns, expected %d", core.ErrShapeMismatch, i, len(r), cols)
		}
		data = append(data, r...)
	}
	return NewGrid(len(rows), cols, data)
}

func (g *Grid) Rows() int { return g.rows }
func (g *Grid) Cols() int { return g.cols }
func (g *Grid) Len() int  { return len(g.data) }

func (g *Grid) At(r, c int) float64 {
	return g.data[r*g.cols+c]
}

// Row returns a copy of row r.
func (g *Grid) Row(r int) []float64 {
	out := make([]float64, g.cols)
	copy(out, g.data[r*g.cols:(r+1)*g.cols])
	return out
}

// Column returns a copy of column c.
func (g *Grid) Column(c int) []float64 {
	out := make([]float64, g.rows)
	for r := 0; r < g.rows; r++ {
		out[r] = g.data[r*g.cols+c]
	}
	return out
}

// Flatten returns the values in row-major order (year-major, then week).
func (g *Grid) Flatten() []float64 {
	out := make([]float64, len(g.data))
	copy(out, g.data)
	return out
}

// InSpace returns the grid transformed into space s.
func (g *Grid) InSpace(s Space) *Grid {
	if s != Log {
		return g
	}
	out := &Grid{rows: g.rows, cols: g.cols, data: make([]float64, len(g.data))}
	for i, v := range g.data {
		out.data[i] = s.Transform(v)
	}
	return out
}
