package flow

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"flowval/domain/core"
)

// Matrix is a Qdaily matrix: one column per site, one row per week across
// every year of the dataset.
// INVARIANTS:
// - Cols() == len(Sites())
// - Rows() is a whole number of years of weeks
type Matrix struct {
	sites []core.SiteKey
	weeks int
	dense *mat.Dense
}

// NewMatrix assembles columns (one per site, equal length) into a matrix.
func NewMatrix(sites []core.SiteKey, weeks int, columns [][]float64) (*Matrix, error) {
	if len(sites) == 0 {
		return nil, core.NewNoInputError("matrix has no sites")
	}
	if len(columns) != len(sites) {
		return nil, fmt.Errorf("%w: %d columns for %d sites", core.ErrSiteMismatch, len(columns), len(sites))
	}
	rows := len(columns[0])
	if rows == 0 || weeks <= 0 || rows%weeks != 0 {
		return nil, fmt.Errorf("%w: %d rows is not a whole number of %d-week years",
			core.ErrShapeMismatch, rows, weeks)
	}

	dense := mat.NewDense(rows, len(sites), nil)
	for j, col := range columns {
		if len(col) != rows {
			return nil, core.NewShapeError(string(sites[j]), len(col), rows)
		}
		dense.SetCol(j, col)
	}

	owned := make([]core.SiteKey, len(sites))
	copy(owned, sites)
	return &Matrix{sites: owned, weeks: weeks, dense: dense}, nil
}

// MatrixFromDense wraps rows x sites data read back from a Qdaily file.
func MatrixFromDense(sites []core.SiteKey, weeks int, rows int, data []float64) (*Matrix, error) {
	if len(sites) == 0 || rows == 0 {
		return nil, core.NewNoInputError("empty matrix")
	}
	if len(data) != rows*len(sites) {
		return nil, core.NewShapeError("matrix", len(data), rows*len(sites))
	}
	if weeks <= 0 || rows%weeks != 0 {
		return nil, fmt.Errorf("%w: %d rows is not a whole number of %d-week years",
			core.ErrShapeMismatch, rows, weeks)
	}
	owned := make([]float64, len(data))
	copy(owned, data)
	keys := make([]core.SiteKey, len(sites))
	copy(keys, sites)
	return &Matrix{sites: keys, weeks: weeks, dense: mat.NewDense(rows, len(sites), owned)}, nil
}

func (m *Matrix) Rows() int {
	r, _ := m.dense.Dims()
	return r
}

func (m *Matrix) Cols() int {
	_, c := m.dense.Dims()
	return c
}

// Years is Rows divided by the weeks per year.
func (m *Matrix) Years() int { return m.Rows() / m.weeks }

func (m *Matrix) Weeks() int { return m.weeks }

// Sites returns a copy of the column keys.
func (m *Matrix) Sites() []core.SiteKey {
	out := make([]core.SiteKey, len(m.sites))
	copy(out, m.sites)
	return out
}

func (m *Matrix) At(r, c int) float64 { return m.dense.At(r, c) }

// Column returns a copy of site column j.
func (m *Matrix) Column(j int) []float64 {
	return mat.Col(nil, j, m.dense)
}

// Row returns a copy of row i.
func (m *Matrix) Row(i int) []float64 {
	return mat.Row(nil, i, m.dense)
}

// Dense exposes the matrix read-only.
func (m *Matrix) Dense() mat.Matrix { return m.dense }

// HasNaN reports whether any element is NaN.
func (m *Matrix) HasNaN() bool {
	rows, cols := m.dense.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if math.IsNaN(m.dense.At(i, j)) {
				return true
			}
		}
	}
	return false
}

// SameSites reports whether both matrices have identical column keys.
func (m *Matrix) SameSites(other *Matrix) bool {
	if len(m.sites) != len(other.sites) {
		return false
	}
	for i := range m.sites {
		if m.sites[i] != other.sites[i] {
			return false
		}
	}
	return true
}
