package flow

import (
	"fmt"

	"flowval/domain/core"
)

// Ensemble is a 3-D array (realizations x years x weeks) stored contiguously,
// realization-major.
type Ensemble struct {
	realizations int
	years        int
	weeks        int
	data         []float64
}

// NewEnsemble copies data into an ensemble of the given dimensions.
func NewEnsemble(realizations, years, weeks int, data []float64) (*Ensemble, error) {
	if realizations <= 0 || years <= 0 || weeks <= 0 {
		return nil, fmt.Errorf("%w: ensemble must be non-empty, got %dx%dx%d",
			core.ErrShapeMismatch, realizations, years, weeks)
	}
	if len(data) != realizations*years*weeks {
		return nil, core.NewShapeError("ensemble", len(data), realizations*years*weeks)
	}
	owned := make([]float64, len(data))
	copy(owned, data)
	return &Ensemble{realizations: realizations, years: years, weeks: weeks, data: owned}, nil
}

// FromGrid reshapes a synthetic file grid, one realization per row and
// years*weeks concatenated weeks per row, into an ensemble.
func FromGrid(g *Grid, weeks int) (*Ensemble, error) {
	if weeks <= 0 || g.Cols()%weeks != 0 {
		return nil, fmt.Errorf("%w: %d columns is not a whole number of %d-week years",
			core.ErrShapeMismatch, g.Cols(), weeks)
	}
	return &Ensemble{
		realizations: g.Rows(),
		years:        g.Cols() / weeks,
		weeks:        weeks,
		data:         g.Flatten(),
	}, nil
}

// Dims returns (realizations, years, weeks).
func (e *Ensemble) Dims() (int, int, int) {
	return e.realizations, e.years, e.weeks
}

func (e *Ensemble) Realizations() int { return e.realizations }
func (e *Ensemble) Years() int        { return e.years }
func (e *Ensemble) Weeks() int        { return e.weeks }
func (e *Ensemble) Len() int          { return len(e.data) }

func (e *Ensemble) At(r, y, w int) float64 {
	return e.data[(r*e.years+y)*e.weeks+w]
}

// Year returns a copy of the weekly values of year y in realization r.
func (e *Ensemble) Year(r, y int) []float64 {
	start := (r*e.years + y) * e.weeks
	out := make([]float64, e.weeks)
	copy(out, e.data[start:start+e.weeks])
	return out
}

// Realization returns a copy of all values of realization r (years*weeks).
func (e *Ensemble) Realization(r int) []float64 {
	size := e.years * e.weeks
	out := make([]float64, size)
	copy(out, e.data[r*size:(r+1)*size])
	return out
}

// WeekSample returns week w of every year of every realization.
func (e *Ensemble) WeekSample(w int) []float64 {
	out := make([]float64, 0, e.realizations*e.years)
	for r := 0; r < e.realizations; r++ {
		for y := 0; y < e.years; y++ {
			out = append(out, e.At(r, y, w))
		}
	}
	return out
}

// Pooled stacks all realizations into one (realizations*years x weeks) grid.
func (e *Ensemble) Pooled() *Grid {
	return &Grid{rows: e.realizations * e.years, cols: e.weeks, data: e.Values()}
}

// Values returns every value in storage order.
func (e *Ensemble) Values() []float64 {
	out := make([]float64, len(e.data))
	copy(out, e.data)
	return out
}

// InSpace returns the ensemble transformed into space s.
func (e *Ensemble) InSpace(s Space) *Ensemble {
	if s != Log {
		return e
	}
	out := &Ensemble{realizations: e.realizations, years: e.years, weeks: e.weeks, data: make([]float64, len(e.data))}
	for i, v := range e.data {
		out.data[i] = s.Transform(v)
	}
	return out
}

// MapYears builds a new ensemble by applying fn to every (realization, year)
// row. fn receives a private copy and must return rows of equal length.
func (e *Ensemble) MapYears(fn func(row []float64) []float64) (*Ensemble, error) {
	var out *Ensemble
	for r := 0; r < e.realizations; r++ {
		for y := 0; y < e.years; y++ {
			row := fn(e.Year(r, y))
			if out == nil {
				if len(row) == 0 {
					return nil, fmt.Errorf("%w: year transform produced no values", core.ErrShapeMismatch)
				}
				out = &Ensemble{
					realizations: e.realizations,
					years:        e.years,
					weeks:        len(row),
					data:         make([]float64, 0, e.realizations*e.years*len(row)),
				}
			}
			if len(row) != out.weeks {
				return nil, core.NewShapeError(fmt.Sprintf("realization %d year %d", r, y), len(row), out.weeks)
			}
			out.data = append(out.data, row...)
		}
	}
	return out, nil
}
