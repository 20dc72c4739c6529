package report

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowval/domain/core"
	"flowval/domain/flow"
	"flowval/domain/site"
	"flowval/domain/stats"
)

func TestTable_AddRow(t *testing.T) {
	tbl := Table{Name: "t", Columns: []string{"a", "b"}}
	require.NoError(t, tbl.AddRow(1, "x"))
	assert.Error(t, tbl.AddRow(1))
	assert.Len(t, tbl.Rows, 1)

	r := New("title").Add(tbl, Table{Name: "empty"})
	assert.Len(t, r.Tables, 1)
	got, ok := r.Table("t")
	assert.True(t, ok)
	assert.Equal(t, tbl, got)
}

func TestFormatCell(t *testing.T) {
	assert.Equal(t, "NaN", FormatCell(math.NaN()))
	assert.Equal(t, "0.05", FormatCell(0.05))
	assert.Equal(t, "12", FormatCell(12))
	assert.Equal(t, "true", FormatCell(true))
	assert.Equal(t, "", FormatCell(nil))
}

func TestFromWeekTests(t *testing.T) {
	m := &stats.WeeklyMoments{
		Space: "log",
		Tests: []stats.WeekTest{
			{Week: 1, RankSumP: 0.5, LeveneP: 0.9},
			{Week: 2, RankSumP: math.NaN(), LeveneP: math.NaN(), Degenerate: true},
		},
	}
	tbl := FromWeekTests(m)
	assert.Equal(t, "weekly-tests-log", tbl.Name)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, true, tbl.Rows[1][3])
}

func TestFromRangesAndAssembly(t *testing.T) {
	env := &stats.Envelope{P: []float64{0.25, 0.75}, Min: []float64{5, 1}, Max: []float64{9, 3}, Years: 4}
	wide := &stats.Envelope{P: []float64{0.25, 0.75}, Min: []float64{4, 0.5}, Max: []float64{10, 3}, Years: 40}
	s := site.Site{Key: "k", Name: "Name"}

	tbl := FromRanges([]stats.SiteRange{{Site: s, Historical: env, Synthetic: wide}})
	require.Len(t, tbl.Rows, 1)
	assert.Equal(t, []interface{}{"Name", 4, 40, 9.0, 10.0, 1.0, 0.5, 1.0}, tbl.Rows[0])

	m, err := flow.NewMatrix([]core.SiteKey{"k"}, 2, [][]float64{{1, 2, 3, 6}})
	require.NoError(t, err)
	asm := FromAssembly("hist", m, site.Catalog{s})
	assert.Equal(t, []interface{}{"Name", 4, 2, 1.0, 3.0, 6.0}, asm.Rows[0])
}
