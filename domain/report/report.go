package report

import (
	"fmt"
	"math"
	"strconv"
)

// Table is a named, rectangular block of results. Cells hold float64, int,
// string or bool values.
type Table struct {
	Name    string          `json:"name" yaml:"name"`
	Columns []string        `json:"columns" yaml:"columns"`
	Rows    [][]interface{} `json:"rows" yaml:"rows"`
}

// Report is an ordered list of tables with a title.
type Report struct {
	Title  string  `json:"title" yaml:"title"`
	Tables []Table `json:"tables" yaml:"tables"`
}

// New creates an empty report
func New(title string) *Report {
	return &Report{Title: title}
}

// Add appends tables, skipping empty ones.
func (r *Report) Add(tables ...Table) *Report {
	for _, t := range tables {
		if len(t.Columns) == 0 {
			continue
		}
		r.Tables = append(r.Tables, t)
	}
	return r
}

// Table returns the table with the given name.
func (r *Report) Table(name string) (Table, bool) {
	for _, t := range r.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// AddRow appends a row, which must match the column count.
func (t *Table) AddRow(cells ...interface{}) error {
	if len(cells) != len(t.Columns) {
		return fmt.Errorf("table %q: row has %d cells, expected %d", t.Name, len(cells), len(t.Columns))
	}
	t.Rows = append(t.Rows, cells)
	return nil
}

// FormatCell renders a cell for text output. NaN prints as "NaN".
func FormatCell(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		if math.IsNaN(x) {
			return "NaN"
		}
		return strconv.FormatFloat(x, 'g', 6, 64)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
