package excel

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"flowval/domain/report"
	"flowval/internal"
)

// SummarySheet is the first sheet of every workbook. It lists the title and
// the tables that follow.
const SummarySheet = "Summary"

const maxSheetName = 31

// Writer implements ports.ReportWriter with one sheet per table
type Writer struct {
	logger *internal.Logger
}

// NewWriter creates a workbook writer
func NewWriter(logger *internal.Logger) *Writer {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Writer{logger: logger}
}

// WriteReport saves r to path as an .xlsx workbook.
func (w *Writer) WriteReport(ctx context.Context, path string, r *report.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	// The default sheet becomes the summary.
	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return err
	}
	if err := setRow(f, SummarySheet, 1, []interface{}{"title", r.Title}); err != nil {
		return err
	}
	if err := setRow(f, SummarySheet, 2, []interface{}{"sheet", "table", "rows"}); err != nil {
		return err
	}

	used := map[string]bool{SummarySheet: true}
	for i, t := range r.Tables {
		name := sheetName(t.Name, used)
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("failed to add sheet for %s: %w", t.Name, err)
		}
		if err := setRow(f, SummarySheet, i+3, []interface{}{name, t.Name, len(t.Rows)}); err != nil {
			return err
		}

		header := make([]interface{}, len(t.Columns))
		for c, col := range t.Columns {
			header[c] = col
		}
		if err := setRow(f, name, 1, header); err != nil {
			return err
		}
		for rowIdx, row := range t.Rows {
			if err := setRow(f, name, rowIdx+2, row); err != nil {
				return fmt.Errorf("table %s row %d: %w", t.Name, rowIdx+1, err)
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	w.logger.Info("[excel] wrote %s (%d tables)", path, len(r.Tables))
	return nil
}

func setRow(f *excelize.File, sheet string, row int, cells []interface{}) error {
	for c, v := range cells {
		cell, err := excelize.CoordinatesToCellName(c+1, row)
		if err != nil {
			return err
		}
		// NaN and Inf are not valid spreadsheet numbers
		if x, ok := v.(float64); ok && (math.IsNaN(x) || math.IsInf(x, 0)) {
			v = report.FormatCell(x)
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return err
		}
	}
	return nil
}

// sheetName trims a table name to a legal, unique sheet name.
func sheetName(table string, used map[string]bool) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, table)
	if name == "" {
		name = "table"
	}
	if len(name) > maxSheetName {
		name = name[:maxSheetName]
	}
	base := name
	for i := 2; used[name]; i++ {
		suffix := fmt.Sprintf("~%d", i)
		if len(base)+len(suffix) > maxSheetName {
			name = base[:maxSheetName-len(suffix)] + suffix
		} else {
			name = base + suffix
		}
	}
	used[name] = true
	return name
}
