package excel

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"flowval/domain/report"
	"flowval/internal"
)

// Reader implements ports.ReportReader for workbooks written by Writer
type Reader struct {
	logger *internal.Logger
}

// NewReader creates a workbook reader
func NewReader(logger *internal.Logger) *Reader {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Reader{logger: logger}
}

// ReadReport reads a workbook written by Writer back into a report. Tables
// come back in summary order with every cell as text.
func (r *Reader) ReadReport(ctx context.Context, path string) (*report.Report, error) {
	f, err := r.open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	summary, err := f.GetRows(SummarySheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s sheet: %w", SummarySheet, err)
	}
	if len(summary) < 2 || len(summary[0]) < 2 || summary[0][0] != "title" {
		return nil, fmt.Errorf("%s is not a report workbook", path)
	}

	out := report.New(summary[0][1])
	for _, entry := range summary[2:] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(entry) < 2 {
			continue
		}
		readStart := time.Now()
		rows, err := f.GetRows(entry[0])
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %s: %w", entry[0], err)
		}
		r.logger.Trace("[excel] sheet %s read in %.2fms (%d rows)",
			entry[0], float64(time.Since(readStart).Nanoseconds())/1e6, len(rows))
		if len(rows) == 0 {
			continue
		}
		data := processRows(entry[0], rows)
		t := report.Table{Name: entry[1], Columns: data.Headers}
		for _, row := range data.Rows {
			cells := make([]interface{}, len(data.Headers))
			for i, h := range data.Headers {
				cells[i] = row[h]
			}
			t.Rows = append(t.Rows, cells)
		}
		out.Add(t)
	}
	r.logger.Debug("[excel] read %d tables from %s", len(out.Tables), path)
	return out, nil
}

func (r *Reader) open(path string) (*excelize.File, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("workbook not found: %s", path)
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	return f, nil
}

// processRows converts raw string rows into SheetData
func processRows(sheet string, rows [][]string) *SheetData {
	headers := make([]string, len(rows[0]))
	for i, header := range rows[0] {
		headers[i] = strings.TrimSpace(header)
	}

	data := make([]RawRowData, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rowData := make(RawRowData, len(headers))
		for j, cell := range row {
			if j < len(headers) {
				rowData[headers[j]] = strings.TrimSpace(cell)
			}
		}
		data = append(data, rowData)
	}
	return &SheetData{Name: sheet, Headers: headers, Rows: data}
}
