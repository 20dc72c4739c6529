package excel

// RawRowData represents one sheet row as header -> cell text
type RawRowData map[string]string

// SheetData is a sheet read back from a report workbook
type SheetData struct {
	Name    string       // Sheet name
	Headers []string     // Column headers
	Rows    []RawRowData // Data rows
}
