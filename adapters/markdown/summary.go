// Package markdown writes reports as markdown tables and a rendered HTML page.
package markdown

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"flowval/domain/report"
	"flowval/internal"
)

// Writer implements ports.SummaryWriter
type Writer struct {
	logger *internal.Logger
}

// NewWriter creates a summary writer
func NewWriter(logger *internal.Logger) *Writer {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Writer{logger: logger}
}

// WriteSummary writes basePath+".md" and basePath+".html" and returns both paths.
func (w *Writer) WriteSummary(ctx context.Context, basePath string, r *report.Report) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(basePath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create summary directory: %w", err)
	}

	md := Render(r)
	mdPath := basePath + ".md"
	if err := os.WriteFile(mdPath, md, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", mdPath, err)
	}

	htmlPath := basePath + ".html"
	if err := os.WriteFile(htmlPath, ToHTML(r.Title, md), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", htmlPath, err)
	}

	w.logger.Info("[markdown] wrote %s and %s", mdPath, htmlPath)
	return []string{mdPath, htmlPath}, nil
}

// Render formats the report as markdown with one pipe table per report table.
func Render(r *report.Report) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "# %s\n\n", r.Title)
	for _, t := range r.Tables {
		fmt.Fprintf(&b, "## %s\n\n", t.Name)
		b.WriteString("| " + strings.Join(escapeAll(t.Columns), " | ") + " |\n")
		b.WriteString("|" + strings.Repeat(" --- |", len(t.Columns)) + "\n")
		for _, row := range t.Rows {
			cells := make([]string, len(row))
			for i, v := range row {
				cells[i] = escape(report.FormatCell(v))
			}
			b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
		}
		b.WriteString("\n")
	}
	return b.Bytes()
}

// ToHTML renders markdown as a complete HTML page.
func ToHTML(title string, md []byte) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	renderer := html.NewRenderer(html.RendererOptions{
		Title: title,
		Flags: html.CommonFlags | html.CompletePage,
	})
	return markdown.ToHTML(md, p, renderer)
}

func escape(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func escapeAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = escape(s)
	}
	return out
}
