package ports

import (
	"context"

	"flowval/domain/report"
	"flowval/domain/run"
	"flowval/domain/stats"
)

// FigureRenderer draws analysis results to files. Implementations choose
// the format from the path extension.
type FigureRenderer interface {
	RenderFDCRanges(ctx context.Context, path, title string, ranges []stats.SiteRange) error
	RenderVariability(ctx context.Context, path string, res *stats.VariabilityResult) error
	RenderMoments(ctx context.Context, path string, m *stats.WeeklyMoments) error
}

// ReportWriter stores a report as a workbook.
type ReportWriter interface {
	WriteReport(ctx context.Context, path string, r *report.Report) error
}

// ReportReader loads a report written by a ReportWriter.
type ReportReader interface {
	ReadReport(ctx context.Context, path string) (*report.Report, error)
}

// SummaryWriter stores a report as human-readable documents and returns the
// paths written.
type SummaryWriter interface {
	WriteSummary(ctx context.Context, basePath string, r *report.Report) ([]string, error)
}

// RunArchive keeps manifests and report tables of completed runs.
type RunArchive interface {
	SaveRun(ctx context.Context, m *run.Manifest, r *report.Report) error
	GetRun(ctx context.Context, runID string) (*run.Manifest, error)
	ListRuns(ctx context.Context, analysis run.Analysis, limit int) ([]*run.Manifest, error)
}
