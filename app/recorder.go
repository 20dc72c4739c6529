package app

import (
	"context"
	"fmt"
	"path/filepath"

	"flowval/domain/report"
	"flowval/domain/run"
	"flowval/internal"
	"flowval/internal/config"
	"flowval/internal/errors"
	"flowval/ports"
)

// CodeVersion is recorded in every run manifest.
const CodeVersion = "1.0.0"

// Recorder writes the artifacts every analysis run leaves behind: the
// optional workbook and summary, the YAML manifest and the archived run.
type Recorder struct {
	output  config.OutputConfig
	reports ports.ReportWriter
	summary ports.SummaryWriter
	archive ports.RunArchive
	logger  *internal.Logger
}

// NewRecorder creates a recorder. reports, summary and archive may be nil
// to skip those artifacts.
func NewRecorder(output config.OutputConfig, reports ports.ReportWriter, summary ports.SummaryWriter,
	archive ports.RunArchive, logger *internal.Logger) *Recorder {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Recorder{
		output:  output,
		reports: reports,
		summary: summary,
		archive: archive,
		logger:  logger,
	}
}

// Record finishes the manifest after writing the report artifacts, so the
// manifest lists them as outputs. It returns the manifest path, or "" when
// manifests are disabled.
func (r *Recorder) Record(ctx context.Context, m *run.Manifest, rep *report.Report) (string, error) {
	base := fmt.Sprintf("%s-%s", m.Analysis, m.Tag)

	if r.output.Report && r.reports != nil && rep != nil {
		path := filepath.Join(r.output.ReportDir, "report-"+base+".xlsx")
		if err := r.reports.WriteReport(ctx, path, rep); err != nil {
			return "", errors.Wrap(err, "failed to write report workbook")
		}
		m.AddOutput(path)
	}

	if r.output.Summary && r.summary != nil && rep != nil {
		paths, err := r.summary.WriteSummary(ctx, filepath.Join(r.output.ReportDir, "summary-"+base), rep)
		if err != nil {
			return "", errors.Wrap(err, "failed to write summary")
		}
		for _, p := range paths {
			m.AddOutput(p)
		}
	}

	m.Finish()

	var manifestPath string
	if r.output.Manifest {
		path, err := m.Write(r.output.ReportDir)
		if err != nil {
			return "", errors.Wrap(err, "failed to write run manifest")
		}
		manifestPath = path
		r.logger.Debug("[run %s] manifest %s", m.RunID, path)
	}

	if r.archive != nil {
		if err := r.archive.SaveRun(ctx, m, rep); err != nil {
			return manifestPath, errors.Wrap(err, "failed to archive run")
		}
		r.logger.Info("[run %s] archived %s run (fingerprint %s)", m.RunID, m.Analysis, m.Fingerprint.Fingerprint)
	}
	return manifestPath, nil
}

// ReadRunReport reads back the workbook a recorded run wrote.
func ReadRunReport(ctx context.Context, m *run.Manifest, reader ports.ReportReader) (*report.Report, error) {
	for _, out := range m.Outputs {
		if filepath.Ext(out) != ".xlsx" {
			continue
		}
		r, err := reader.ReadReport(ctx, out)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read report of run %s", m.RunID)
		}
		return r, nil
	}
	return nil, errors.NotFound(fmt.Sprintf("report workbook of run %s", m.RunID))
}
