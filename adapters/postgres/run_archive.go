package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"flowval/domain/report"
	"flowval/domain/run"
	"flowval/internal/errors"
)

// RunArchiveImpl implements ports.RunArchive for PostgreSQL
type RunArchiveImpl struct {
	db *sqlx.DB
}

// NewRunArchive creates a new PostgreSQL run archive
func NewRunArchive(db *sqlx.DB) *RunArchiveImpl {
	return &RunArchiveImpl{db: db}
}

// Connect opens a PostgreSQL connection for the archive.
func Connect(ctx context.Context, databaseURL string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", databaseURL)
	if err != nil {
		return nil, errors.Wrap(errors.DatabaseError(err.Error()), "failed to connect to database")
	}
	return db, nil
}

type runRow struct {
	RunID    string `db:"run_id"`
	Manifest []byte `db:"manifest"`
}

// SaveRun stores the manifest and every report table in one transaction.
// Saving a run id again replaces its tables.
func (r *RunArchiveImpl) SaveRun(ctx context.Context, m *run.Manifest, rep *report.Report) (err error) {
	if err := m.Validate(); err != nil {
		return errors.InvalidInput(err.Error())
	}
	manifestJSON, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(errors.DatabaseError(err.Error()), "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var finishedAt interface{}
	if !m.FinishedAt.IsZero() {
		finishedAt = m.FinishedAt
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO validation_runs (run_id, analysis, tag, seed, code_version, fingerprint, manifest, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (run_id) DO UPDATE SET
			fingerprint = EXCLUDED.fingerprint,
			manifest = EXCLUDED.manifest,
			finished_at = EXCLUDED.finished_at
	`, string(m.RunID), string(m.Analysis), m.Tag, m.Seed, m.CodeVersion,
		m.Fingerprint.Fingerprint.String(), manifestJSON, m.StartedAt, finishedAt)
	if err != nil {
		return errors.Wrap(errors.DatabaseError(err.Error()), "failed to save run")
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM validation_tables WHERE run_id = $1`, string(m.RunID)); err != nil {
		return errors.Wrap(errors.DatabaseError(err.Error()), "failed to clear run tables")
	}

	if rep != nil {
		for i, t := range rep.Tables {
			columnsJSON, rowsJSON, mErr := marshalTable(t)
			if mErr != nil {
				err = mErr
				return err
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO validation_tables (run_id, position, name, columns, rows, created_at)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, string(m.RunID), i, t.Name, columnsJSON, rowsJSON, time.Now().UTC())
			if err != nil {
				return errors.Wrap(errors.DatabaseError(err.Error()), "failed to save table "+t.Name)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(errors.DatabaseError(err.Error()), "failed to commit run")
	}
	return nil
}

// GetRun retrieves the manifest of one run
func (r *RunArchiveImpl) GetRun(ctx context.Context, runID string) (*run.Manifest, error) {
	var row runRow
	err := r.db.GetContext(ctx, &row, `
		SELECT run_id, manifest FROM validation_runs WHERE run_id = $1
	`, runID)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("run " + runID)
	}
	if err != nil {
		return nil, errors.Wrap(errors.DatabaseError(err.Error()), "failed to load run")
	}
	return decodeManifest(row)
}

// ListRuns returns the most recent runs, optionally of one analysis
func (r *RunArchiveImpl) ListRuns(ctx context.Context, analysis run.Analysis, limit int) ([]*run.Manifest, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []runRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT run_id, manifest FROM validation_runs
		WHERE $1 = '' OR analysis = $1
		ORDER BY started_at DESC
		LIMIT $2
	`, string(analysis), limit)
	if err != nil {
		return nil, errors.Wrap(errors.DatabaseError(err.Error()), "failed to list runs")
	}

	manifests := make([]*run.Manifest, 0, len(rows))
	for _, row := range rows {
		m, err := decodeManifest(row)
		if err != nil {
			return nil, err
		}
		manifests = append(manifests, m)
	}
	return manifests, nil
}

func decodeManifest(row runRow) (*run.Manifest, error) {
	var m run.Manifest
	if err := json.Unmarshal(row.Manifest, &m); err != nil {
		return nil, fmt.Errorf("decode manifest of run %s: %w", row.RunID, err)
	}
	return &m, nil
}

// marshalTable encodes columns and rows as JSON. JSON has no NaN or Inf,
// so those cells are stored as their text form.
func marshalTable(t report.Table) (columns, rows []byte, err error) {
	columns, err = json.Marshal(t.Columns)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal columns of %s: %w", t.Name, err)
	}
	cells := make([][]interface{}, len(t.Rows))
	for i, row := range t.Rows {
		cells[i] = make([]interface{}, len(row))
		for j, v := range row {
			if x, ok := v.(float64); ok && (math.IsNaN(x) || math.IsInf(x, 0)) {
				v = report.FormatCell(x)
			}
			cells[i][j] = v
		}
	}
	rows, err = json.Marshal(cells)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal rows of %s: %w", t.Name, err)
	}
	return columns, rows, nil
}
