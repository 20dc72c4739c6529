package migration

import (
	"context"

	"github.com/jmoiron/sqlx"

	"flowval/internal/errors"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner handles the run-archive schema
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Statements returns the DDL executed by Run, in order.
func (r *MigrationRunner) Statements() []string {
	return []string{
		createValidationRunsTable,
		createValidationTablesTable,
		createIndexes,
	}
}

// Run executes all database migrations in the correct order
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	steps := []struct {
		name string
		sql  string
	}{
		{"validation_runs table", createValidationRunsTable},
		{"validation_tables table", createValidationTablesTable},
		{"indexes", createIndexes},
	}
	for _, step := range steps {
		if _, err := db.ExecContext(ctx, step.sql); err != nil {
			return errors.Wrap(errors.DatabaseError(err.Error()), "failed to create "+step.name)
		}
	}
	return nil
}

const createValidationRunsTable = `
	CREATE TABLE IF NOT EXISTS validation_runs (
		run_id TEXT PRIMARY KEY,
		analysis VARCHAR(32) NOT NULL,
		tag VARCHAR(100) NOT NULL,
		seed BIGINT NOT NULL,
		code_version VARCHAR(100) NOT NULL,
		fingerprint VARCHAR(32),
		manifest JSONB NOT NULL,
		started_at TIMESTAMP WITH TIME ZONE NOT NULL,
		finished_at TIMESTAMP WITH TIME ZONE,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)
`

const createValidationTablesTable = `
	CREATE TABLE IF NOT EXISTS validation_tables (
		id BIGSERIAL PRIMARY KEY,
		run_id TEXT NOT NULL REFERENCES validation_runs(run_id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		name VARCHAR(255) NOT NULL,
		columns JSONB NOT NULL,
		rows JSONB NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		UNIQUE (run_id, name)
	)
`

const createIndexes = `
	CREATE INDEX IF NOT EXISTS idx_validation_runs_analysis ON validation_runs(analysis, started_at DESC);
	CREATE INDEX IF NOT EXISTS idx_validation_runs_fingerprint ON validation_runs(fingerprint);
	CREATE INDEX IF NOT EXISTS idx_validation_tables_run ON validation_tables(run_id, position)
`
