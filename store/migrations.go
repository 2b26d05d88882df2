package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// schemaSQL is the base schema, applied on every open with IF NOT EXISTS.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
	id             TEXT PRIMARY KEY,
	dut_provider   TEXT NOT NULL,
	dut_model      TEXT NOT NULL,
	judge_provider TEXT NOT NULL,
	judge_model    TEXT NOT NULL,
	dataset_dir    TEXT NOT NULL DEFAULT '',
	created_at     DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS extractions (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id           TEXT NOT NULL REFERENCES runs(id),
	image_path       TEXT NOT NULL,
	document_type    TEXT NOT NULL,
	provider         TEXT NOT NULL,
	model            TEXT NOT NULL,
	extraction_time  REAL NOT NULL,
	extracted_data   TEXT NOT NULL,
	extraction_error TEXT NOT NULL DEFAULT '',
	recorded_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS evaluations (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id           TEXT NOT NULL REFERENCES runs(id),
	image_path       TEXT NOT NULL,
	judge_provider   TEXT NOT NULL,
	judge_model      TEXT NOT NULL,
	evaluation_time  REAL NOT NULL,
	extracted_data   TEXT NOT NULL,
	verdict          TEXT NOT NULL,
	summary_metrics  TEXT NOT NULL DEFAULT 'null',
	evaluation_error TEXT NOT NULL DEFAULT '',
	recorded_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS comparisons (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id           TEXT NOT NULL REFERENCES runs(id),
	image_path       TEXT NOT NULL,
	judge_provider   TEXT NOT NULL,
	judge_model      TEXT NOT NULL,
	comparison_time  REAL NOT NULL,
	model_a_name     TEXT NOT NULL,
	model_b_name     TEXT NOT NULL,
	extraction_a     TEXT NOT NULL,
	extraction_b     TEXT NOT NULL,
	verdict          TEXT NOT NULL,
	comparison_error TEXT NOT NULL DEFAULT '',
	recorded_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS pdf_references (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	path       TEXT NOT NULL,
	pages      INTEGER NOT NULL,
	text       TEXT NOT NULL DEFAULT '',
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// migration represents a single schema migration.
type migration struct {
	version     int
	description string
	apply       func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// New migrations are appended at the end; never modify existing entries.
var migrations = []migration{
	{
		version:     1,
		description: "initial schema (applied via schemaSQL)",
		apply:       func(tx *sql.Tx) error { return nil }, // base schema applied separately
	},
	{
		version:     2,
		description: "index result tables by run",
		apply: func(tx *sql.Tx) error {
			for _, stmt := range []string{
				"CREATE INDEX IF NOT EXISTS idx_extractions_run ON extractions(run_id)",
				"CREATE INDEX IF NOT EXISTS idx_evaluations_run ON evaluations(run_id)",
				"CREATE INDEX IF NOT EXISTS idx_comparisons_run ON comparisons(run_id)",
			} {
				if _, err := tx.Exec(stmt); err != nil {
					return err
				}
			}
			return nil
		},
	},
}

// Migrate runs all pending schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	// Ensure the schema_version table exists.
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	// Get current version.
	var current int
	row := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&current); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		slog.Debug("applying migration", "version", m.version, "description", m.description)

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}

		if err := m.apply(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", m.version, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_version (version, description) VALUES (?, ?)",
			m.version, m.description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
	}

	return nil
}
