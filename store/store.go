// Package store persists evaluation runs and their result records in a
// local SQLite database. Payloads and verdicts are stored as JSON text;
// rows are append-only — a result record is never mutated after it is
// written.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/chenhaodev/medical-ocr-llm-judge/dataset"
	"github.com/chenhaodev/medical-ocr-llm-judge/eval"
)

// Run groups the records of one harness invocation.
type Run struct {
	ID            string    `json:"id"`
	DUTProvider   string    `json:"dut_provider"`
	DUTModel      string    `json:"dut_model"`
	JudgeProvider string    `json:"judge_provider"`
	JudgeModel    string    `json:"judge_model"`
	DatasetDir    string    `json:"dataset_dir,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Store wraps the SQLite database for all harness persistence.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database at the given path and
// initialises the schema.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	// Connection pool settings for SQLite.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}

	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// --- Run operations ---

// CreateRun inserts a run row.
func (s *Store) CreateRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, dut_provider, dut_model, judge_provider, judge_model, dataset_dir)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.ID, run.DUTProvider, run.DUTModel, run.JudgeProvider, run.JudgeModel, run.DatasetDir)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

// GetRun fetches one run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	var run Run
	row := s.db.QueryRowContext(ctx, `
		SELECT id, dut_provider, dut_model, judge_provider, judge_model, dataset_dir, created_at
		FROM runs WHERE id = ?
	`, id)
	if err := row.Scan(&run.ID, &run.DUTProvider, &run.DUTModel, &run.JudgeProvider,
		&run.JudgeModel, &run.DatasetDir, &run.CreatedAt); err != nil {
		return Run{}, fmt.Errorf("fetching run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns all runs, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, dut_provider, dut_model, judge_provider, judge_model, dataset_dir, created_at
		FROM runs ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.DUTProvider, &run.DUTModel, &run.JudgeProvider,
			&run.JudgeModel, &run.DatasetDir, &run.CreatedAt); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// --- Extraction operations ---

// SaveExtraction appends one extraction record to a run.
func (s *Store) SaveExtraction(ctx context.Context, runID string, r eval.ExtractionResult) error {
	data, err := json.Marshal(r.ExtractedData)
	if err != nil {
		return fmt.Errorf("encoding extracted data: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO extractions
			(run_id, image_path, document_type, provider, model,
			 extraction_time, extracted_data, extraction_error, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, runID, r.ImagePath, r.DocumentType, r.ModelInfo.Provider, r.ModelInfo.Model,
		r.ExtractionTime, string(data), r.ExtractionError, r.Timestamp)
	if err != nil {
		return fmt.Errorf("inserting extraction: %w", err)
	}
	return nil
}

// ListExtractions returns all extraction records of a run in insertion order.
func (s *Store) ListExtractions(ctx context.Context, runID string) ([]eval.ExtractionResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT image_path, document_type, provider, model,
		       extraction_time, extracted_data, extraction_error, recorded_at
		FROM extractions WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing extractions: %w", err)
	}
	defer rows.Close()

	var results []eval.ExtractionResult
	for rows.Next() {
		var r eval.ExtractionResult
		var data string
		if err := rows.Scan(&r.ImagePath, &r.DocumentType, &r.ModelInfo.Provider, &r.ModelInfo.Model,
			&r.ExtractionTime, &data, &r.ExtractionError, &r.Timestamp); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(data), &r.ExtractedData); err != nil {
			return nil, fmt.Errorf("decoding extracted data: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// --- Evaluation operations ---

// SaveEvaluation appends one judge evaluation record to a run.
func (s *Store) SaveEvaluation(ctx context.Context, runID string, r eval.EvaluationResult) error {
	extracted, err := json.Marshal(r.ExtractedData)
	if err != nil {
		return fmt.Errorf("encoding extracted data: %w", err)
	}
	verdict, err := json.Marshal(r.Evaluation)
	if err != nil {
		return fmt.Errorf("encoding verdict: %w", err)
	}
	metrics, err := json.Marshal(r.SummaryMetrics)
	if err != nil {
		return fmt.Errorf("encoding summary metrics: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO evaluations
			(run_id, image_path, judge_provider, judge_model, evaluation_time,
			 extracted_data, verdict, summary_metrics, evaluation_error, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, runID, r.ImagePath, r.JudgeInfo.Provider, r.JudgeInfo.Model, r.EvaluationTime,
		string(extracted), string(verdict), string(metrics), r.EvaluationError, r.Timestamp)
	if err != nil {
		return fmt.Errorf("inserting evaluation: %w", err)
	}
	return nil
}

// ListEvaluations returns all evaluation records of a run in insertion order.
func (s *Store) ListEvaluations(ctx context.Context, runID string) ([]eval.EvaluationResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT image_path, judge_provider, judge_model, evaluation_time,
		       extracted_data, verdict, summary_metrics, evaluation_error, recorded_at
		FROM evaluations WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing evaluations: %w", err)
	}
	defer rows.Close()

	var results []eval.EvaluationResult
	for rows.Next() {
		var r eval.EvaluationResult
		var extracted, verdict, metrics string
		if err := rows.Scan(&r.ImagePath, &r.JudgeInfo.Provider, &r.JudgeInfo.Model, &r.EvaluationTime,
			&extracted, &verdict, &metrics, &r.EvaluationError, &r.Timestamp); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(extracted), &r.ExtractedData); err != nil {
			return nil, fmt.Errorf("decoding extracted data: %w", err)
		}
		if err := json.Unmarshal([]byte(verdict), &r.Evaluation); err != nil {
			return nil, fmt.Errorf("decoding verdict: %w", err)
		}
		if err := json.Unmarshal([]byte(metrics), &r.SummaryMetrics); err != nil {
			return nil, fmt.Errorf("decoding summary metrics: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// --- Comparison operations ---

// SaveComparison appends one pairwise comparison record to a run.
func (s *Store) SaveComparison(ctx context.Context, runID string, r eval.ComparisonResult) error {
	extractionA, err := json.Marshal(r.ExtractionA)
	if err != nil {
		return fmt.Errorf("encoding extraction A: %w", err)
	}
	extractionB, err := json.Marshal(r.ExtractionB)
	if err != nil {
		return fmt.Errorf("encoding extraction B: %w", err)
	}
	verdict, err := json.Marshal(r.Comparison)
	if err != nil {
		return fmt.Errorf("encoding verdict: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO comparisons
			(run_id, image_path, judge_provider, judge_model, comparison_time,
			 model_a_name, model_b_name, extraction_a, extraction_b,
			 verdict, comparison_error, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, runID, r.ImagePath, r.JudgeInfo.Provider, r.JudgeInfo.Model, r.ComparisonTime,
		r.ModelAName, r.ModelBName, string(extractionA), string(extractionB),
		string(verdict), r.ComparisonError, r.Timestamp)
	if err != nil {
		return fmt.Errorf("inserting comparison: %w", err)
	}
	return nil
}

// ListComparisons returns all comparison records of a run in insertion order.
func (s *Store) ListComparisons(ctx context.Context, runID string) ([]eval.ComparisonResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT image_path, judge_provider, judge_model, comparison_time,
		       model_a_name, model_b_name, extraction_a, extraction_b,
		       verdict, comparison_error, recorded_at
		FROM comparisons WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing comparisons: %w", err)
	}
	defer rows.Close()

	var results []eval.ComparisonResult
	for rows.Next() {
		var r eval.ComparisonResult
		var extractionA, extractionB, verdict string
		if err := rows.Scan(&r.ImagePath, &r.JudgeInfo.Provider, &r.JudgeInfo.Model, &r.ComparisonTime,
			&r.ModelAName, &r.ModelBName, &extractionA, &extractionB,
			&verdict, &r.ComparisonError, &r.Timestamp); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(extractionA), &r.ExtractionA); err != nil {
			return nil, fmt.Errorf("decoding extraction A: %w", err)
		}
		if err := json.Unmarshal([]byte(extractionB), &r.ExtractionB); err != nil {
			return nil, fmt.Errorf("decoding extraction B: %w", err)
		}
		if err := json.Unmarshal([]byte(verdict), &r.Comparison); err != nil {
			return nil, fmt.Errorf("decoding verdict: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// --- PDF reference operations ---

// SavePDFReference stores the embedded text layer of a scanned PDF for a run.
func (s *Store) SavePDFReference(ctx context.Context, runID string, ref dataset.PDFReference) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pdf_references (run_id, path, pages, text)
		VALUES (?, ?, ?, ?)
	`, runID, ref.Path, ref.Pages, ref.Text)
	if err != nil {
		return fmt.Errorf("inserting pdf reference: %w", err)
	}
	return nil
}

// ListPDFReferences returns the PDF text-layer references of a run.
func (s *Store) ListPDFReferences(ctx context.Context, runID string) ([]dataset.PDFReference, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path, pages, text FROM pdf_references WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing pdf references: %w", err)
	}
	defer rows.Close()

	var refs []dataset.PDFReference
	for rows.Next() {
		var ref dataset.PDFReference
		if err := rows.Scan(&ref.Path, &ref.Pages, &ref.Text); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}
