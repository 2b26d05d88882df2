// Package eval drives OCR extraction runs and LLM-as-judge scoring. A
// Tester performs one timed extraction per call; a Judge scores a single
// extraction against a quality rubric or compares two extractions
// pairwise. Every operation produces a result record even when the
// underlying call fails: transport and parsing failures are captured into
// the record's error field so batch loops never need per-item recovery.
package eval

import "time"

// ModelInfo identifies the model that produced a record.
type ModelInfo struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// ExtractionResult is the outcome of one extraction call. Exactly one of
// ExtractedData and ExtractionError carries useful content: a non-empty
// error implies the payload is empty, never a partial mix.
type ExtractionResult struct {
	ImagePath       string         `json:"image_path"`
	DocumentType    string         `json:"document_type"`
	ModelInfo       ModelInfo      `json:"model_info"`
	ExtractionTime  float64        `json:"extraction_time"` // seconds
	ExtractedData   map[string]any `json:"extracted_data"`
	ExtractionError string         `json:"extraction_error"`

	// Metrics and GroundTruth are always null. Ground-truth comparison
	// was removed in favor of judge-based scoring; the fields remain for
	// schema stability of persisted results.
	Metrics     map[string]any `json:"metrics"`
	GroundTruth map[string]any `json:"ground_truth"`

	Timestamp time.Time `json:"timestamp"`
}

// OK reports whether the extraction produced a payload (which may still be
// the recovery-failure sentinel).
func (r ExtractionResult) OK() bool { return r.ExtractionError == "" }

// EvaluationResult is the outcome of judging a single extraction against
// the quality rubric.
type EvaluationResult struct {
	ImagePath       string         `json:"image_path"`
	JudgeInfo       ModelInfo      `json:"judge_info"`
	EvaluationTime  float64        `json:"evaluation_time"` // seconds
	ExtractedData   map[string]any `json:"extracted_data"`
	Evaluation      map[string]any `json:"evaluation"`
	SummaryMetrics  map[string]any `json:"summary_metrics,omitempty"`
	EvaluationError string         `json:"evaluation_error"`
	Timestamp       time.Time      `json:"timestamp"`
}

// OK reports whether the judge call succeeded.
func (r EvaluationResult) OK() bool { return r.EvaluationError == "" }

// ComparisonResult is the outcome of a pairwise judge comparison of two
// extractions of the same image.
type ComparisonResult struct {
	ImagePath       string         `json:"image_path"`
	JudgeInfo       ModelInfo      `json:"judge_info"`
	ComparisonTime  float64        `json:"comparison_time"` // seconds
	ModelAName      string         `json:"model_a_name"`
	ModelBName      string         `json:"model_b_name"`
	ExtractionA     map[string]any `json:"extraction_a"`
	ExtractionB     map[string]any `json:"extraction_b"`
	Comparison      map[string]any `json:"comparison"`
	ComparisonError string         `json:"comparison_error"`
	Timestamp       time.Time      `json:"timestamp"`
}

// OK reports whether the comparison call succeeded.
func (r ComparisonResult) OK() bool { return r.ComparisonError == "" }
