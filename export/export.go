// Package export renders evaluation runs as XLSX workbooks for review
// outside the harness.
package export

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/chenhaodev/medical-ocr-llm-judge/eval"
	"github.com/chenhaodev/medical-ocr-llm-judge/store"
)

// BuildRunWorkbook returns an XLSX workbook (as bytes) summarising one run:
// one sheet per record kind, one row per record, JSON payloads flattened to
// text cells.
func BuildRunWorkbook(run store.Run, extractions []eval.ExtractionResult, evaluations []eval.EvaluationResult, comparisons []eval.ComparisonResult) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	defer f.Close()

	if err := writeExtractionsSheet(f, extractions); err != nil {
		return nil, err
	}
	if err := writeEvaluationsSheet(f, evaluations); err != nil {
		return nil, err
	}
	if err := writeComparisonsSheet(f, comparisons); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("writing workbook: %w", err)
	}

	slog.Info("export: workbook built",
		"run_id", run.ID,
		"extractions", len(extractions),
		"evaluations", len(evaluations),
		"comparisons", len(comparisons),
		"elapsed_ms", time.Since(start).Milliseconds())

	return buf.Bytes(), nil
}

func writeExtractionsSheet(f *excelize.File, results []eval.ExtractionResult) error {
	const sheet = "Extractions"
	// The default sheet becomes the first data sheet.
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	headers := []string{"Image", "Document Type", "Provider", "Model", "Time (s)", "Extracted Data", "Error"}
	if err := writeRow(f, sheet, 1, toAny(headers)); err != nil {
		return err
	}

	for i, r := range results {
		row := []any{
			r.ImagePath,
			r.DocumentType,
			r.ModelInfo.Provider,
			r.ModelInfo.Model,
			r.ExtractionTime,
			compactJSON(r.ExtractedData),
			r.ExtractionError,
		}
		if err := writeRow(f, sheet, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func writeEvaluationsSheet(f *excelize.File, results []eval.EvaluationResult) error {
	const sheet = "Evaluations"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	headers := []string{"Image", "Judge", "Time (s)", "Score", "Percentage", "Grade", "Usability", "Verdict", "Error"}
	if err := writeRow(f, sheet, 1, toAny(headers)); err != nil {
		return err
	}

	for i, r := range results {
		row := []any{
			r.ImagePath,
			r.JudgeInfo.Provider + "/" + r.JudgeInfo.Model,
			r.EvaluationTime,
			metricCell(r.SummaryMetrics, "overall_score"),
			metricCell(r.SummaryMetrics, "overall_percentage"),
			metricCell(r.SummaryMetrics, "grade"),
			metricCell(r.SummaryMetrics, "usability"),
			compactJSON(r.Evaluation),
			r.EvaluationError,
		}
		if err := writeRow(f, sheet, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func writeComparisonsSheet(f *excelize.File, results []eval.ComparisonResult) error {
	const sheet = "Comparisons"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	headers := []string{"Image", "Judge", "Time (s)", "Model A", "Model B", "Verdict", "Error"}
	if err := writeRow(f, sheet, 1, toAny(headers)); err != nil {
		return err
	}

	for i, r := range results {
		row := []any{
			r.ImagePath,
			r.JudgeInfo.Provider + "/" + r.JudgeInfo.Model,
			r.ComparisonTime,
			r.ModelAName,
			r.ModelBName,
			compactJSON(r.Comparison),
			r.ComparisonError,
		}
		if err := writeRow(f, sheet, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("setting %s!%s: %w", sheet, cell, err)
		}
	}
	return nil
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func compactJSON(m map[string]any) string {
	if len(m) == 0 {
		return ""
	}
	b, err := json.Marshal(m)
	if err != nil {
		return fmt.Sprintf("%v", m)
	}
	return string(b)
}

func metricCell(metrics map[string]any, key string) any {
	if metrics == nil {
		return ""
	}
	if v, ok := metrics[key]; ok {
		return v
	}
	return ""
}
