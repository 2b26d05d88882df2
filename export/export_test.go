package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/chenhaodev/medical-ocr-llm-judge/eval"
	"github.com/chenhaodev/medical-ocr-llm-judge/store"
)

func TestBuildRunWorkbook(t *testing.T) {
	run := store.Run{ID: "run-1", DUTProvider: "ollama", DUTModel: "qwen2.5vl"}

	extractions := []eval.ExtractionResult{
		{
			ImagePath:      "data/reports/10.jpg",
			DocumentType:   "report",
			ModelInfo:      eval.ModelInfo{Provider: "ollama", Model: "qwen2.5vl"},
			ExtractionTime: 12.3,
			ExtractedData:  map[string]any{"hospital_name": "City Hospital"},
		},
		{
			ImagePath:       "data/reports/11.jpg",
			DocumentType:    "report",
			ModelInfo:       eval.ModelInfo{Provider: "ollama", Model: "qwen2.5vl"},
			ExtractedData:   map[string]any{},
			ExtractionError: "ollama API error 500: boom",
		},
	}
	evaluations := []eval.EvaluationResult{
		{
			ImagePath:      "data/reports/10.jpg",
			JudgeInfo:      eval.ModelInfo{Provider: "deepseek", Model: "deepseek-chat"},
			Evaluation:     map[string]any{"overall_score": 8.0},
			SummaryMetrics: map[string]any{"overall_score": 8.0, "overall_percentage": 80.0, "grade": "B", "usability": "usable"},
		},
	}
	comparisons := []eval.ComparisonResult{
		{
			ImagePath:  "data/reports/10.jpg",
			JudgeInfo:  eval.ModelInfo{Provider: "deepseek", Model: "deepseek-chat"},
			ModelAName: "qwen2.5vl",
			ModelBName: "internvl3-78b",
			Comparison: map[string]any{"winner": "model_a"},
		},
	}

	data, err := BuildRunWorkbook(run, extractions, evaluations, comparisons)
	if err != nil {
		t.Fatalf("BuildRunWorkbook: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("reopening workbook: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	for _, want := range []string{"Extractions", "Evaluations", "Comparisons"} {
		found := false
		for _, s := range sheets {
			if s == want {
				found = true
			}
		}
		if !found {
			t.Errorf("workbook missing sheet %q (have %v)", want, sheets)
		}
	}

	// Header row plus one row per record on the extractions sheet.
	if got, _ := f.GetCellValue("Extractions", "A1"); got != "Image" {
		t.Errorf("Extractions!A1 = %q", got)
	}
	if got, _ := f.GetCellValue("Extractions", "A2"); got != "data/reports/10.jpg" {
		t.Errorf("Extractions!A2 = %q", got)
	}
	if got, _ := f.GetCellValue("Extractions", "F2"); !strings.Contains(got, "City Hospital") {
		t.Errorf("Extractions!F2 = %q, want JSON payload", got)
	}
	if got, _ := f.GetCellValue("Extractions", "G3"); !strings.Contains(got, "500") {
		t.Errorf("Extractions!G3 = %q, want error text", got)
	}
	// Failed extraction has an empty payload cell.
	if got, _ := f.GetCellValue("Extractions", "F3"); got != "" {
		t.Errorf("Extractions!F3 = %q, want empty", got)
	}

	if got, _ := f.GetCellValue("Evaluations", "D2"); got != "8" {
		t.Errorf("Evaluations!D2 = %q, want score 8", got)
	}
	if got, _ := f.GetCellValue("Evaluations", "F2"); got != "B" {
		t.Errorf("Evaluations!F2 = %q, want grade B", got)
	}

	if got, _ := f.GetCellValue("Comparisons", "D2"); got != "qwen2.5vl" {
		t.Errorf("Comparisons!D2 = %q", got)
	}
	if got, _ := f.GetCellValue("Comparisons", "F2"); !strings.Contains(got, "model_a") {
		t.Errorf("Comparisons!F2 = %q, want verdict JSON", got)
	}
}

func TestBuildRunWorkbookEmptyRun(t *testing.T) {
	data, err := BuildRunWorkbook(store.Run{ID: "run-0"}, nil, nil, nil)
	if err != nil {
		t.Fatalf("BuildRunWorkbook: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("reopening workbook: %v", err)
	}
	defer f.Close()

	// Header rows are still written.
	if got, _ := f.GetCellValue("Evaluations", "A1"); got != "Image" {
		t.Errorf("Evaluations!A1 = %q", got)
	}
}
