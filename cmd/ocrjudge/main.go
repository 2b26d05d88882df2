// Command ocrjudge evaluates vision-LLM OCR extraction on scanned medical
// documents.
//
// Single-image comparison (DUT vs baseline, ranked by a judge model):
//
//	go run ./cmd/ocrjudge \
//	  --image "data/reports/10.jpg" \
//	  --model qwen2.5vl
//
// Batch evaluation with judge scoring over a dataset directory:
//
//	go run ./cmd/ocrjudge \
//	  --batch data/reports \
//	  --sample 20 \
//	  --model gpt-4o \
//	  --db results.db --xlsx results.xlsx
//
// Required API keys (exported as environment variables):
//
//	OPENROUTER_API_KEY   baseline extraction and batch judging (InternVL)
//	DEEPSEEK_API_KEY     single-image comparison judge
//	GLM_API_KEY          only when using glm-4v-plus as DUT
//	OPENAI_API_KEY       only when using gpt-4o as DUT
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	ocrjudge "github.com/chenhaodev/medical-ocr-llm-judge"
	"github.com/chenhaodev/medical-ocr-llm-judge/export"
	"github.com/chenhaodev/medical-ocr-llm-judge/prompts"
	"github.com/chenhaodev/medical-ocr-llm-judge/store"
)

// duts maps the short model names accepted by --model to registry entries.
var duts = map[string]ocrjudge.ModelRef{
	"qwen2.5vl":    {Provider: "ollama", Model: "qwen2.5vl"},
	"minicpm-v4.5": {Provider: "ollama", Model: "minicpm-v4.5"},
	"glm-4v-plus":  {Provider: "glm", Model: "glm-4v-plus"},
	"gpt-4o":       {Provider: "openai", Model: "gpt-4o"},
}

func main() {
	var (
		imagePath  = flag.String("image", "", "Path to a single document image")
		batchDir   = flag.String("batch", "", "Dataset directory for batch evaluation")
		sampleSize = flag.Int("sample", 0, "Images to sample in batch mode (0=all)")
		seed       = flag.Int64("seed", 0, "Sampling seed (0=unseeded)")
		dutName    = flag.String("model", "qwen2.5vl", "Model under test: qwen2.5vl, minicpm-v4.5, glm-4v-plus, gpt-4o")
		docType    = flag.String("doc-type", "", "Document type: report or medicine (default: detected from path)")
		configPath = flag.String("config", "", "Path to llm_config.json (default: built-in registry)")
		promptsDir = flag.String("prompts", "", "Prompt template override directory")
		dbPath     = flag.String("db", "", "SQLite database to persist results (optional)")
		xlsxPath   = flag.String("xlsx", "", "XLSX summary output path (batch mode, requires --db)")
		judgeProv  = flag.String("judge-provider", "", "Judge model provider (default: deepseek; openrouter in batch mode)")
		judgeModel = flag.String("judge-model", "", "Judge model name (default: deepseek-chat; internvl3-78b in batch mode)")
		basProv    = flag.String("baseline-provider", "openrouter", "Baseline model provider")
		basModel   = flag.String("baseline-model", "internvl3-78b", "Baseline model name")
		verbose    = flag.Bool("v", false, "Verbose logging")
	)
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if *imagePath == "" && *batchDir == "" {
		flag.Usage()
		log.Fatal("either --image or --batch is required")
	}

	dut, ok := duts[*dutName]
	if !ok {
		log.Fatalf("unknown model %q (supported: qwen2.5vl, minicpm-v4.5, glm-4v-plus, gpt-4o)", *dutName)
	}

	registry := ocrjudge.DefaultRegistry()
	if *configPath != "" {
		var err error
		registry, err = ocrjudge.LoadRegistry(*configPath)
		if err != nil {
			log.Fatalf("loading registry: %v", err)
		}
	}

	var opts []ocrjudge.Option
	var db *store.Store
	if *dbPath != "" {
		var err error
		db, err = store.New(*dbPath)
		if err != nil {
			log.Fatalf("opening result store: %v", err)
		}
		defer db.Close()
		opts = append(opts, ocrjudge.WithStore(db))
	}

	harness := ocrjudge.New(registry, prompts.NewLoader(*promptsDir), opts...)
	ctx := context.Background()

	// Batch scoring is vision-grounded, so its default judge must see
	// images; the comparison judge is text-only and can stay cheaper.
	judge := ocrjudge.ModelRef{Provider: *judgeProv, Model: *judgeModel}
	if judge.Provider == "" && judge.Model == "" {
		if *batchDir != "" {
			judge = ocrjudge.ModelRef{Provider: "openrouter", Model: "internvl3-78b"}
		} else {
			judge = ocrjudge.ModelRef{Provider: "deepseek", Model: "deepseek-chat"}
		}
	}

	if *batchDir != "" {
		runBatch(ctx, harness, db, ocrjudge.BatchSpec{
			DatasetDir:           *batchDir,
			SampleSize:           *sampleSize,
			Seed:                 optionalSeed(*seed),
			DUT:                  dut,
			Judge:                judge,
			CollectPDFReferences: true,
		}, *xlsxPath)
		return
	}

	runCompare(ctx, harness, ocrjudge.CompareSpec{
		ImagePath:    *imagePath,
		DocumentType: *docType,
		DUT:          dut,
		Baseline:     ocrjudge.ModelRef{Provider: *basProv, Model: *basModel},
		Judge:        judge,
	})
}

func runCompare(ctx context.Context, harness *ocrjudge.Harness, spec ocrjudge.CompareSpec) {
	fmt.Printf("Image: %s\nDUT: %s\nBaseline: %s\nJudge: %s\n",
		spec.ImagePath, spec.DUT, spec.Baseline, spec.Judge)
	fmt.Println(separator)

	fmt.Printf("\n[1/3] Extracting with %s...\n", spec.DUT)
	outcome, err := harness.CompareModels(ctx, spec)
	if err != nil {
		log.Fatalf("comparison failed: %v", err)
	}

	if !outcome.DUT.OK() {
		log.Fatalf("%s failed: %s", spec.DUT, outcome.DUT.ExtractionError)
	}
	fmt.Printf("done in %.2fs\n", outcome.DUT.ExtractionTime)
	fmt.Printf("\n[2/3] Baseline %s: done in %.2fs\n", spec.Baseline, outcome.Baseline.ExtractionTime)
	if !outcome.Baseline.OK() {
		log.Fatalf("%s failed: %s", spec.Baseline, outcome.Baseline.ExtractionError)
	}
	fmt.Printf("\n[3/3] Judge verdict:\n")
	if !outcome.Comparison.OK() {
		log.Fatalf("judge failed: %s", outcome.Comparison.ComparisonError)
	}

	printComparison(spec, outcome)
}

func printComparison(spec ocrjudge.CompareSpec, outcome *ocrjudge.CompareOutcome) {
	fmt.Println(separator)
	fmt.Printf("EVALUATION RESULTS (%s)\n", spec.DUT.Model)
	fmt.Println(separator)

	comp := outcome.Comparison.Comparison
	modelA, ok := comp["model_a"].(map[string]any)
	if !ok {
		// Raw-text fallback or unexpected shape: show the verdict as-is.
		printJSON(comp)
		return
	}

	if score, ok := modelA["total_score"]; ok {
		fmt.Printf("\n%s score: %v/10\n", spec.DUT.Model, score)
	}
	printList("Strengths", modelA["strengths"])
	printList("Weaknesses", modelA["weaknesses"])
	printList("vs Baseline", comp["key_differences"])
	if conclusion, ok := comp["conclusion"].(string); ok {
		fmt.Printf("\n%s\n", conclusion)
	}
	fmt.Println(separator)
}

func runBatch(ctx context.Context, harness *ocrjudge.Harness, db *store.Store, spec ocrjudge.BatchSpec, xlsxPath string) {
	report, err := harness.RunBatch(ctx, spec)
	if err != nil {
		log.Fatalf("batch failed: %v", err)
	}

	fmt.Println(separator)
	fmt.Printf("BATCH RESULTS (%s, run %s)\n", spec.DUT, report.RunID)
	fmt.Println(separator)
	fmt.Printf("Images:      %d\n", report.TotalImages)
	fmt.Printf("Extracted:   %d\n", report.Extracted)
	fmt.Printf("Failed:      %d\n", report.Failed)
	fmt.Printf("Avg score:   %.2f\n", report.AvgScore)
	fmt.Printf("Avg percent: %.2f%%\n", report.AvgPercentage)
	fmt.Printf("Run time:    %s\n", report.RunTime.Round(1e9))

	if xlsxPath == "" {
		return
	}
	if db == nil {
		log.Fatal("--xlsx requires --db")
	}

	run, err := db.GetRun(ctx, report.RunID)
	if err != nil {
		log.Fatalf("loading run for export: %v", err)
	}
	comparisons, err := db.ListComparisons(ctx, report.RunID)
	if err != nil {
		log.Fatalf("loading comparisons for export: %v", err)
	}
	workbook, err := export.BuildRunWorkbook(run, report.Extractions, report.Evaluations, comparisons)
	if err != nil {
		log.Fatalf("building workbook: %v", err)
	}
	if err := os.WriteFile(xlsxPath, workbook, 0644); err != nil {
		log.Fatalf("writing workbook: %v", err)
	}
	fmt.Printf("Workbook:    %s\n", xlsxPath)
}

const separator = "============================================================"

func optionalSeed(seed int64) *int64 {
	if seed == 0 {
		return nil
	}
	return &seed
}

func printList(title string, v any) {
	items, ok := v.([]any)
	if !ok || len(items) == 0 {
		return
	}
	if len(items) > 3 {
		items = items[:3]
	}
	fmt.Printf("\n%s:\n", title)
	for _, item := range items {
		fmt.Printf("  - %v\n", item)
	}
}

func printJSON(v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("%v\n", v)
		return
	}
	fmt.Println(string(b))
}
