// Package ocrjudge measures the OCR extraction quality of vision-language
// models on scanned medical documents, using a second, more capable model
// as an automated judge. The root package ties the pieces together: the
// provider/model registry, the prompt loader, the eval tester and judge,
// and optional persistence and export.
package ocrjudge

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chenhaodev/medical-ocr-llm-judge/dataset"
	"github.com/chenhaodev/medical-ocr-llm-judge/eval"
	"github.com/chenhaodev/medical-ocr-llm-judge/llm"
	"github.com/chenhaodev/medical-ocr-llm-judge/prompts"
	"github.com/chenhaodev/medical-ocr-llm-judge/store"
)

// Harness wires the registry, prompt loader and optional result store into
// the evaluation flows. All flows are sequential, blocking operations; a
// per-image failure is captured into its result record and never aborts
// the rest of a batch.
type Harness struct {
	registry *Registry
	prompts  *prompts.Loader
	store    *store.Store
}

// Option configures a Harness.
type Option func(*Harness)

// WithStore attaches a result store; every record produced by the harness
// flows is then persisted under its run ID.
func WithStore(s *store.Store) Option {
	return func(h *Harness) { h.store = s }
}

// New creates a Harness. loader may be nil to use the embedded prompt
// templates only.
func New(registry *Registry, loader *prompts.Loader, opts ...Option) *Harness {
	if loader == nil {
		loader = prompts.NewLoader("")
	}
	h := &Harness{registry: registry, prompts: loader}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NewTester resolves a model and builds a Tester for it.
func (h *Harness) NewTester(provider, model string) (*eval.Tester, error) {
	cfg, err := h.registry.ResolveModel(provider, model)
	if err != nil {
		return nil, err
	}
	return eval.NewTester(cfg, h.prompts)
}

// NewJudge resolves a model and builds a Judge for it.
func (h *Harness) NewJudge(provider, model string) (*eval.Judge, error) {
	cfg, err := h.registry.ResolveModel(provider, model)
	if err != nil {
		return nil, err
	}
	return eval.NewJudge(cfg, h.prompts)
}

// ModelRef names one registered model.
type ModelRef struct {
	Provider string
	Model    string
}

func (m ModelRef) String() string { return m.Provider + "/" + m.Model }

// CompareSpec describes one DUT-versus-baseline comparison of a single
// image.
type CompareSpec struct {
	ImagePath    string
	DocumentType string // empty: detected from the path
	DUT          ModelRef
	Baseline     ModelRef
	Judge        ModelRef
}

// CompareOutcome bundles the records of one comparison flow.
type CompareOutcome struct {
	RunID      string                `json:"run_id"`
	DUT        eval.ExtractionResult `json:"dut"`
	Baseline   eval.ExtractionResult `json:"baseline"`
	Comparison eval.ComparisonResult `json:"comparison"`
}

// CompareModels runs the single-image comparison flow: extract with the
// DUT, extract with the baseline, then ask the judge to rank the two
// payloads. Extraction failures are carried in the records; the flow only
// fails on configuration or capability errors.
func (h *Harness) CompareModels(ctx context.Context, spec CompareSpec) (*CompareOutcome, error) {
	docType := spec.DocumentType
	if docType == "" {
		docType = dataset.DetectDocumentType(spec.ImagePath)
	}

	dut, err := h.NewTester(spec.DUT.Provider, spec.DUT.Model)
	if err != nil {
		return nil, err
	}
	baseline, err := h.NewTester(spec.Baseline.Provider, spec.Baseline.Model)
	if err != nil {
		return nil, err
	}
	judge, err := h.NewJudge(spec.Judge.Provider, spec.Judge.Model)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	outcome := &CompareOutcome{RunID: runID}

	if h.store != nil {
		if err := h.store.CreateRun(ctx, store.Run{
			ID:            runID,
			DUTProvider:   spec.DUT.Provider,
			DUTModel:      spec.DUT.Model,
			JudgeProvider: spec.Judge.Provider,
			JudgeModel:    spec.Judge.Model,
		}); err != nil {
			return nil, err
		}
	}

	slog.Info("harness: extracting with DUT", "model", spec.DUT, "image", spec.ImagePath)
	outcome.DUT, err = dut.TestSingleImage(ctx, spec.ImagePath, docType)
	if err != nil {
		return nil, err
	}

	slog.Info("harness: extracting with baseline", "model", spec.Baseline, "image", spec.ImagePath)
	outcome.Baseline, err = baseline.TestSingleImage(ctx, spec.ImagePath, docType)
	if err != nil {
		return nil, err
	}

	slog.Info("harness: comparing with judge", "judge", spec.Judge, "image", spec.ImagePath)
	outcome.Comparison, err = judge.CompareExtractions(ctx, spec.ImagePath,
		outcome.DUT.ExtractedData, outcome.Baseline.ExtractedData,
		spec.DUT.Model, spec.Baseline.Model)
	if err != nil {
		return nil, err
	}

	if h.store != nil {
		if err := h.store.SaveExtraction(ctx, runID, outcome.DUT); err != nil {
			return nil, err
		}
		if err := h.store.SaveExtraction(ctx, runID, outcome.Baseline); err != nil {
			return nil, err
		}
		if err := h.store.SaveComparison(ctx, runID, outcome.Comparison); err != nil {
			return nil, err
		}
	}

	return outcome, nil
}

// BatchSpec describes a batch evaluation over a dataset directory.
type BatchSpec struct {
	DatasetDir string
	SampleSize int    // 0: every image in the directory
	Seed       *int64 // nil: unseeded sampling
	DUT        ModelRef
	Judge      ModelRef

	// CollectPDFReferences also indexes scanned PDFs found in the
	// dataset directory and stores their embedded text layers.
	CollectPDFReferences bool
}

// BatchReport is the aggregate outcome of a batch run.
type BatchReport struct {
	RunID         string                  `json:"run_id"`
	TotalImages   int                     `json:"total_images"`
	Extracted     int                     `json:"extracted"`
	Failed        int                     `json:"failed"`
	AvgScore      float64                 `json:"avg_score"`
	AvgPercentage float64                 `json:"avg_percentage"`
	Extractions   []eval.ExtractionResult `json:"extractions"`
	Evaluations   []eval.EvaluationResult `json:"evaluations"`
	PDFReferences []dataset.PDFReference  `json:"pdf_references,omitempty"`
	RunTime       time.Duration           `json:"run_time"`
}

// RunBatch samples images from the dataset directory and, for each one,
// extracts with the DUT and scores the extraction with the judge. The loop
// is strictly sequential; failures are recorded per image and never abort
// the batch.
func (h *Harness) RunBatch(ctx context.Context, spec BatchSpec) (*BatchReport, error) {
	start := time.Now()

	var rng *rand.Rand
	if spec.Seed != nil {
		rng = rand.New(rand.NewSource(*spec.Seed))
	}
	images, err := dataset.Sample(spec.DatasetDir, spec.SampleSize, rng)
	if err != nil {
		return nil, err
	}

	tester, err := h.NewTester(spec.DUT.Provider, spec.DUT.Model)
	if err != nil {
		return nil, err
	}
	judgeCfg, err := h.registry.ResolveModel(spec.Judge.Provider, spec.Judge.Model)
	if err != nil {
		return nil, err
	}
	// Batch scoring grounds every verdict in the original image, so a
	// text-only judge would fail identically on the first extraction.
	if !judgeCfg.VisionEnabled {
		return nil, fmt.Errorf("%w: batch judge %s/%s has vision disabled",
			llm.ErrVisionRequired, spec.Judge.Provider, spec.Judge.Model)
	}
	judge, err := eval.NewJudge(judgeCfg, h.prompts)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	report := &BatchReport{RunID: runID, TotalImages: len(images)}

	if h.store != nil {
		if err := h.store.CreateRun(ctx, store.Run{
			ID:            runID,
			DUTProvider:   spec.DUT.Provider,
			DUTModel:      spec.DUT.Model,
			JudgeProvider: spec.Judge.Provider,
			JudgeModel:    spec.Judge.Model,
			DatasetDir:    spec.DatasetDir,
		}); err != nil {
			return nil, err
		}
	}

	var scoreSum, pctSum float64
	var scored int

	for i, img := range images {
		extraction, err := tester.TestSingleImage(ctx, img.Path, img.DocumentType)
		if err != nil {
			// Config/capability errors mean every remaining image would
			// fail the same way.
			return nil, err
		}
		report.Extractions = append(report.Extractions, extraction)

		var evaluation eval.EvaluationResult
		if extraction.OK() {
			report.Extracted++
			evaluation, err = judge.EvaluateSingle(ctx, img.Path, extraction.ExtractedData)
			if err != nil {
				return nil, err
			}
			report.Evaluations = append(report.Evaluations, evaluation)

			if evaluation.OK() && evaluation.SummaryMetrics != nil {
				if score, ok := evaluation.SummaryMetrics["overall_score"].(float64); ok {
					scoreSum += score
					scored++
				}
				if pct, ok := evaluation.SummaryMetrics["overall_percentage"].(float64); ok {
					pctSum += pct
				}
			}
		} else {
			report.Failed++
		}

		slog.Info("harness: image complete",
			"progress", fmt.Sprintf("%d/%d", i+1, len(images)),
			"image", filepath.Base(img.Path),
			"document_type", img.DocumentType,
			"extraction_ok", extraction.OK(),
			"elapsed_s", fmt.Sprintf("%.2f", extraction.ExtractionTime))

		if h.store != nil {
			if err := h.store.SaveExtraction(ctx, runID, extraction); err != nil {
				return nil, err
			}
			if extraction.OK() {
				if err := h.store.SaveEvaluation(ctx, runID, evaluation); err != nil {
					return nil, err
				}
			}
		}
	}

	if scored > 0 {
		report.AvgScore = scoreSum / float64(scored)
		report.AvgPercentage = pctSum / float64(scored)
	}

	if spec.CollectPDFReferences {
		refs, err := h.collectPDFReferences(ctx, runID, spec.DatasetDir)
		if err != nil {
			slog.Warn("harness: collecting PDF references failed", "error", err)
		} else {
			report.PDFReferences = refs
		}
	}

	report.RunTime = time.Since(start)
	return report, nil
}

func (h *Harness) collectPDFReferences(ctx context.Context, runID, dir string) ([]dataset.PDFReference, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.pdf"))
	if err != nil {
		return nil, err
	}

	var refs []dataset.PDFReference
	for _, path := range matches {
		if !strings.EqualFold(filepath.Ext(path), ".pdf") {
			continue
		}
		ref, err := dataset.ExtractPDFReference(path)
		if err != nil {
			slog.Warn("harness: skipping unreadable PDF", "path", path, "error", err)
			continue
		}
		refs = append(refs, *ref)
		if h.store != nil {
			if err := h.store.SavePDFReference(ctx, runID, *ref); err != nil {
				return nil, err
			}
		}
	}
	return refs, nil
}
