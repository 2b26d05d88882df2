package eval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chenhaodev/medical-ocr-llm-judge/llm"
	"github.com/chenhaodev/medical-ocr-llm-judge/prompts"
)

// Judge scores extractions with a second, more capable model. Both
// operations delegate to an Extractor configured for the judge model:
// single-extraction scoring is vision-grounded (the judge sees the
// original image plus the candidate extraction), pairwise comparison is
// text-only over the two already-produced payloads.
type Judge struct {
	info      ModelInfo
	extractor llm.Extractor
	prompts   *prompts.Loader
}

// NewJudge builds a Judge for the given resolved model configuration.
func NewJudge(cfg llm.ModelConfig, loader *prompts.Loader) (*Judge, error) {
	extractor, err := llm.NewExtractor(cfg)
	if err != nil {
		return nil, err
	}
	return newJudge(extractor, loader), nil
}

func newJudge(extractor llm.Extractor, loader *prompts.Loader) *Judge {
	cfg := extractor.Config()
	return &Judge{
		info:      ModelInfo{Provider: cfg.Provider, Model: cfg.Model},
		extractor: extractor,
		prompts:   loader,
	}
}

// ModelInfo returns the judge model identity.
func (j *Judge) ModelInfo() ModelInfo { return j.info }

// EvaluateSingle scores one extraction against the quality rubric. The
// judge sees the original image and the pretty-printed extraction. Summary
// metrics are derived only when the call succeeded and the verdict is
// non-empty.
func (j *Judge) EvaluateSingle(ctx context.Context, imagePath string, extractedData map[string]any) (EvaluationResult, error) {
	base, err := j.prompts.Load(prompts.JudgeOCRQuality)
	if err != nil {
		return EvaluationResult{}, err
	}

	pretty, err := json.MarshalIndent(extractedData, "", "  ")
	if err != nil {
		return EvaluationResult{}, fmt.Errorf("encoding extraction for judge: %w", err)
	}
	fullPrompt := fmt.Sprintf("%s\n\n**OCR Extraction to Evaluate:**\n```json\n%s\n```", base, pretty)

	start := time.Now()
	verdict, err := j.extractor.Extract(ctx, imagePath, fullPrompt)
	elapsed := time.Since(start).Seconds()

	result := EvaluationResult{
		ImagePath:      imagePath,
		JudgeInfo:      j.info,
		EvaluationTime: elapsed,
		ExtractedData:  extractedData,
		Evaluation:     verdict,
		Timestamp:      time.Now(),
	}

	if err != nil {
		if errors.Is(err, llm.ErrVisionRequired) {
			return EvaluationResult{}, err
		}
		result.Evaluation = map[string]any{}
		result.EvaluationError = err.Error()
		slog.Warn("eval: judge evaluation failed",
			"image", imagePath,
			"judge", j.info.Model,
			"error", err)
		return result, nil
	}

	if len(verdict) > 0 {
		if err := validateVerdict(verdict); err != nil {
			slog.Warn("eval: judge verdict does not match expected shape, using defaults",
				"judge", j.info.Model,
				"error", err)
		}
		result.SummaryMetrics = SummaryMetrics(verdict)
	}

	return result, nil
}

// CompareExtractions asks the judge to rank two extractions of the same
// image. The comparison is defined over the two payloads plus the rubric
// text, so no image is re-attached; the raw response goes through the same
// JSON recovery as extraction, and an unrecoverable response is stored as
// a raw-text fallback verdict rather than a failure.
func (j *Judge) CompareExtractions(ctx context.Context, imagePath string, extractionA, extractionB map[string]any, modelAName, modelBName string) (ComparisonResult, error) {
	if modelAName == "" {
		modelAName = "Model A"
	}
	if modelBName == "" {
		modelBName = "Model B"
	}

	base, err := j.prompts.Load(prompts.JudgeComparison)
	if err != nil {
		return ComparisonResult{}, err
	}

	prettyA, err := json.MarshalIndent(extractionA, "", "  ")
	if err != nil {
		return ComparisonResult{}, fmt.Errorf("encoding extraction A for judge: %w", err)
	}
	prettyB, err := json.MarshalIndent(extractionB, "", "  ")
	if err != nil {
		return ComparisonResult{}, fmt.Errorf("encoding extraction B for judge: %w", err)
	}

	fullPrompt := fmt.Sprintf(`%s

**%s Extraction:**
`+"```json\n%s\n```"+`

**%s Extraction:**
`+"```json\n%s\n```"+`

Please provide a detailed comparison following the specified JSON format.
`, base, modelAName, prettyA, modelBName, prettyB)

	result := ComparisonResult{
		ImagePath:   imagePath,
		JudgeInfo:   j.info,
		ModelAName:  modelAName,
		ModelBName:  modelBName,
		ExtractionA: extractionA,
		ExtractionB: extractionB,
	}

	start := time.Now()
	text, err := j.extractor.Chat(ctx, []llm.Message{{Role: "user", Content: fullPrompt}})
	result.ComparisonTime = time.Since(start).Seconds()
	result.Timestamp = time.Now()

	if err != nil {
		result.Comparison = map[string]any{}
		result.ComparisonError = err.Error()
		slog.Warn("eval: judge comparison failed",
			"image", imagePath,
			"judge", j.info.Model,
			"error", err)
		return result, nil
	}

	verdict, ok := llm.ParseJSONResponse(text)
	if !ok {
		verdict = map[string]any{"raw_response": text}
	}
	result.Comparison = verdict

	return result, nil
}
