package eval

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/chenhaodev/medical-ocr-llm-judge/llm"
	"github.com/chenhaodev/medical-ocr-llm-judge/prompts"
)

// Tester drives one extraction call for one image and document type, with
// timing and error capture.
type Tester struct {
	info      ModelInfo
	extractor llm.Extractor
	prompts   *prompts.Loader
}

// NewTester builds a Tester for the given resolved model configuration.
func NewTester(cfg llm.ModelConfig, loader *prompts.Loader) (*Tester, error) {
	extractor, err := llm.NewExtractor(cfg)
	if err != nil {
		return nil, err
	}
	return newTester(extractor, loader), nil
}

// newTester wires an already-built extractor. Used by tests to inject
// extractors pointed at fake servers.
func newTester(extractor llm.Extractor, loader *prompts.Loader) *Tester {
	cfg := extractor.Config()
	return &Tester{
		info:      ModelInfo{Provider: cfg.Provider, Model: cfg.Model},
		extractor: extractor,
		prompts:   loader,
	}
}

// ModelInfo returns the identity of the model under test.
func (t *Tester) ModelInfo() ModelInfo { return t.info }

// Extractor returns the underlying extractor.
func (t *Tester) Extractor() llm.Extractor { return t.extractor }

// TestSingleImage runs one extraction and always produces a result record.
// Transport failures are converted into the record's error string; only
// configuration errors (unknown document type) and capability errors
// (vision disabled) escape as returned errors, and they do so before or
// without any network activity being recorded as a result.
func (t *Tester) TestSingleImage(ctx context.Context, imagePath, documentType string) (ExtractionResult, error) {
	prompt, err := t.prompts.OCRExtractionPrompt(documentType)
	if err != nil {
		return ExtractionResult{}, err
	}

	start := time.Now()
	data, err := t.extractor.Extract(ctx, imagePath, prompt)
	elapsed := time.Since(start).Seconds()

	result := ExtractionResult{
		ImagePath:      imagePath,
		DocumentType:   documentType,
		ModelInfo:      t.info,
		ExtractionTime: elapsed,
		ExtractedData:  data,
		Timestamp:      time.Now(),
	}

	if err != nil {
		if errors.Is(err, llm.ErrVisionRequired) {
			return ExtractionResult{}, err
		}
		result.ExtractedData = map[string]any{}
		result.ExtractionError = err.Error()
		slog.Warn("eval: extraction failed",
			"image", imagePath,
			"provider", t.info.Provider,
			"model", t.info.Model,
			"error", err)
	}

	return result, nil
}
