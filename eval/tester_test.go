package eval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/chenhaodev/medical-ocr-llm-judge/llm"
	"github.com/chenhaodev/medical-ocr-llm-judge/prompts"
)

// fakeExtractor returns canned responses without any network activity.
type fakeExtractor struct {
	cfg llm.ModelConfig

	extractData map[string]any
	extractErr  error
	chatText    string
	chatErr     error

	lastPrompt string
	lastChat   []llm.Message
}

func (f *fakeExtractor) Extract(ctx context.Context, imagePath, prompt string) (map[string]any, error) {
	f.lastPrompt = prompt
	if f.extractErr != nil {
		return nil, f.extractErr
	}
	return f.extractData, nil
}

func (f *fakeExtractor) Chat(ctx context.Context, messages []llm.Message, opts ...llm.ChatOption) (string, error) {
	f.lastChat = messages
	if f.chatErr != nil {
		return "", f.chatErr
	}
	return f.chatText, nil
}

func (f *fakeExtractor) Config() llm.ModelConfig { return f.cfg }

func testLoader() *prompts.Loader { return prompts.NewLoader("") }

func TestTestSingleImageSuccess(t *testing.T) {
	fake := &fakeExtractor{
		cfg:         llm.ModelConfig{Provider: "ollama", Model: "qwen2.5vl"},
		extractData: map[string]any{"hospital_name": "City Hospital"},
	}
	tester := newTester(fake, testLoader())

	result, err := tester.TestSingleImage(context.Background(), "scans/10.jpg", "report")
	if err != nil {
		t.Fatalf("TestSingleImage: %v", err)
	}
	if !result.OK() {
		t.Fatalf("result not OK: %s", result.ExtractionError)
	}
	if result.ExtractedData["hospital_name"] != "City Hospital" {
		t.Errorf("extracted_data = %v", result.ExtractedData)
	}
	if result.ImagePath != "scans/10.jpg" || result.DocumentType != "report" {
		t.Errorf("record identity = %s/%s", result.ImagePath, result.DocumentType)
	}
	if result.ModelInfo.Provider != "ollama" || result.ModelInfo.Model != "qwen2.5vl" {
		t.Errorf("model_info = %+v", result.ModelInfo)
	}
	if result.ExtractionTime < 0 {
		t.Errorf("extraction_time = %f, want >= 0", result.ExtractionTime)
	}
	if result.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
	if result.Metrics != nil || result.GroundTruth != nil {
		t.Error("metrics and ground_truth must stay null")
	}
}

func TestTestSingleImagePromptSelection(t *testing.T) {
	fake := &fakeExtractor{
		cfg:         llm.ModelConfig{Provider: "ollama", Model: "m"},
		extractData: map[string]any{},
	}
	tester := newTester(fake, testLoader())

	if _, err := tester.TestSingleImage(context.Background(), "x.jpg", "medicine"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(fake.lastPrompt, "brand_name") {
		t.Errorf("medicine prompt missing medicine fields:\n%s", fake.lastPrompt)
	}

	if _, err := tester.TestSingleImage(context.Background(), "x.jpg", "report"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(fake.lastPrompt, "hospital_name") {
		t.Errorf("report prompt missing report fields:\n%s", fake.lastPrompt)
	}
}

func TestTestSingleImageUnknownDocumentType(t *testing.T) {
	fake := &fakeExtractor{cfg: llm.ModelConfig{Provider: "ollama", Model: "m"}}
	tester := newTester(fake, testLoader())

	_, err := tester.TestSingleImage(context.Background(), "x.jpg", "prescription")
	if !errors.Is(err, prompts.ErrUnknownDocumentType) {
		t.Fatalf("error = %v, want ErrUnknownDocumentType", err)
	}
}

func TestTestSingleImageTransportErrorCaptured(t *testing.T) {
	fake := &fakeExtractor{
		cfg:        llm.ModelConfig{Provider: "glm", Model: "glm-4v-plus"},
		extractErr: errors.New("glm API error 500: internal error"),
	}
	tester := newTester(fake, testLoader())

	result, err := tester.TestSingleImage(context.Background(), "x.jpg", "report")
	if err != nil {
		t.Fatalf("transport error escaped: %v", err)
	}
	if result.OK() {
		t.Fatal("result.OK() = true for failed extraction")
	}
	if !strings.Contains(result.ExtractionError, "glm API error 500") {
		t.Errorf("extraction_error = %q", result.ExtractionError)
	}
	if result.ExtractedData == nil || len(result.ExtractedData) != 0 {
		t.Errorf("extracted_data = %v, want empty non-nil map", result.ExtractedData)
	}
}

func TestTestSingleImageVisionErrorEscapes(t *testing.T) {
	fake := &fakeExtractor{
		cfg:        llm.ModelConfig{Provider: "deepseek", Model: "deepseek-chat"},
		extractErr: llm.ErrVisionRequired,
	}
	tester := newTester(fake, testLoader())

	_, err := tester.TestSingleImage(context.Background(), "x.jpg", "report")
	if !errors.Is(err, llm.ErrVisionRequired) {
		t.Fatalf("error = %v, want ErrVisionRequired", err)
	}
}

func TestTestSingleImageRecoverySentinelIsOK(t *testing.T) {
	// Unparseable model output is a payload, not a failure.
	fake := &fakeExtractor{
		cfg:         llm.ModelConfig{Provider: "ollama", Model: "m"},
		extractData: llm.RecoveryFailure("I cannot read this document."),
	}
	tester := newTester(fake, testLoader())

	result, err := tester.TestSingleImage(context.Background(), "x.jpg", "report")
	if err != nil {
		t.Fatal(err)
	}
	if !result.OK() {
		t.Error("sentinel payload must not set the error field")
	}
	if !llm.IsRecoveryFailure(result.ExtractedData) {
		t.Errorf("extracted_data = %v, want recovery sentinel", result.ExtractedData)
	}
}
