// Package llm implements the vision-LLM extractor abstraction used by the
// OCR evaluation harness. An Extractor turns (image, instruction text) into
// a structured JSON payload via a hosted vision-language model. Two wire
// variants exist: the Ollama native chat API for local models, and the
// OpenAI-compatible chat-completions API which covers every remote provider
// in the registry (openai, deepseek, glm, openrouter).
package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
)

var (
	// ErrUnknownProvider is returned by NewExtractor for an unrecognized
	// provider identifier.
	ErrUnknownProvider = errors.New("llm: unknown provider")

	// ErrProviderNotSpecified is returned when the provider field is empty.
	ErrProviderNotSpecified = errors.New("llm: provider not specified")

	// ErrVisionRequired is returned by Extract when the configured model
	// does not declare vision capability. The check runs before any image
	// or network I/O.
	ErrVisionRequired = errors.New("llm: model does not support vision")

	// ErrAPIKeyRequired is returned when an OpenAI-compatible provider is
	// configured without a bearer credential.
	ErrAPIKeyRequired = errors.New("llm: API key is required")
)

// ModelConfig is the flat, resolved configuration for one (provider, model)
// pair. It is immutable once constructed; the caller that builds an
// Extractor owns it.
type ModelConfig struct {
	Provider      string  `json:"provider"`
	Model         string  `json:"model"`
	BaseURL       string  `json:"base_url"`
	Temperature   float64 `json:"temperature"`
	MaxTokens     int     `json:"max_tokens"`
	VisionEnabled bool    `json:"vision_enabled"`
	APIKey        string  `json:"-"`
}

// Message is a single chat message. Images carries base64-encoded image
// payloads; how they travel on the wire is variant-specific (a side list
// for Ollama, typed data-URI content blocks for OpenAI-compatible APIs).
type Message struct {
	Role    string
	Content string
	Images  []string
}

// ChatOptions holds per-call overrides for sampling parameters. Unset
// fields fall back to the ModelConfig values.
type ChatOptions struct {
	Temperature *float64
	MaxTokens   *int
}

// ChatOption mutates ChatOptions.
type ChatOption func(*ChatOptions)

// WithTemperature overrides the configured sampling temperature for one call.
func WithTemperature(t float64) ChatOption {
	return func(o *ChatOptions) { o.Temperature = &t }
}

// WithMaxTokens overrides the configured output token limit for one call.
func WithMaxTokens(n int) ChatOption {
	return func(o *ChatOptions) { o.MaxTokens = &n }
}

func (c ModelConfig) resolveOptions(opts []ChatOption) (temperature float64, maxTokens int) {
	var o ChatOptions
	for _, opt := range opts {
		opt(&o)
	}
	temperature = c.Temperature
	if o.Temperature != nil {
		temperature = *o.Temperature
	}
	maxTokens = c.MaxTokens
	if o.MaxTokens != nil {
		maxTokens = *o.MaxTokens
	}
	return temperature, maxTokens
}

// Extractor is the polymorphic capability over one vision-language model:
// send a chat request, or extract structured data from an image.
type Extractor interface {
	// Extract reads the image, embeds it in a single user message with the
	// prompt, dispatches through Chat and recovers a JSON object from the
	// response. An unparseable response is a normal outcome: the returned
	// payload is then the RecoveryFailure sentinel and the error is nil.
	// Only capability and I/O errors are returned as errors.
	Extract(ctx context.Context, imagePath, prompt string) (map[string]any, error)

	// Chat sends one synchronous request to the provider's chat endpoint
	// and returns the raw response text. Transport failures (connection
	// refused, timeout, non-2xx status) return a provider-tagged error;
	// no retries are attempted.
	Chat(ctx context.Context, messages []Message, opts ...ChatOption) (string, error)

	// Config returns the resolved model configuration.
	Config() ModelConfig
}

// NewExtractor selects the wire variant for the given provider. The set of
// variants is closed: "ollama" uses the native Ollama API, and the four
// remote providers share the OpenAI-compatible protocol.
func NewExtractor(cfg ModelConfig) (Extractor, error) {
	switch cfg.Provider {
	case "ollama":
		return newOllamaExtractor(cfg), nil
	case "openai", "deepseek", "glm", "openrouter":
		return newOpenAIExtractor(cfg)
	case "":
		return nil, ErrProviderNotSpecified
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}
}

// encodeImage reads the file at path and returns its base64 encoding.
func encodeImage(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading image: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
