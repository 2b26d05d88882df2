package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// generateTimeout bounds generation calls. Kept generous because local
	// Ollama may load the model weights on first request.
	generateTimeout = 120 * time.Second

	// healthTimeout bounds lightweight health and listing calls.
	healthTimeout = 5 * time.Second
)

// ollamaExtractor talks to Ollama's native chat API. Images travel as a
// list of base64 strings attached to the user message.
type ollamaExtractor struct {
	cfg    ModelConfig
	client *http.Client
	health *http.Client
}

func newOllamaExtractor(cfg ModelConfig) *ollamaExtractor {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	return &ollamaExtractor{
		cfg:    cfg,
		client: &http.Client{Timeout: generateTimeout},
		health: &http.Client{Timeout: healthTimeout},
	}
}

func (e *ollamaExtractor) Config() ModelConfig { return e.cfg }

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaChatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

func (e *ollamaExtractor) Chat(ctx context.Context, messages []Message, opts ...ChatOption) (string, error) {
	temperature, maxTokens := e.cfg.resolveOptions(opts)

	msgs := make([]ollamaMessage, len(messages))
	for i, m := range messages {
		msgs[i] = ollamaMessage{Role: m.Role, Content: m.Content, Images: m.Images}
	}

	body := ollamaChatRequest{
		Model:    e.cfg.Model,
		Messages: msgs,
		Stream:   false,
		Options:  ollamaOptions{Temperature: temperature, NumPredict: maxTokens},
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	url := e.cfg.BaseURL + "/api/chat"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("ollama API request failed: reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama API error %d: %s", resp.StatusCode, string(respBody))
	}

	var chatResp ollamaChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("decoding ollama response: %w", err)
	}
	return chatResp.Message.Content, nil
}

func (e *ollamaExtractor) Extract(ctx context.Context, imagePath, prompt string) (map[string]any, error) {
	if !e.cfg.VisionEnabled {
		return nil, fmt.Errorf("%w: %s", ErrVisionRequired, e.cfg.Model)
	}

	b64, err := encodeImage(imagePath)
	if err != nil {
		return nil, err
	}

	text, err := e.Chat(ctx, []Message{
		{Role: "user", Content: prompt, Images: []string{b64}},
	})
	if err != nil {
		return nil, err
	}

	result, ok := ParseJSONResponse(text)
	if !ok {
		return RecoveryFailure(text), nil
	}
	return result, nil
}

// VerifyConnection reports whether the Ollama server answers on its tags
// endpoint within the health timeout.
func (e *ollamaExtractor) VerifyConnection(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, "GET", e.cfg.BaseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := e.health.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// ListModels returns the model names available on the Ollama server.
func (e *ollamaExtractor) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", e.cfg.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := e.health.Do(req)
	if err != nil {
		return nil, fmt.Errorf("listing ollama models: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("listing ollama models: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama API error %d: %s", resp.StatusCode, string(respBody))
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.Unmarshal(respBody, &tags); err != nil {
		return nil, fmt.Errorf("decoding ollama tags response: %w", err)
	}

	names := make([]string, len(tags.Models))
	for i, m := range tags.Models {
		names[i] = m.Name
	}
	return names, nil
}
