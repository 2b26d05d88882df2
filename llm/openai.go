package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"
)

// openAIExtractor talks to any OpenAI-compatible chat-completions endpoint
// with bearer authentication. One implementation covers openai, deepseek,
// glm and openrouter because they share the same wire protocol; only the
// base URL and credential differ.
type openAIExtractor struct {
	cfg    ModelConfig
	client *http.Client
}

func newOpenAIExtractor(cfg ModelConfig) (*openAIExtractor, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w (provider %s)", ErrAPIKeyRequired, cfg.Provider)
	}
	return &openAIExtractor{
		cfg:    cfg,
		client: &http.Client{Timeout: 120 * time.Second},
	}, nil
}

func (e *openAIExtractor) Config() ModelConfig { return e.cfg }

// oaiMessage carries either a plain string or typed content blocks.
type oaiMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type oaiContentPart struct {
	Type     string       `json:"type"` // "text" or "image_url"
	Text     string       `json:"text,omitempty"`
	ImageURL *oaiImageURL `json:"image_url,omitempty"`
}

type oaiImageURL struct {
	URL string `json:"url"`
}

type oaiChatRequest struct {
	Model       string       `json:"model"`
	Messages    []oaiMessage `json:"messages"`
	Temperature float64      `json:"temperature"`
	MaxTokens   int          `json:"max_tokens"`
}

type oaiChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (e *openAIExtractor) Chat(ctx context.Context, messages []Message, opts ...ChatOption) (string, error) {
	msgs := make([]oaiMessage, len(messages))
	for i, m := range messages {
		if len(m.Images) == 0 {
			msgs[i] = oaiMessage{Role: m.Role, Content: m.Content}
			continue
		}
		// Images attached through the neutral message shape carry no
		// source path, so the format cannot be derived; jpeg is what the
		// scanned datasets contain. Extract builds its own blocks with
		// the real format.
		parts := []oaiContentPart{{Type: "text", Text: m.Content}}
		for _, img := range m.Images {
			parts = append(parts, oaiContentPart{
				Type:     "image_url",
				ImageURL: &oaiImageURL{URL: "data:image/jpeg;base64," + img},
			})
		}
		msgs[i] = oaiMessage{Role: m.Role, Content: parts}
	}
	return e.chatCompletion(ctx, msgs, opts)
}

func (e *openAIExtractor) chatCompletion(ctx context.Context, msgs []oaiMessage, opts []ChatOption) (string, error) {
	temperature, maxTokens := e.cfg.resolveOptions(opts)

	body := oaiChatRequest{
		Model:       e.cfg.Model,
		Messages:    msgs,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	url := e.cfg.BaseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s API request failed: %w", e.cfg.Provider, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%s API request failed: reading response: %w", e.cfg.Provider, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s API error %d: %s", e.cfg.Provider, resp.StatusCode, string(respBody))
	}

	var chatResp oaiChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("decoding %s response: %w", e.cfg.Provider, err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("%s API returned no choices", e.cfg.Provider)
	}
	return chatResp.Choices[0].Message.Content, nil
}

func (e *openAIExtractor) Extract(ctx context.Context, imagePath, prompt string) (map[string]any, error) {
	if !e.cfg.VisionEnabled {
		return nil, fmt.Errorf("%w: %s", ErrVisionRequired, e.cfg.Model)
	}

	b64, err := encodeImage(imagePath)
	if err != nil {
		return nil, err
	}

	msgs := []oaiMessage{{
		Role: "user",
		Content: []oaiContentPart{
			{Type: "text", Text: prompt},
			{Type: "image_url", ImageURL: &oaiImageURL{
				URL: fmt.Sprintf("data:image/%s;base64,%s", imageFormat(imagePath), b64),
			}},
		},
	}}

	text, err := e.chatCompletion(ctx, msgs, nil)
	if err != nil {
		return nil, err
	}

	result, ok := ParseJSONResponse(text)
	if !ok {
		return RecoveryFailure(text), nil
	}
	return result, nil
}

// imageFormat derives the data-URI media subtype from the file extension,
// normalizing jpg to jpeg.
func imageFormat(path string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "jpg" {
		ext = "jpeg"
	}
	return ext
}
