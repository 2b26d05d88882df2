package ocrjudge

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/chenhaodev/medical-ocr-llm-judge/llm"
)

// Default sampling parameters applied when a model entry omits them.
const (
	defaultTemperature = 0.1
	defaultMaxTokens   = 2000
)

// ModelSettings holds the per-model entries of the registry file. Pointer
// fields distinguish "absent" from an explicit zero.
type ModelSettings struct {
	Temperature   *float64 `mapstructure:"temperature" json:"temperature,omitempty"`
	MaxTokens     *int     `mapstructure:"max_tokens" json:"max_tokens,omitempty"`
	VisionEnabled bool     `mapstructure:"vision_enabled" json:"vision_enabled"`
}

// ProviderConfig is one provider entry of the registry: a shared base URL,
// an optional credential environment variable, and the models it hosts.
type ProviderConfig struct {
	BaseURL   string                   `mapstructure:"base_url" json:"base_url"`
	APIKeyEnv string                   `mapstructure:"api_key_env" json:"api_key_env,omitempty"`
	Models    map[string]ModelSettings `mapstructure:"models" json:"models"`
}

// Registry resolves (provider, model) pairs into flat model configurations.
// It is immutable after construction.
type Registry struct {
	providers map[string]ProviderConfig
}

// NewRegistry builds a registry from an in-memory provider map.
func NewRegistry(providers map[string]ProviderConfig) *Registry {
	return &Registry{providers: providers}
}

// LoadRegistry reads a registry file (llm_config.json or any format viper
// understands) from path.
func LoadRegistry(path string) (*Registry, error) {
	// Model names carry literal dots (qwen2.5vl, internvl3-78b); the
	// default "." key delimiter would split them into nested keys.
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrInvalidConfig, path, err)
	}

	var raw struct {
		Providers map[string]ProviderConfig `mapstructure:"providers"`
	}
	if err := v.Unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", ErrInvalidConfig, path, err)
	}
	if len(raw.Providers) == 0 {
		return nil, fmt.Errorf("%w: %s defines no providers", ErrInvalidConfig, path)
	}

	return &Registry{providers: raw.Providers}, nil
}

// DefaultRegistry returns the registry shipped with the harness: local
// Ollama vision models as DUTs, and the remote judge/baseline providers.
// Credentials come from the conventional environment variables at
// resolution time.
func DefaultRegistry() *Registry {
	visionModel := func() ModelSettings { return ModelSettings{VisionEnabled: true} }
	return NewRegistry(map[string]ProviderConfig{
		"ollama": {
			BaseURL: "http://localhost:11434",
			Models: map[string]ModelSettings{
				"qwen2.5vl":       visionModel(),
				"minicpm-v4.5":    visionModel(),
				"llama3.2-vision": visionModel(),
			},
		},
		"openai": {
			BaseURL:   "https://api.openai.com/v1",
			APIKeyEnv: "OPENAI_API_KEY",
			Models: map[string]ModelSettings{
				"gpt-4o": visionModel(),
			},
		},
		"deepseek": {
			BaseURL:   "https://api.deepseek.com/v1",
			APIKeyEnv: "DEEPSEEK_API_KEY",
			Models: map[string]ModelSettings{
				"deepseek-chat": {},
			},
		},
		"glm": {
			BaseURL:   "https://open.bigmodel.cn/api/paas/v4",
			APIKeyEnv: "GLM_API_KEY",
			Models: map[string]ModelSettings{
				"glm-4v-plus": visionModel(),
			},
		},
		"openrouter": {
			BaseURL:   "https://openrouter.ai/api/v1",
			APIKeyEnv: "OPENROUTER_API_KEY",
			Models: map[string]ModelSettings{
				"internvl3-78b": visionModel(),
			},
		},
	})
}

// ResolveModel produces the flat, immutable configuration for one
// (provider, model) pair. Unknown names fail synchronously, before any
// network activity. The provider's credential is read from its environment
// variable at resolution time.
func (r *Registry) ResolveModel(provider, model string) (llm.ModelConfig, error) {
	p, ok := r.providers[provider]
	if !ok {
		return llm.ModelConfig{}, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}

	m, ok := p.Models[model]
	if !ok {
		return llm.ModelConfig{}, fmt.Errorf("%w: %s for provider: %s", ErrUnknownModel, model, provider)
	}

	cfg := llm.ModelConfig{
		Provider:      provider,
		Model:         model,
		BaseURL:       p.BaseURL,
		Temperature:   defaultTemperature,
		MaxTokens:     defaultMaxTokens,
		VisionEnabled: m.VisionEnabled,
	}
	if m.Temperature != nil {
		cfg.Temperature = *m.Temperature
	}
	if m.MaxTokens != nil {
		cfg.MaxTokens = *m.MaxTokens
	}
	if p.APIKeyEnv != "" {
		cfg.APIKey = os.Getenv(p.APIKeyEnv)
	}

	return cfg, nil
}

// Providers returns the registered provider names.
func (r *Registry) Providers() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}
