package ocrjudge

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultRegistryResolve(t *testing.T) {
	r := DefaultRegistry()

	cfg, err := r.ResolveModel("ollama", "qwen2.5vl")
	if err != nil {
		t.Fatalf("ResolveModel: %v", err)
	}
	if cfg.Provider != "ollama" || cfg.Model != "qwen2.5vl" {
		t.Errorf("identity = %s/%s", cfg.Provider, cfg.Model)
	}
	if cfg.BaseURL != "http://localhost:11434" {
		t.Errorf("base URL = %q", cfg.BaseURL)
	}
	if cfg.Temperature != 0.1 {
		t.Errorf("temperature = %v, want default 0.1", cfg.Temperature)
	}
	if cfg.MaxTokens != 2000 {
		t.Errorf("max tokens = %d, want default 2000", cfg.MaxTokens)
	}
	if !cfg.VisionEnabled {
		t.Error("qwen2.5vl should be vision-enabled")
	}

	judge, err := r.ResolveModel("deepseek", "deepseek-chat")
	if err != nil {
		t.Fatal(err)
	}
	if judge.VisionEnabled {
		t.Error("deepseek-chat should not be vision-enabled")
	}
}

func TestResolveModelUnknownNames(t *testing.T) {
	r := DefaultRegistry()

	if _, err := r.ResolveModel("nonexistent", "m"); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("error = %v, want ErrUnknownProvider", err)
	}
	if _, err := r.ResolveModel("ollama", "nonexistent"); !errors.Is(err, ErrUnknownModel) {
		t.Errorf("error = %v, want ErrUnknownModel", err)
	}
}

func TestResolveModelReadsAPIKeyEnv(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "sk-test-123")

	cfg, err := DefaultRegistry().ResolveModel("deepseek", "deepseek-chat")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.APIKey != "sk-test-123" {
		t.Errorf("APIKey = %q", cfg.APIKey)
	}
}

func TestResolveModelExplicitSettingsOverrideDefaults(t *testing.T) {
	temp := 0.0
	tokens := 512
	r := NewRegistry(map[string]ProviderConfig{
		"ollama": {
			BaseURL: "http://localhost:11434",
			Models: map[string]ModelSettings{
				"m": {Temperature: &temp, MaxTokens: &tokens, VisionEnabled: true},
			},
		},
	})

	cfg, err := r.ResolveModel("ollama", "m")
	if err != nil {
		t.Fatal(err)
	}
	// An explicit zero temperature is honored, not replaced by the default.
	if cfg.Temperature != 0.0 {
		t.Errorf("temperature = %v, want explicit 0", cfg.Temperature)
	}
	if cfg.MaxTokens != 512 {
		t.Errorf("max tokens = %d, want 512", cfg.MaxTokens)
	}
}

func TestLoadRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "llm_config.json")
	content := `{
  "providers": {
    "ollama": {
      "base_url": "http://gpu-box:11434",
      "models": {
        "qwen2.5vl": {"vision_enabled": true, "max_tokens": 4000},
        "minicpm-v4.5": {"vision_enabled": true}
      }
    }
  }
}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	r, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}

	cfg, err := r.ResolveModel("ollama", "qwen2.5vl")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BaseURL != "http://gpu-box:11434" {
		t.Errorf("base URL = %q", cfg.BaseURL)
	}
	if cfg.MaxTokens != 4000 {
		t.Errorf("max tokens = %d, want 4000", cfg.MaxTokens)
	}
	if cfg.Temperature != 0.1 {
		t.Errorf("temperature = %v, want default", cfg.Temperature)
	}

	// Dotted model names must survive file decoding intact.
	if _, err := r.ResolveModel("ollama", "minicpm-v4.5"); err != nil {
		t.Errorf("ResolveModel(minicpm-v4.5): %v", err)
	}
}

func TestLoadRegistryInvalid(t *testing.T) {
	if _, err := LoadRegistry(filepath.Join(t.TempDir(), "missing.json")); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("missing file: error = %v, want ErrInvalidConfig", err)
	}

	empty := filepath.Join(t.TempDir(), "empty.json")
	if err := os.WriteFile(empty, []byte(`{}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRegistry(empty); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("no providers: error = %v, want ErrInvalidConfig", err)
	}
}
