package llm

import (
	"fmt"
	"strings"

	"github.com/veritclaim/triage/internal/model"
)

// NewProvider creates a new LLM provider based on configuration
func NewProvider(config Config) (Provider, error) {
	provider := strings.ToLower(config.Provider)

	switch provider {
	case "openai":
		return NewOpenAIProvider(config)

	case "anthropic", "claude":
		return NewAnthropicProvider(config)

	case "ollama":
		return NewOllamaProvider(config)

	case "":
		// No provider configured - return nil (LLM drafting disabled)
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, anthropic, ollama)", config.Provider)
	}
}

// ConfigFromModel converts model.DraftingConfig to llm.Config. Strict
// grounding is not a knob: every drafted appeal is checked.
func ConfigFromModel(modelConfig model.DraftingConfig) Config {
	cfg := Config{
		Provider:        modelConfig.Provider,
		Model:           modelConfig.Model,
		APIKey:          modelConfig.APIKey,
		BaseURL:         modelConfig.BaseURL,
		Timeout:         modelConfig.Timeout,
		StrictGrounding: true,
		MaxTokens:       modelConfig.MaxTokens,
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1500
	}
	return cfg
}
