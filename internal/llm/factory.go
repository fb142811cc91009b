package llm

import (
	"fmt"

	"finqa/internal/config"
)

// NewFromConfig creates the client for the named provider. An empty name
// falls back to the configured default provider.
func NewFromConfig(cfg config.Config, provider string) (Client, error) {
	if provider == "" {
		provider = cfg.LLMProvider
	}
	switch provider {
	case ProviderOpenAI:
		return NewOpenAIClient(cfg.OpenAIKey, cfg.OpenAIModel)
	case ProviderGroq:
		return NewGroqClient(cfg.GroqKey, cfg.GroqModel)
	case "":
		return nil, fmt.Errorf("no LLM provider configured (set LLM_PROVIDER)")
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", provider)
	}
}
