package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/servicelens-inc/servicelens-engine/pkg/config"
)

// NewFromConfig creates the LLM client selected by configuration.
func NewFromConfig(cfg *config.LLMConfig, logger *zap.Logger) (LLMClient, error) {
	clientCfg := &Config{
		Endpoint:    cfg.Endpoint,
		Model:       cfg.Model,
		APIKey:      cfg.APIKey,
		Temperature: cfg.Temperature,
	}

	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(clientCfg, logger)
	case "anthropic":
		return NewAnthropicClient(clientCfg, logger)
	}
	return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
}
