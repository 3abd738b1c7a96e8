// Package llm provides the opaque language-model call surface used by the
// intent normalizer and the insight generator: structured text in,
// structured text out. Nothing downstream of this package may depend on
// model behavior beyond the JSON contract.
package llm

import "context"

// LLMClient is the classification surface. Classify sends a prompt with a
// system message and returns the raw model text, which callers parse with
// ParseJSONResponse under strict schema validation.
// Use this interface for dependency injection to enable mocking in tests.
type LLMClient interface {
	Classify(ctx context.Context, prompt string, systemMessage string) (string, error)

	// GetModel returns the configured model name.
	GetModel() string

	// GetEndpoint returns the configured endpoint.
	GetEndpoint() string
}

// Ensure implementations satisfy LLMClient at compile time.
var (
	_ LLMClient = (*OpenAIClient)(nil)
	_ LLMClient = (*AnthropicClient)(nil)
	_ LLMClient = (*MockClient)(nil)
)
