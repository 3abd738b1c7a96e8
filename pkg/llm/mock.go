package llm

import (
	"context"
)

// MockClient is a configurable mock for testing LLM-dependent stages.
// Set ClassifyFunc to control behavior in tests.
type MockClient struct {
	// ClassifyFunc is called when Classify is invoked.
	// If nil, returns "{}" and nil error.
	ClassifyFunc func(ctx context.Context, prompt string, systemMessage string) (string, error)

	// Model is returned by GetModel. Defaults to "mock-model".
	Model string

	// Endpoint is returned by GetEndpoint. Defaults to "http://mock-endpoint".
	Endpoint string

	// ClassifyCalls counts invocations for verification.
	ClassifyCalls int
}

// NewMockClient creates a new mock with sensible defaults.
func NewMockClient() *MockClient {
	return &MockClient{
		Model:    "mock-model",
		Endpoint: "http://mock-endpoint",
	}
}

// Classify implements LLMClient.
func (m *MockClient) Classify(ctx context.Context, prompt string, systemMessage string) (string, error) {
	m.ClassifyCalls++
	if m.ClassifyFunc != nil {
		return m.ClassifyFunc(ctx, prompt, systemMessage)
	}
	return "{}", nil
}

// GetModel implements LLMClient.
func (m *MockClient) GetModel() string {
	if m.Model == "" {
		return "mock-model"
	}
	return m.Model
}

// GetEndpoint implements LLMClient.
func (m *MockClient) GetEndpoint() string {
	if m.Endpoint == "" {
		return "http://mock-endpoint"
	}
	return m.Endpoint
}

// Reset clears call tracking.
func (m *MockClient) Reset() {
	m.ClassifyCalls = 0
}
