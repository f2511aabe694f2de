// Package llm provides LLM client interfaces and implementations, and the
// assistant and translator built on top of them.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// CompletionRequest represents a completion request.
type CompletionRequest struct {
	Model       string
	System      string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float64
	// JSON asks the provider for a JSON object response where supported.
	JSON bool
}

// ChatMessage represents a chat message for LLM.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// CompletionResponse represents a completion response.
type CompletionResponse struct {
	Content    string
	Model      string
	TokensIn   int
	TokensOut  int
	StopReason string
	LatencyMs  int64
}

// Client is the interface for LLM providers.
type Client interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider name.
	Name() string
}

// Provider is the type of LLM provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// NewClient creates a new LLM client based on provider. An empty model
// selects the provider default.
func NewClient(provider Provider, apiKey, model string) (Client, error) {
	switch provider {
	case ProviderAnthropic:
		return NewAnthropicClient(apiKey, model)
	case ProviderOpenAI:
		return NewOpenAIClient(apiKey, model)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", provider)
	}
}

// ErrNoProvider is returned by a disabled client.
var ErrNoProvider = errors.New("no LLM provider configured")

type disabledClient struct{}

// Disabled returns a client that fails every call with ErrNoProvider. The
// server runs with it when no API key is configured.
func Disabled() Client {
	return disabledClient{}
}

func (disabledClient) Name() string { return "disabled" }

func (disabledClient) Complete(context.Context, *CompletionRequest) (*CompletionResponse, error) {
	return nil, ErrNoProvider
}

const defaultMaxTokens = 1024
