package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/harun/ranya-voice/internal/config"
	"github.com/harun/ranya-voice/pkg/toolexecutor"
)

// LLMProvider is the interface for LLM providers
type LLMProvider interface {
	Call(ctx context.Context, request LLMRequest) (*LLMResponse, error)
	Provider() string
}

// LLMRequest represents a request to an LLM. System messages in Messages are
// mapped to each provider's system prompt mechanism.
type LLMRequest struct {
	Model       string
	Messages    []AgentMessage
	Tools       []toolexecutor.ToolSchema
	Temperature float64
	MaxTokens   int
}

// LLMResponse represents a response from an LLM
type LLMResponse struct {
	Content   string
	ToolCalls []toolexecutor.ToolCall
	Usage     *TokenUsage
}

// ProviderFactory creates LLM providers
type ProviderFactory struct{}

// NewProvider creates a provider for the configured backend.
func (f *ProviderFactory) NewProvider(cfg config.LLMConfig) (LLMProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm api key is required for provider %q", cfg.Provider)
	}

	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return NewOpenAIProvider(cfg.APIKey), nil
	case "anthropic":
		return NewAnthropicProvider(cfg.APIKey), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}

func systemText(messages []AgentMessage) string {
	parts := []string{}
	for _, msg := range messages {
		if msg.Role == RoleSystem && msg.Content != "" {
			parts = append(parts, msg.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}
