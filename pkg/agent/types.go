package agent

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/harun/ranya-voice/pkg/toolexecutor"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ErrMaxToolTurns is returned when the model keeps requesting tools past the
// configured turn limit.
var ErrMaxToolTurns = errors.New("max tool turns exceeded")

// AgentMessage is one entry of a conversation.
type AgentMessage struct {
	Role       string                  `json:"role"`
	Content    string                  `json:"content"`
	ToolCalls  []toolexecutor.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string                  `json:"tool_call_id,omitempty"`
	IsError    bool                    `json:"is_error,omitempty"`
}

// TokenUsage tracks token consumption
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add accumulates other into u.
func (u *TokenUsage) Add(other *TokenUsage) {
	if u == nil || other == nil {
		return
	}
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// TurnResult is the outcome of one user turn.
type TurnResult struct {
	Response    string                    `json:"response"`
	ToolCalls   []toolexecutor.ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []toolexecutor.ToolResult `json:"tool_results,omitempty"`
	Usage       TokenUsage                `json:"usage"`
	Rounds      int                       `json:"rounds"`
}

// ChatContext is the ordered conversation history of a session.
type ChatContext struct {
	mu       sync.RWMutex
	messages []AgentMessage
}

// NewChatContext returns a context seeded with a single system message.
// An empty prompt yields an empty context.
func NewChatContext(systemPrompt string) *ChatContext {
	c := &ChatContext{}
	if systemPrompt != "" {
		c.messages = append(c.messages, AgentMessage{Role: RoleSystem, Content: systemPrompt})
	}
	return c
}

// Append adds messages in order.
func (c *ChatContext) Append(msgs ...AgentMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msgs...)
}

// Messages returns a copy of the history.
func (c *ChatContext) Messages() []AgentMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]AgentMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages.
func (c *ChatContext) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// SystemPrompt returns the content of the first system message, if any.
func (c *ChatContext) SystemPrompt() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, m := range c.messages {
		if m.Role == RoleSystem {
			return m.Content
		}
	}
	return ""
}

// IsRetryableError checks if an error is retryable
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	retryablePatterns := []string{
		"econnreset",
		"etimedout",
		"connection reset",
		"timeout",
		"429",
		"rate limit",
		"500",
		"502",
		"503",
		"504",
		"overloaded",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// backoffDelay returns the wait before retry attempt n (0-based): 1s, 2s, 4s.
func backoffDelay(attempt int) time.Duration {
	return time.Duration(1<<attempt) * time.Second
}
