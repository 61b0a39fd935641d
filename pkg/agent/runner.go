package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/harun/ranya-voice/internal/observability"
	"github.com/harun/ranya-voice/internal/tracing"
	"github.com/harun/ranya-voice/pkg/toolexecutor"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultMaxToolTurns = 10
	defaultMaxRetries   = 3
)

// Config holds runner configuration
type Config struct {
	Provider     LLMProvider
	ToolExecutor *toolexecutor.ToolExecutor
	ToolPolicy   *toolexecutor.ToolPolicy
	Model        string
	Temperature  float64
	MaxTokens    int
	MaxToolTurns int
	MaxRetries   int
	ToolTimeout  time.Duration
	Logger       zerolog.Logger
}

// Runner drives one user turn through the model, executing requested tools
// until the model answers in plain text.
type Runner struct {
	provider     LLMProvider
	toolExecutor *toolexecutor.ToolExecutor
	toolPolicy   *toolexecutor.ToolPolicy
	model        string
	temperature  float64
	maxTokens    int
	maxToolTurns int
	maxRetries   int
	toolTimeout  time.Duration
	logger       zerolog.Logger

	backoff func(attempt int) time.Duration
}

// NewRunner creates a new agent runner
func NewRunner(cfg Config) (*Runner, error) {
	observability.EnsureRegistered()

	if cfg.Provider == nil {
		return nil, fmt.Errorf("llm provider is required")
	}
	if cfg.ToolExecutor == nil {
		return nil, fmt.Errorf("tool executor is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	r := &Runner{
		provider:     cfg.Provider,
		toolExecutor: cfg.ToolExecutor,
		toolPolicy:   cfg.ToolPolicy,
		model:        cfg.Model,
		temperature:  cfg.Temperature,
		maxTokens:    cfg.MaxTokens,
		maxToolTurns: cfg.MaxToolTurns,
		maxRetries:   cfg.MaxRetries,
		toolTimeout:  cfg.ToolTimeout,
		logger:       cfg.Logger,
		backoff:      backoffDelay,
	}
	if r.maxToolTurns <= 0 {
		r.maxToolTurns = defaultMaxToolTurns
	}
	if r.maxRetries <= 0 {
		r.maxRetries = defaultMaxRetries
	}
	return r, nil
}

// Provider returns the name of the underlying LLM provider.
func (r *Runner) Provider() string {
	return r.provider.Provider()
}

// Run appends the model's reply, and every tool round leading to it, to chat.
// Tools execute sequentially in the order the model requested them.
func (r *Runner) Run(ctx context.Context, chat *ChatContext, execCtx *toolexecutor.ExecutionContext) (result TurnResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "ranya.agent", "agent.turn",
		attribute.String("provider", r.provider.Provider()),
		attribute.String("model", r.model),
	)
	defer func() { tracing.EndSpan(span, err) }()

	logger := tracing.LoggerFromContext(ctx, r.logger)

	if execCtx == nil {
		execCtx = &toolexecutor.ExecutionContext{}
	}
	if execCtx.Timeout == 0 {
		execCtx.Timeout = r.toolTimeout
	}
	if execCtx.ToolPolicy == nil {
		execCtx.ToolPolicy = r.toolPolicy
	}

	tools := r.toolExecutor.Schemas(execCtx.ToolPolicy)

	for round := 1; round <= r.maxToolTurns; round++ {
		result.Rounds = round

		response, err := r.callLLMWithRetry(ctx, chat.Messages(), tools)
		if err != nil {
			return result, err
		}
		result.Usage.Add(response.Usage)

		if len(response.ToolCalls) == 0 {
			chat.Append(AgentMessage{Role: RoleAssistant, Content: response.Content})
			result.Response = response.Content
			return result, nil
		}

		if err := assignCallIDs(response.ToolCalls); err != nil {
			return result, err
		}
		chat.Append(AgentMessage{
			Role:      RoleAssistant,
			Content:   response.Content,
			ToolCalls: response.ToolCalls,
		})

		for _, call := range response.ToolCalls {
			logger.Debug().Str("tool", call.Name).Str("call_id", call.ID).Msg("Executing tool call")

			toolResult := r.toolExecutor.ExecuteCall(ctx, call, execCtx)
			result.ToolCalls = append(result.ToolCalls, call)
			result.ToolResults = append(result.ToolResults, toolResult)

			chat.Append(toolMessage(call, toolResult))
		}
	}

	logger.Warn().Int("max_tool_turns", r.maxToolTurns).Msg("Model did not finish within tool turn limit")
	return result, fmt.Errorf("%w (%d)", ErrMaxToolTurns, r.maxToolTurns)
}

// assignCallIDs gives an ID to every tool call the provider left without one,
// so each tool result can be paired with its call.
func assignCallIDs(calls []toolexecutor.ToolCall) error {
	for i := range calls {
		if calls[i].ID != "" {
			continue
		}
		id, err := gonanoid.New()
		if err != nil {
			return fmt.Errorf("failed to generate tool call id: %w", err)
		}
		calls[i].ID = "call_" + id
	}
	return nil
}

func toolMessage(call toolexecutor.ToolCall, result toolexecutor.ToolResult) AgentMessage {
	msg := AgentMessage{Role: RoleTool, ToolCallID: call.ID}
	if !result.Success {
		msg.Content = "Error: " + result.Error
		msg.IsError = true
		return msg
	}
	if result.Output != nil {
		msg.Content = fmt.Sprintf("%v", result.Output)
	}
	return msg
}

// callLLMWithRetry calls LLM with exponential backoff retry
func (r *Runner) callLLMWithRetry(ctx context.Context, messages []AgentMessage, tools []toolexecutor.ToolSchema) (*LLMResponse, error) {
	var lastErr error

	for attempt := 0; attempt < r.maxRetries; attempt++ {
		response, err := r.callLLM(ctx, messages, tools)
		if err == nil {
			return response, nil
		}

		lastErr = err

		if !IsRetryableError(err) {
			return nil, fmt.Errorf("llm call failed: %w", err)
		}

		if attempt == r.maxRetries-1 {
			break
		}

		delay := r.backoff(attempt)
		r.logger.Info().
			Err(err).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Msg("Retrying after error")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("max retries (%d) exceeded: %w", r.maxRetries, lastErr)
}

// callLLM makes a single LLM API call
func (r *Runner) callLLM(ctx context.Context, messages []AgentMessage, tools []toolexecutor.ToolSchema) (*LLMResponse, error) {
	start := time.Now()
	response, err := r.provider.Call(ctx, LLMRequest{
		Model:       r.model,
		Messages:    messages,
		Tools:       tools,
		Temperature: r.temperature,
		MaxTokens:   r.maxTokens,
	})
	observability.RecordLLMCall(r.provider.Provider(), time.Since(start), err == nil)
	if err != nil {
		return nil, err
	}
	if response == nil {
		return nil, fmt.Errorf("provider %s returned no response", r.provider.Provider())
	}
	return response, nil
}
