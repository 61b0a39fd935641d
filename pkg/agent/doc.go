// Package agent adapts chat-completion providers to the voice session.
//
// A Runner takes the session's ChatContext, asks the configured LLMProvider
// for a reply and executes any requested tools through toolexecutor, feeding
// each result back to the model until it answers in plain text. Retryable
// provider errors (rate limits, 5xx, timeouts) are retried with 1s, 2s, 4s
// backoff.
//
// Usage:
//
//	provider, _ := (&agent.ProviderFactory{}).NewProvider(cfg.LLM)
//	runner, _ := agent.NewRunner(agent.Config{
//		Provider:     provider,
//		ToolExecutor: exec,
//		Model:        cfg.LLM.Model,
//	})
//	chat := agent.NewChatContext(cfg.LLM.SystemPrompt)
//	chat.Append(agent.AgentMessage{Role: agent.RoleUser, Content: "hello"})
//	result, _ := runner.Run(ctx, chat, nil)
//	_ = result
package agent
