package agent

import (
	"context"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/harun/ranya-voice/internal/config"
	"github.com/harun/ranya-voice/pkg/toolexecutor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func toolRoundMessages() []AgentMessage {
	return []AgentMessage{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "weather and docs"},
		{Role: RoleAssistant, ToolCalls: []toolexecutor.ToolCall{
			{ID: "a", Name: "get_weather", Arguments: map[string]interface{}{"location": "Paris"}},
			{ID: "b", Name: "search_documents", Arguments: map[string]interface{}{"query": "invoice"}},
		}},
		{Role: RoleTool, ToolCallID: "a", Content: "Weather in Paris: 72°F, sunny"},
		{Role: RoleTool, ToolCallID: "b", Content: "Found documents matching 'invoice'"},
		{Role: RoleAssistant, Content: "done"},
	}
}

func TestProviderFactory(t *testing.T) {
	f := &ProviderFactory{}

	p, err := f.NewProvider(config.LLMConfig{Provider: "openai", APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Provider())

	p, err = f.NewProvider(config.LLMConfig{Provider: "Anthropic", APIKey: "sk-ant-test"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", p.Provider())

	_, err = f.NewProvider(config.LLMConfig{Provider: "gemini", APIKey: "k"})
	assert.Error(t, err)

	_, err = f.NewProvider(config.LLMConfig{Provider: "openai"})
	assert.Error(t, err)
}

func TestToAnthropicMessagesGroupsToolResults(t *testing.T) {
	msgs := toAnthropicMessages(toolRoundMessages())

	// user, assistant(tool_use x2), user(tool_result x2), assistant
	require.Len(t, msgs, 4)
	assert.Equal(t, anthropic.MessageParamRoleUser, msgs[0].Role)
	assert.Equal(t, anthropic.MessageParamRoleAssistant, msgs[1].Role)
	assert.Len(t, msgs[1].Content, 2)
	assert.Equal(t, anthropic.MessageParamRoleUser, msgs[2].Role)
	assert.Len(t, msgs[2].Content, 2)
	assert.Equal(t, anthropic.MessageParamRoleAssistant, msgs[3].Role)
}

func TestToOpenAIMessages(t *testing.T) {
	msgs, err := toOpenAIMessages(toolRoundMessages())
	require.NoError(t, err)
	assert.Len(t, msgs, 6)
}

func TestSystemText(t *testing.T) {
	assert.Equal(t, "sys", systemText(toolRoundMessages()))
	assert.Equal(t, "", systemText([]AgentMessage{{Role: RoleUser, Content: "x"}}))
}

func TestToolConversions(t *testing.T) {
	te := toolexecutor.New()
	require.NoError(t, te.RegisterTool(toolexecutor.ToolDefinition{
		Name:        "get_weather",
		Description: "Get weather",
		Parameters: []toolexecutor.ToolParameter{
			{Name: "location", Type: "string", Description: "City name", Required: true},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			return "ok", nil
		},
	}))
	schemas := te.Schemas(nil)

	oa := toOpenAITools(schemas)
	require.Len(t, oa, 1)
	assert.Equal(t, "get_weather", oa[0].Function.Name)

	an := toAnthropicTools(schemas)
	require.Len(t, an, 1)
	require.NotNil(t, an[0].OfTool)
	assert.Equal(t, []string{"location"}, an[0].OfTool.InputSchema.Required)
}
