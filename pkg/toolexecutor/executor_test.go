package toolexecutor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolExecutor_RegisterTool(t *testing.T) {
	te := New()

	def := ToolDefinition{
		Name:        "test_tool",
		Description: "A test tool",
		Parameters: []ToolParameter{
			{
				Name:        "input",
				Type:        "string",
				Description: "Input parameter",
				Required:    true,
			},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			return "result", nil
		},
	}

	err := te.RegisterTool(def)
	assert.NoError(t, err)

	// Verify tool is registered
	tool := te.GetTool("test_tool")
	assert.NotNil(t, tool)
	assert.Equal(t, "test_tool", tool.Name)
}

func TestToolExecutor_RegisterTool_InvalidDefinition(t *testing.T) {
	te := New()

	tests := []struct {
		name string
		def  ToolDefinition
	}{
		{
			name: "empty name",
			def: ToolDefinition{
				Description: "Test",
				Handler:     func(ctx context.Context, params map[string]interface{}) (interface{}, error) { return nil, nil },
			},
		},
		{
			name: "empty description",
			def: ToolDefinition{
				Name:    "test",
				Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) { return nil, nil },
			},
		},
		{
			name: "nil handler",
			def: ToolDefinition{
				Name:        "test",
				Description: "Test",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := te.RegisterTool(tt.def)
			assert.Error(t, err)
		})
	}
}

func TestToolExecutor_Execute_Success(t *testing.T) {
	te := New()

	def := ToolDefinition{
		Name:        "echo",
		Description: "Echo tool",
		Parameters: []ToolParameter{
			{
				Name:        "message",
				Type:        "string",
				Description: "Message to echo",
				Required:    true,
			},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			return params["message"], nil
		},
	}

	err := te.RegisterTool(def)
	require.NoError(t, err)

	result := te.Execute(context.Background(), "echo", map[string]interface{}{
		"message": "Hello, World!",
	}, nil)

	assert.True(t, result.Success)
	assert.Equal(t, "Hello, World!", result.Output)
	assert.Empty(t, result.Error)
}

func TestToolExecutor_Execute_ToolNotFound(t *testing.T) {
	te := New()

	result := te.Execute(context.Background(), "nonexistent", map[string]interface{}{}, nil)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "tool not found")
}

func TestToolExecutor_Execute_ValidationError(t *testing.T) {
	te := New()

	def := ToolDefinition{
		Name:        "test",
		Description: "Test tool",
		Parameters: []ToolParameter{
			{
				Name:        "required_param",
				Type:        "string",
				Description: "Required parameter",
				Required:    true,
			},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			return nil, nil
		},
	}

	err := te.RegisterTool(def)
	require.NoError(t, err)

	// Execute without required parameter
	result := te.Execute(context.Background(), "test", map[string]interface{}{}, nil)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "validation")
}

func TestToolExecutor_Execute_HandlerError(t *testing.T) {
	te := New()

	expectedErr := errors.New("handler error")
	def := ToolDefinition{
		Name:        "failing_tool",
		Description: "A tool that fails",
		Parameters:  []ToolParameter{},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			return nil, expectedErr
		},
	}

	err := te.RegisterTool(def)
	require.NoError(t, err)

	result := te.Execute(context.Background(), "failing_tool", map[string]interface{}{}, nil)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "handler error")
}

func TestToolExecutor_Execute_Timeout(t *testing.T) {
	te := New()

	def := ToolDefinition{
		Name:        "slow_tool",
		Description: "A slow tool",
		Parameters:  []ToolParameter{},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			select {
			case <-time.After(2 * time.Second):
				return "done", nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}

	err := te.RegisterTool(def)
	require.NoError(t, err)

	execCtx := &ExecutionContext{
		Timeout: 100 * time.Millisecond,
	}

	result := te.Execute(context.Background(), "slow_tool", map[string]interface{}{}, execCtx)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "timeout")
	assert.Equal(t, true, result.Metadata["timeout"])
}

func TestToolExecutor_Execute_OutputTruncation(t *testing.T) {
	te := New()

	// Create large output (> 10KB)
	largeOutput := make([]byte, 15*1024)
	for i := range largeOutput {
		largeOutput[i] = 'A'
	}

	def := ToolDefinition{
		Name:        "large_output",
		Description: "Tool with large output",
		Parameters:  []ToolParameter{},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			return string(largeOutput), nil
		},
	}

	err := te.RegisterTool(def)
	require.NoError(t, err)

	result := te.Execute(context.Background(), "large_output", map[string]interface{}{}, nil)

	assert.True(t, result.Success)
	assert.True(t, result.Truncated)
	assert.Contains(t, result.Output.(string), "truncated")
}

func TestToolExecutor_ListTools(t *testing.T) {
	te := New()

	tools := []string{"tool1", "tool2", "tool3"}
	for _, name := range tools {
		def := ToolDefinition{
			Name:        name,
			Description: "Test tool",
			Parameters:  []ToolParameter{},
			Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				return nil, nil
			},
		}
		err := te.RegisterTool(def)
		require.NoError(t, err)
	}

	list := te.ListTools()
	assert.Equal(t, tools, list)
}

func TestToolExecutor_UnregisterTool(t *testing.T) {
	te := New()

	def := ToolDefinition{
		Name:        "test_tool",
		Description: "Test tool",
		Parameters:  []ToolParameter{},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			return nil, nil
		},
	}

	err := te.RegisterTool(def)
	require.NoError(t, err)

	// Verify tool exists
	assert.NotNil(t, te.GetTool("test_tool"))

	// Unregister
	te.UnregisterTool("test_tool")

	// Verify tool is removed
	assert.Nil(t, te.GetTool("test_tool"))
}

func TestToolExecutor_GetToolCount(t *testing.T) {
	te := New()

	assert.Equal(t, 0, te.GetToolCount())

	for i := 0; i < 5; i++ {
		def := ToolDefinition{
			Name:        fmt.Sprintf("tool%d", i),
			Description: "Test tool",
			Parameters:  []ToolParameter{},
			Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				return nil, nil
			},
		}
		err := te.RegisterTool(def)
		require.NoError(t, err)
	}

	assert.Equal(t, 5, te.GetToolCount())
}

func TestToolExecutor_ParameterTypes(t *testing.T) {
	te := New()

	def := ToolDefinition{
		Name:        "multi_param",
		Description: "Tool with multiple parameter types",
		Parameters: []ToolParameter{
			{Name: "str", Type: "string", Description: "String param", Required: true},
			{Name: "num", Type: "number", Description: "Number param", Required: true},
			{Name: "bool", Type: "boolean", Description: "Boolean param", Required: true},
			{Name: "obj", Type: "object", Description: "Object param", Required: false},
			{Name: "arr", Type: "array", Description: "Array param", Required: false},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			return params, nil
		},
	}

	err := te.RegisterTool(def)
	require.NoError(t, err)

	result := te.Execute(context.Background(), "multi_param", map[string]interface{}{
		"str":  "test",
		"num":  42.5,
		"bool": true,
		"obj":  map[string]interface{}{"key": "value"},
		"arr":  []interface{}{1, 2, 3},
	}, nil)

	assert.True(t, result.Success)
}

func noopHandler(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	return "ok", nil
}

func TestToolExecutor_RegisterTool_Duplicate(t *testing.T) {
	te := New()

	def := ToolDefinition{Name: "dup", Description: "Duplicate", Handler: noopHandler}
	require.NoError(t, te.RegisterTool(def))

	err := te.RegisterTool(def)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
	assert.Equal(t, 1, te.GetToolCount())
}

func TestToolExecutor_RegisterTool_DuplicateParameter(t *testing.T) {
	te := New()

	err := te.RegisterTool(ToolDefinition{
		Name:        "twice",
		Description: "Twice",
		Parameters: []ToolParameter{
			{Name: "a", Type: "string", Description: "first"},
			{Name: "a", Type: "string", Description: "second"},
		},
		Handler: noopHandler,
	})
	assert.Error(t, err)
}

func TestToolExecutor_Execute_PolicyDenied(t *testing.T) {
	te := New()
	require.NoError(t, te.RegisterTool(ToolDefinition{Name: "secret", Description: "Secret", Handler: noopHandler}))

	execCtx := &ExecutionContext{
		JobID:      "job-1",
		ToolPolicy: &ToolPolicy{Allow: []string{"*"}, Deny: []string{"secret"}},
	}
	result := te.Execute(context.Background(), "secret", map[string]interface{}{}, execCtx)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "not allowed")
	assert.Equal(t, true, result.Metadata["policy_violation"])
}

func TestToolExecutor_Execute_RecoversPanic(t *testing.T) {
	te := New()
	require.NoError(t, te.RegisterTool(ToolDefinition{
		Name:        "boom",
		Description: "Panics",
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			panic("kaboom")
		},
	}))

	result := te.Execute(context.Background(), "boom", map[string]interface{}{}, nil)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "kaboom")
}

func TestToolExecutor_Execute_UnknownParameterRejected(t *testing.T) {
	te := New()
	require.NoError(t, te.RegisterTool(ToolDefinition{
		Name:        "strict",
		Description: "Strict",
		Parameters:  []ToolParameter{{Name: "q", Type: "string", Description: "query", Required: true}},
		Handler:     noopHandler,
	}))

	result := te.Execute(context.Background(), "strict", map[string]interface{}{"q": "x", "extra": 1}, nil)
	assert.False(t, result.Success)

	result = te.Execute(context.Background(), "strict", map[string]interface{}{"q": 42}, nil)
	assert.False(t, result.Success)
}

func TestToolExecutor_Execute_HandlerSeesExecContext(t *testing.T) {
	te := New()

	var seen *ExecutionContext
	require.NoError(t, te.RegisterTool(ToolDefinition{
		Name:        "whoami",
		Description: "Reports caller",
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			seen = ExecutionFrom(ctx)
			return "ok", nil
		},
	}))

	execCtx := &ExecutionContext{JobID: "job-7", Participant: "user-42"}
	result := te.Execute(context.Background(), "whoami", map[string]interface{}{}, execCtx)

	require.True(t, result.Success)
	require.NotNil(t, seen)
	assert.Equal(t, "user-42", seen.Participant)
}

func TestParticipant(t *testing.T) {
	assert.Empty(t, Participant(context.Background()))
	assert.Nil(t, ExecutionFrom(context.Background()))

	ctx := WithExecution(context.Background(), nil)
	assert.Empty(t, Participant(ctx))

	ctx = WithExecution(context.Background(), &ExecutionContext{Participant: "user-42"})
	assert.Equal(t, "user-42", Participant(ctx))
}

func TestToolExecutor_ExecuteCall(t *testing.T) {
	te := New()
	require.NoError(t, te.RegisterTool(ToolDefinition{
		Name:        "echo",
		Description: "Echo tool",
		Parameters:  []ToolParameter{{Name: "message", Type: "string", Description: "Message", Required: true}},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			return params["message"], nil
		},
	}))

	result := te.ExecuteCall(context.Background(), ToolCall{
		ID:        "call_1",
		Name:      "echo",
		Arguments: map[string]interface{}{"message": "hi"},
	}, nil)

	assert.True(t, result.Success)
	assert.Equal(t, "hi", result.Output)
	assert.Equal(t, "call_1", result.Metadata["call_id"])

	missing := te.ExecuteCall(context.Background(), ToolCall{ID: "call_2", Name: "nope"}, nil)
	assert.False(t, missing.Success)
	assert.Equal(t, "call_2", missing.Metadata["call_id"])
}

func TestToolExecutor_SetDefaultTimeout(t *testing.T) {
	te := New()
	te.SetDefaultTimeout(50 * time.Millisecond)
	te.SetDefaultTimeout(0)

	require.NoError(t, te.RegisterTool(ToolDefinition{
		Name:        "wait",
		Description: "Waits for cancellation",
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}))

	result := te.Execute(context.Background(), "wait", map[string]interface{}{}, nil)
	assert.False(t, result.Success)
}

func TestToolExecutor_Schemas(t *testing.T) {
	te := New()
	require.NoError(t, te.RegisterTool(ToolDefinition{
		Name:        "b_tool",
		Description: "Second",
		Parameters:  []ToolParameter{{Name: "x", Type: "integer", Description: "x", Required: true}},
		Handler:     noopHandler,
	}))
	require.NoError(t, te.RegisterTool(ToolDefinition{Name: "a_tool", Description: "First", Handler: noopHandler}))

	schemas := te.Schemas(nil)
	require.Len(t, schemas, 2)
	assert.Equal(t, "a_tool", schemas[0].Name)
	assert.Equal(t, "b_tool", schemas[1].Name)
	assert.Equal(t, []string{"x"}, schemas[1].InputSchema["required"])

	filtered := te.Schemas(&ToolPolicy{Allow: []string{"a_tool"}})
	require.Len(t, filtered, 1)
	assert.Equal(t, "a_tool", filtered[0].Name)
}

func TestToolPolicy_IsToolAllowed(t *testing.T) {
	var nilPolicy *ToolPolicy
	assert.True(t, nilPolicy.IsToolAllowed("anything"))

	p := &ToolPolicy{Allow: []string{"get_weather"}}
	assert.True(t, p.IsToolAllowed("get_weather"))
	assert.False(t, p.IsToolAllowed("send_notification"))

	p = &ToolPolicy{Allow: []string{"*"}, Deny: []string{"send_notification"}}
	assert.True(t, p.IsToolAllowed("get_weather"))
	assert.False(t, p.IsToolAllowed("send_notification"))
}

func TestToolExecutor_Execute_NullOptionalArguments(t *testing.T) {
	te := New()

	var seen map[string]interface{}
	require.NoError(t, te.RegisterTool(ToolDefinition{
		Name:        "notify",
		Description: "Sends a note",
		Parameters: []ToolParameter{
			{Name: "message", Type: "string", Description: "Text", Required: true},
			{Name: "user_id", Type: "string", Description: "Recipient", Required: false},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			seen = params
			return "ok", nil
		},
	}))

	args := map[string]interface{}{"message": "hi", "user_id": nil}
	result := te.Execute(context.Background(), "notify", args, nil)
	require.True(t, result.Success, result.Error)
	assert.NotContains(t, seen, "user_id")
	assert.Contains(t, args, "user_id", "caller's arguments are not mutated")

	result = te.Execute(context.Background(), "notify", map[string]interface{}{"message": nil}, nil)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "parameter validation failed")
}
