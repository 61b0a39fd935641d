// Package toolexecutor is the registry of functions the language model may
// call. Each tool is declared with typed parameters, which are compiled into a
// JSON schema and checked before the handler runs.
//
// A call always produces exactly one ToolResult. Unknown tools, schema
// violations, policy denials, handler errors, panics and timeouts all come
// back as a failed result rather than an error, so the caller can hand the
// outcome straight back to the model.
//
//	exec := toolexecutor.New()
//	_ = exec.RegisterTool(toolexecutor.ToolDefinition{
//		Name:        "get_weather",
//		Description: "Get the current weather for a location.",
//		Parameters: []toolexecutor.ToolParameter{
//			{Name: "location", Type: "string", Description: "City", Required: true},
//		},
//		Handler: weatherHandler,
//	})
//	res := exec.Execute(ctx, "get_weather", map[string]interface{}{"location": "Oslo"}, nil)
package toolexecutor
