package assistant

import (
	"context"
	"fmt"

	"github.com/harun/ranya-voice/pkg/toolexecutor"
)

// ToolDefinitions returns the assistant's tools bound to a.
func (a *Assistant) ToolDefinitions() []toolexecutor.ToolDefinition {
	return []toolexecutor.ToolDefinition{
		{
			Name:        ToolGetWeather,
			Description: "Get the current weather for a location.",
			Parameters: []toolexecutor.ToolParameter{
				{Name: "location", Type: "string", Description: "City or place name", Required: true},
			},
			Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				return a.GetWeather(ctx, stringParam(params, "location"))
			},
		},
		{
			Name:        ToolSendNotification,
			Description: "Send a notification message to the user's frontend.",
			Parameters: []toolexecutor.ToolParameter{
				{Name: "message", Type: "string", Description: "Notification text", Required: true},
				{Name: "user_id", Type: "string", Description: "Participant identity to notify; omit to notify everyone", Required: false},
			},
			Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				return a.SendNotification(ctx, stringParam(params, "message"), stringParam(params, "user_id"))
			},
		},
		{
			Name:        ToolSearchDocuments,
			Description: "Search the user's documents and show the results on their screen.",
			Parameters: []toolexecutor.ToolParameter{
				{Name: "query", Type: "string", Description: "Search query", Required: true},
			},
			Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				return a.SearchDocuments(ctx, stringParam(params, "query"))
			},
		},
	}
}

// RegisterTools registers every assistant tool on exec.
func (a *Assistant) RegisterTools(exec *toolexecutor.ToolExecutor) error {
	for _, def := range a.ToolDefinitions() {
		if err := exec.RegisterTool(def); err != nil {
			return fmt.Errorf("failed to register %s: %w", def.Name, err)
		}
	}
	return nil
}

func stringParam(params map[string]interface{}, name string) string {
	v, _ := params[name].(string)
	return v
}
