package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type printedSchema struct {
	Name        string                 `json:"name" yaml:"name"`
	Description string                 `json:"description" yaml:"description"`
	InputSchema map[string]interface{} `json:"input_schema" yaml:"input_schema"`
}

func runToolsCmd(t *testing.T, format string) (string, error) {
	t.Helper()
	return executeRoot(t, "tools", "--format", format)
}

func TestToolsCommand(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		out, err := runToolsCmd(t, "json")
		require.NoError(t, err)

		var schemas []printedSchema
		require.NoError(t, json.Unmarshal([]byte(out), &schemas))
		require.Len(t, schemas, 3)

		names := []string{schemas[0].Name, schemas[1].Name, schemas[2].Name}
		assert.Equal(t, []string{"get_weather", "search_documents", "send_notification"}, names)
		for _, s := range schemas {
			assert.NotEmpty(t, s.Description)
			assert.Equal(t, "object", s.InputSchema["type"])
		}
	})

	t.Run("yaml", func(t *testing.T) {
		out, err := runToolsCmd(t, "yaml")
		require.NoError(t, err)

		var schemas []printedSchema
		require.NoError(t, yaml.Unmarshal([]byte(out), &schemas))
		require.Len(t, schemas, 3)
		assert.Equal(t, "get_weather", schemas[0].Name)
	})

	t.Run("unsupported format", func(t *testing.T) {
		_, err := runToolsCmd(t, "xml")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported format")
	})
}
