package cli

import (
	"encoding/json"
	"fmt"

	"github.com/harun/ranya-voice/pkg/assistant"
	"github.com/harun/ranya-voice/pkg/toolexecutor"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var toolsFormat string

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Print the tool schemas exposed to the model",
	RunE:  runTools,
}

func init() {
	toolsCmd.Flags().StringVar(&toolsFormat, "format", "json", "output format (json, yaml)")
	rootCmd.AddCommand(toolsCmd)
}

func runTools(cmd *cobra.Command, args []string) error {
	exec := toolexecutor.New()
	a := assistant.New(assistant.Options{Logger: zerolog.Nop()})
	if err := a.RegisterTools(exec); err != nil {
		return fmt.Errorf("failed to register tools: %w", err)
	}
	schemas := exec.Schemas(nil)

	var data []byte
	var err error
	switch toolsFormat {
	case "json":
		data, err = json.MarshalIndent(schemas, "", "  ")
		if err == nil {
			data = append(data, '\n')
		}
	case "yaml":
		data, err = yaml.Marshal(schemas)
	default:
		return fmt.Errorf("unsupported format %q (expected json or yaml)", toolsFormat)
	}
	if err != nil {
		return fmt.Errorf("failed to encode tool schemas: %w", err)
	}

	_, err = cmd.OutOrStdout().Write(data)
	return err
}
