package cli

import (
	"fmt"
	"os"

	"github.com/harun/ranya-voice/internal/config"
	"github.com/spf13/cobra"
)

var configureForce bool

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Write a configuration file",
	Long: `Write a configuration file populated with defaults and any values
taken from RANYA_VOICE_* environment variables and provider API keys.
An existing file is left alone unless --force is given.`,
	RunE: runConfigure,
}

func init() {
	configureCmd.Flags().BoolVar(&configureForce, "force", false, "overwrite an existing config file")
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	configPath := loader.GetConfigPath()

	if _, err := os.Stat(configPath); err == nil && !configureForce {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", configPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("configuration failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(out, "Warning: configuration is incomplete: %v\n", err)
	}

	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Fprintf(out, "Configuration saved to: %s\n", configPath)
	fmt.Fprintln(out, "You can now start the worker with: ranya-voice start")
	return nil
}
