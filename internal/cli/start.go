package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/harun/ranya-voice/internal/config"
	"github.com/harun/ranya-voice/internal/entrypoint"
	"github.com/harun/ranya-voice/internal/logger"
	"github.com/harun/ranya-voice/internal/observability"
	"github.com/harun/ranya-voice/internal/tracing"
	"github.com/harun/ranya-voice/pkg/worker"
	"github.com/spf13/cobra"
)

var startRoom string

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the voice agent worker",
	Long: `Start the voice agent worker in the foreground.
The worker connects the configured transports, hosts one session and
stops on SIGINT or SIGTERM.`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&startRoom, "room", "", "room to join (overrides livekit.room)")
	rootCmd.AddCommand(startCmd)
}

// loadConfig loads the config file and applies command-line overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if f := cmd.Flags().Lookup("log-level"); f != nil && f.Changed {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if startRoom != "" {
		cfg.LiveKit.Room = startRoom
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   true,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	if cfg.Tools.AuditPath != "" {
		if err := observability.InitAuditLogger(cfg.Tools.AuditPath); err != nil {
			log.Warn().Err(err).Msg("Failed to initialize audit logger, continuing without audit trail")
		}
		defer observability.GetAuditLogger().Close()
	}

	if cfg.Tracing.Enabled {
		if err := tracing.InitOpenTelemetry(cfg.Tracing.ServiceName, cfg.Tracing.SampleRatio); err != nil {
			log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = tracing.ShutdownOpenTelemetry(ctx)
			}()
		}
	}

	log.Info().
		Str("version", version).
		Str("room", cfg.LiveKit.Room).
		Strs("transports", cfg.Transports).
		Msg("Starting voice agent worker")

	return worker.Run(cmd.Context(), worker.WorkerOptions{
		Entrypoint:      entrypoint.Run,
		Prewarm:         nil,
		Config:          cfg,
		Logger:          log.GetZerolog(),
		MetricsAddr:     cfg.Worker.MetricsAddr,
		ShutdownTimeout: time.Duration(cfg.Worker.ShutdownTimeoutSeconds) * time.Second,
		HandleSignals:   true,
	})
}
