package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const envPrefix = "RANYA_VOICE"

// Keys that may be supplied through the environment. Each is also read from
// RANYA_VOICE_<KEY> with dots replaced by underscores.
var envKeys = map[string][]string{
	"livekit.url":         {"LIVEKIT_URL"},
	"livekit.api_key":     {"LIVEKIT_API_KEY"},
	"livekit.api_secret":  {"LIVEKIT_API_SECRET"},
	"livekit.room":        {"LIVEKIT_ROOM"},
	"livekit.identity":    nil,
	"redis.addr":          {"REDIS_ADDR"},
	"redis.password":      {"REDIS_PASSWORD"},
	"stt.api_key":         nil,
	"llm.api_key":         nil,
	"tts.api_key":         nil,
	"logging.level":       nil,
	"worker.metrics_addr": nil,
	"data_dir":            nil,
}

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load loads the configuration from file and environment
func (l *Loader) Load() (*Config, error) {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return nil, fmt.Errorf("failed to get home directory")
	}

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, aliases := range envKeys {
		names := append([]string{envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, aliases...)
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	// A missing file is not an error; defaults and environment still apply
	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyProviderKeys(cfg)

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".ranya-voice")
	}

	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "ranya-voice.log")
	}

	if cfg.Tools.AuditPath == "" {
		cfg.Tools.AuditPath = filepath.Join(cfg.DataDir, "audit.log")
	}

	if cfg.Documents.DBPath == "" {
		cfg.Documents.DBPath = filepath.Join(cfg.DataDir, "documents.db")
	}

	return cfg, nil
}

// applyProviderKeys fills empty API keys from the provider's conventional
// environment variable.
func applyProviderKeys(cfg *Config) {
	openaiKey := os.Getenv("OPENAI_API_KEY")

	if cfg.STT.APIKey == "" {
		switch cfg.STT.Provider {
		case "deepgram":
			cfg.STT.APIKey = os.Getenv("DEEPGRAM_API_KEY")
		case "whisper":
			cfg.STT.APIKey = openaiKey
		}
	}

	if cfg.LLM.APIKey == "" {
		switch cfg.LLM.Provider {
		case "openai":
			cfg.LLM.APIKey = openaiKey
		case "anthropic":
			cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}

	if cfg.TTS.APIKey == "" && cfg.TTS.Provider == "openai" {
		cfg.TTS.APIKey = openaiKey
	}
}

// Save saves the configuration to file
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("failed to get home directory")
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("livekit", cfg.LiveKit)
	v.Set("transports", cfg.Transports)
	v.Set("gateway", cfg.Gateway)
	v.Set("redis", cfg.Redis)
	v.Set("stt", cfg.STT)
	v.Set("vad", cfg.VAD)
	v.Set("llm", cfg.LLM)
	v.Set("tts", cfg.TTS)
	v.Set("tools", cfg.Tools)
	v.Set("documents", cfg.Documents)
	v.Set("worker", cfg.Worker)
	v.Set("logging", cfg.Logging)
	v.Set("tracing", cfg.Tracing)
	v.Set("data_dir", cfg.DataDir)

	if err := v.WriteConfig(); err != nil {
		if os.IsNotExist(err) {
			if err := v.SafeWriteConfig(); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
		} else {
			return fmt.Errorf("failed to write config file: %w", err)
		}
	}

	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".ranya-voice", "config.json")
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	loader := NewLoader(configPath)
	return loader.Load()
}
