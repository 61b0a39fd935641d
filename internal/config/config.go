package config

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Config represents the ranya-voice worker configuration
type Config struct {
	// LiveKit room connection
	LiveKit LiveKitConfig `json:"livekit" mapstructure:"livekit"`

	// Frontend transports, published to in order
	Transports []string `json:"transports" mapstructure:"transports"`

	// Websocket gateway transport
	Gateway GatewayConfig `json:"gateway" mapstructure:"gateway"`

	// Redis pub/sub relay transport
	Redis RedisConfig `json:"redis" mapstructure:"redis"`

	// Speech pipeline
	STT STTConfig `json:"stt" mapstructure:"stt"`
	VAD VADConfig `json:"vad" mapstructure:"vad"`
	LLM LLMConfig `json:"llm" mapstructure:"llm"`
	TTS TTSConfig `json:"tts" mapstructure:"tts"`

	// Tools
	Tools ToolsConfig `json:"tools" mapstructure:"tools"`

	// Document index backing search_documents
	Documents DocumentsConfig `json:"documents" mapstructure:"documents"`

	// Worker process
	Worker WorkerConfig `json:"worker" mapstructure:"worker"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Tracing
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// LiveKitConfig holds the room the worker joins
type LiveKitConfig struct {
	URL       string `json:"url" mapstructure:"url"`
	APIKey    string `json:"api_key" mapstructure:"api_key"`
	APISecret string `json:"api_secret" mapstructure:"api_secret"`
	Room      string `json:"room" mapstructure:"room"`
	Identity  string `json:"identity" mapstructure:"identity"`
}

// GatewayConfig holds websocket gateway configuration
type GatewayConfig struct {
	Port         int    `json:"port" mapstructure:"port"`
	Host         string `json:"host" mapstructure:"host"`
	SharedSecret string `json:"shared_secret" mapstructure:"shared_secret"`
}

// RedisConfig holds the relay connection
type RedisConfig struct {
	Addr          string `json:"addr" mapstructure:"addr"`
	Password      string `json:"password" mapstructure:"password"`
	DB            int    `json:"db" mapstructure:"db"`
	ChannelPrefix string `json:"channel_prefix" mapstructure:"channel_prefix"`
}

// STTConfig selects the speech recognizer
type STTConfig struct {
	Provider string `json:"provider" mapstructure:"provider"` // deepgram, whisper
	Model    string `json:"model" mapstructure:"model"`
	Language string `json:"language" mapstructure:"language"`
	APIKey   string `json:"api_key" mapstructure:"api_key"`
	BaseURL  string `json:"base_url" mapstructure:"base_url"`
}

// VADConfig tunes the energy voice activity detector
type VADConfig struct {
	Threshold    float64 `json:"threshold" mapstructure:"threshold"`
	SilenceMs    int     `json:"silence_ms" mapstructure:"silence_ms"`
	MinSpeechMs  int     `json:"min_speech_ms" mapstructure:"min_speech_ms"`
	SampleRate   int     `json:"sample_rate" mapstructure:"sample_rate"`
	FrameSamples int     `json:"frame_samples" mapstructure:"frame_samples"`
}

// LLMConfig selects the language model
type LLMConfig struct {
	Provider     string  `json:"provider" mapstructure:"provider"` // openai, anthropic
	Model        string  `json:"model" mapstructure:"model"`
	Temperature  float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens    int     `json:"max_tokens" mapstructure:"max_tokens"`
	APIKey       string  `json:"api_key" mapstructure:"api_key"`
	SystemPrompt string  `json:"system_prompt" mapstructure:"system_prompt"`
	MaxToolTurns int     `json:"max_tool_turns" mapstructure:"max_tool_turns"`
}

// TTSConfig selects the speech synthesizer
type TTSConfig struct {
	Provider string `json:"provider" mapstructure:"provider"` // openai
	Model    string `json:"model" mapstructure:"model"`
	Voice    string `json:"voice" mapstructure:"voice"`
	APIKey   string `json:"api_key" mapstructure:"api_key"`
}

// ToolsConfig holds tool execution settings
type ToolsConfig struct {
	TimeoutSeconds int      `json:"timeout_seconds" mapstructure:"timeout_seconds"`
	Allow          []string `json:"allow" mapstructure:"allow"`
	Deny           []string `json:"deny" mapstructure:"deny"`
	AuditPath      string   `json:"audit_path" mapstructure:"audit_path"`
}

// DocumentsConfig holds the searchable document index
type DocumentsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Dir     string `json:"dir" mapstructure:"dir"`
	DBPath  string `json:"db_path" mapstructure:"db_path"`
	Watch   bool   `json:"watch" mapstructure:"watch"`
	Limit   int    `json:"limit" mapstructure:"limit"`
}

// WorkerConfig holds worker process settings
type WorkerConfig struct {
	MetricsAddr            string `json:"metrics_addr" mapstructure:"metrics_addr"`
	ShutdownTimeoutSeconds int    `json:"shutdown_timeout_seconds" mapstructure:"shutdown_timeout_seconds"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled     bool    `json:"enabled" mapstructure:"enabled"`
	ServiceName string  `json:"service_name" mapstructure:"service_name"`
	SampleRatio float64 `json:"sample_ratio" mapstructure:"sample_ratio"`
}

const DefaultSystemPrompt = "You are a helpful assistant with access to tools."

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		LiveKit: LiveKitConfig{
			Identity: "ranya-voice-agent",
		},
		Transports: []string{"livekit"},
		Gateway: GatewayConfig{
			Port: 8765,
			Host: "127.0.0.1",
		},
		Redis: RedisConfig{
			Addr:          "localhost:6379",
			ChannelPrefix: "ranya-voice",
		},
		STT: STTConfig{
			Provider: "deepgram",
			Model:    "nova-2-general",
			Language: "en",
		},
		VAD: VADConfig{
			Threshold:    0.02,
			SilenceMs:    500,
			MinSpeechMs:  100,
			SampleRate:   16000,
			FrameSamples: 320,
		},
		LLM: LLMConfig{
			Provider:     "openai",
			Model:        "gpt-4",
			Temperature:  0.7,
			MaxTokens:    1024,
			SystemPrompt: DefaultSystemPrompt,
			MaxToolTurns: 10,
		},
		TTS: TTSConfig{
			Provider: "openai",
			Model:    "tts-1",
			Voice:    "alloy",
		},
		Tools: ToolsConfig{
			TimeoutSeconds: 30,
			Allow:          []string{"*"},
			Deny:           []string{},
		},
		Documents: DocumentsConfig{
			Enabled: false,
			Watch:   true,
			Limit:   5,
		},
		Worker: WorkerConfig{
			MetricsAddr:            "",
			ShutdownTimeoutSeconds: 10,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "ranya-voice",
			SampleRatio: 1.0,
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// HasTransport reports whether the named transport is enabled.
func (c *Config) HasTransport(name string) bool {
	for _, t := range c.Transports {
		if strings.EqualFold(t, name) {
			return true
		}
	}
	return false
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	for _, t := range c.Transports {
		switch strings.ToLower(t) {
		case "livekit", "gateway", "redis":
		default:
			return fmt.Errorf("invalid transport %s (must be: livekit, gateway, redis)", t)
		}
	}

	if c.HasTransport("livekit") {
		if c.LiveKit.URL == "" {
			return fmt.Errorf("livekit url is required when the livekit transport is enabled")
		}
		if c.LiveKit.APIKey == "" || c.LiveKit.APISecret == "" {
			return fmt.Errorf("livekit api_key and api_secret are required when the livekit transport is enabled")
		}
		if c.LiveKit.Room == "" {
			return fmt.Errorf("livekit room is required when the livekit transport is enabled")
		}
	}

	if c.HasTransport("gateway") && (c.Gateway.Port <= 0 || c.Gateway.Port > 65535) {
		return fmt.Errorf("invalid gateway port %d", c.Gateway.Port)
	}

	if c.HasTransport("redis") && c.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required when the redis transport is enabled")
	}

	switch c.STT.Provider {
	case "deepgram", "whisper":
	default:
		return fmt.Errorf("invalid stt provider %s (must be: deepgram, whisper)", c.STT.Provider)
	}
	if c.STT.APIKey == "" {
		return fmt.Errorf("stt api_key is required")
	}

	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("invalid llm provider %s (must be: openai, anthropic)", c.LLM.Provider)
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm api_key is required")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm model is required")
	}

	if c.TTS.Provider != "openai" {
		return fmt.Errorf("invalid tts provider %s (must be: openai)", c.TTS.Provider)
	}
	if c.TTS.APIKey == "" {
		return fmt.Errorf("tts api_key is required")
	}

	if c.Documents.Enabled && c.Documents.Dir == "" {
		return fmt.Errorf("documents dir is required when documents are enabled")
	}

	return nil
}
