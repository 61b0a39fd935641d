package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai", "whisper":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	case "deepgram":
		if len(key) < 32 {
			return fmt.Errorf("invalid Deepgram API key format (too short)")
		}
	}

	return nil
}

// ValidateLiveKitURL validates the LiveKit server URL
func (v *Validator) ValidateLiveKitURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("livekit url cannot be empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid livekit url: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return fmt.Errorf("invalid livekit url scheme: %s (must be ws, wss, http or https)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("livekit url has no host")
	}

	return nil
}

// ValidateTemperature validates temperature value
func (v *Validator) ValidateTemperature(temp float64) error {
	if temp < 0 || temp > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", temp)
	}
	return nil
}

// ValidateMaxTokens validates max tokens value
func (v *Validator) ValidateMaxTokens(tokens int) error {
	if tokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", tokens)
	}
	if tokens > 200000 {
		return fmt.Errorf("max tokens too large (max 200000), got %d", tokens)
	}
	return nil
}

// ValidateVoice validates an OpenAI TTS voice name
func (v *Validator) ValidateVoice(voice string) error {
	if voice == "" {
		return nil // Use default
	}

	validVoices := []string{"alloy", "echo", "fable", "onyx", "nova", "shimmer"}
	for _, valid := range validVoices {
		if voice == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid tts voice: %s (must be one of: %s)", voice, strings.Join(validVoices, ", "))
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if cfg.HasTransport("livekit") {
		if err := v.ValidateLiveKitURL(cfg.LiveKit.URL); err != nil {
			errors = append(errors, err)
		}
	}

	if cfg.STT.APIKey != "" {
		if err := v.ValidateAPIKey(cfg.STT.APIKey, cfg.STT.Provider); err != nil {
			errors = append(errors, fmt.Errorf("stt: %w", err))
		}
	}
	if cfg.LLM.APIKey != "" {
		if err := v.ValidateAPIKey(cfg.LLM.APIKey, cfg.LLM.Provider); err != nil {
			errors = append(errors, fmt.Errorf("llm: %w", err))
		}
	}
	if cfg.TTS.APIKey != "" {
		if err := v.ValidateAPIKey(cfg.TTS.APIKey, cfg.TTS.Provider); err != nil {
			errors = append(errors, fmt.Errorf("tts: %w", err))
		}
	}

	if err := v.ValidateTemperature(cfg.LLM.Temperature); err != nil {
		errors = append(errors, fmt.Errorf("llm: %w", err))
	}
	if cfg.LLM.MaxTokens != 0 {
		if err := v.ValidateMaxTokens(cfg.LLM.MaxTokens); err != nil {
			errors = append(errors, fmt.Errorf("llm: %w", err))
		}
	}
	if cfg.LLM.MaxToolTurns < 0 {
		errors = append(errors, fmt.Errorf("llm.max_tool_turns must be >= 0"))
	}

	if err := v.ValidateVoice(cfg.TTS.Voice); err != nil {
		errors = append(errors, err)
	}

	if cfg.VAD.Threshold <= 0 || cfg.VAD.Threshold >= 1 {
		errors = append(errors, fmt.Errorf("vad.threshold must be in (0, 1), got %f", cfg.VAD.Threshold))
	}
	if cfg.VAD.SilenceMs < 0 {
		errors = append(errors, fmt.Errorf("vad.silence_ms must be >= 0"))
	}

	if cfg.Tools.TimeoutSeconds < 0 {
		errors = append(errors, fmt.Errorf("tools.timeout_seconds must be >= 0"))
	}
	for i, name := range cfg.Tools.Deny {
		if strings.TrimSpace(name) == "" {
			errors = append(errors, fmt.Errorf("tools.deny[%d]: tool name is required", i))
		}
	}

	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errors = append(errors, fmt.Errorf("tracing.sample_ratio must be between 0 and 1"))
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	return errors
}
