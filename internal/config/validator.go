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
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}

	return nil
}

// ValidateTranscriptionURL requires a ws or wss URL
func (v *Validator) ValidateTranscriptionURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid transcription url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("transcription url must use ws or wss, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("transcription url has no host")
	}
	return nil
}

// ValidateSpeechFormat validates the synthesized audio container
func (v *Validator) ValidateSpeechFormat(format string) error {
	validFormats := []string{"mp3", "opus", "aac", "flac", "wav", "pcm"}
	for _, valid := range validFormats {
		if format == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid speech format: %s (must be one of: %s)", format, strings.Join(validFormats, ", "))
}

// ValidateOrigin validates a CORS origin entry
func (v *Validator) ValidateOrigin(origin string) error {
	if origin == "*" {
		return nil
	}
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid allowed origin: %q", origin)
	}
	if u.Path != "" && u.Path != "/" {
		return fmt.Errorf("allowed origin must not carry a path: %q", origin)
	}
	return nil
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

	if err := cfg.Validate(); err != nil {
		errors = append(errors, err)
	}

	if cfg.OpenAI.APIKey != "" {
		if err := v.ValidateAPIKey(cfg.OpenAI.APIKey, "openai"); err != nil {
			errors = append(errors, err)
		}
	}
	if cfg.Analysis.Provider == "anthropic" && cfg.Anthropic.APIKey != "" {
		if err := v.ValidateAPIKey(cfg.Anthropic.APIKey, "anthropic"); err != nil {
			errors = append(errors, err)
		}
	}
	if cfg.Anthropic.MaxTokens < 0 {
		errors = append(errors, fmt.Errorf("anthropic.max_tokens must be >= 0"))
	}

	if err := v.ValidateTranscriptionURL(cfg.OpenAI.TranscriptionURL); err != nil {
		errors = append(errors, err)
	}
	if cfg.OpenAI.SpeechFormat != "" {
		if err := v.ValidateSpeechFormat(cfg.OpenAI.SpeechFormat); err != nil {
			errors = append(errors, err)
		}
	}

	for _, origin := range cfg.Server.AllowedOrigins {
		if err := v.ValidateOrigin(origin); err != nil {
			errors = append(errors, err)
		}
	}
	if cfg.Server.MaxUploadMB < 0 {
		errors = append(errors, fmt.Errorf("server.max_upload_mb must be >= 0"))
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errors = append(errors, fmt.Errorf("tracing.sample_ratio must be between 0 and 1"))
	}

	return errors
}
