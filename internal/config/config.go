package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config represents the companion service configuration
type Config struct {
	// HTTP and websocket gateway
	Server ServerConfig `json:"server" mapstructure:"server"`

	// OpenAI credentials and models for transcription, analysis and speech
	OpenAI OpenAIConfig `json:"openai" mapstructure:"openai"`

	// Anthropic credentials, used when analysis.provider is anthropic
	Anthropic AnthropicConfig `json:"anthropic" mapstructure:"anthropic"`

	// Analysis provider selection
	Analysis AnalysisConfig `json:"analysis" mapstructure:"analysis"`

	// Session relay timing
	Relay RelayConfig `json:"relay" mapstructure:"relay"`

	// Conversation history storage
	History HistoryConfig `json:"history" mapstructure:"history"`

	// Concept catalog
	Concepts ConceptsConfig `json:"concepts" mapstructure:"concepts"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Tracing
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ServerConfig holds gateway server configuration
type ServerConfig struct {
	Host           string   `json:"host" mapstructure:"host"`
	Port           int      `json:"port" mapstructure:"port"`
	SharedSecret   string   `json:"shared_secret" mapstructure:"shared_secret"`
	AllowedOrigins []string `json:"allowed_origins" mapstructure:"allowed_origins"`
	MaxUploadMB    int      `json:"max_upload_mb" mapstructure:"max_upload_mb"`

	// Per-client limits on POST routes, zero disables
	RequestsPerMinute int `json:"requests_per_minute" mapstructure:"requests_per_minute"`
	MaxConcurrent     int `json:"max_concurrent" mapstructure:"max_concurrent"`
}

// Addr returns host:port for net/http
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// OpenAIConfig holds OpenAI settings
type OpenAIConfig struct {
	APIKey           string `json:"api_key" mapstructure:"api_key"`
	BaseURL          string `json:"base_url" mapstructure:"base_url"`
	TranscriptionURL string `json:"transcription_url" mapstructure:"transcription_url"`
	AnalysisModel    string `json:"analysis_model" mapstructure:"analysis_model"`
	SpeechModel      string `json:"speech_model" mapstructure:"speech_model"`
	SpeechVoice      string `json:"speech_voice" mapstructure:"speech_voice"`
	SpeechFormat     string `json:"speech_format" mapstructure:"speech_format"`
}

// AnthropicConfig holds Anthropic settings
type AnthropicConfig struct {
	APIKey    string `json:"api_key" mapstructure:"api_key"`
	Model     string `json:"model" mapstructure:"model"`
	MaxTokens int    `json:"max_tokens" mapstructure:"max_tokens"`
}

// AnalysisConfig selects the feedback provider
type AnalysisConfig struct {
	Provider string `json:"provider" mapstructure:"provider"` // openai, anthropic
}

// RelayConfig holds session relay timing. Durations are Go duration strings.
type RelayConfig struct {
	DrainTimeout   string `json:"drain_timeout" mapstructure:"drain_timeout"`
	HistoryTimeout string `json:"history_timeout" mapstructure:"history_timeout"`
	SweepInterval  string `json:"sweep_interval" mapstructure:"sweep_interval"`
	IdleTimeout    string `json:"idle_timeout" mapstructure:"idle_timeout"`
	RetiredHorizon string `json:"retired_horizon" mapstructure:"retired_horizon"`
}

// HistoryConfig holds conversation history settings
type HistoryConfig struct {
	Dir string `json:"dir" mapstructure:"dir"`
}

// ConceptsConfig holds concept catalog settings
type ConceptsConfig struct {
	Path  string `json:"path" mapstructure:"path"`
	Watch bool   `json:"watch" mapstructure:"watch"`
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
	Enabled bool `json:"enabled" mapstructure:"enabled"`
	// SampleRatio is the fraction of root traces kept, 0 to 1
	SampleRatio float64 `json:"sample_ratio" mapstructure:"sample_ratio"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8000,
			AllowedOrigins: []string{"http://localhost:3000"},
			MaxUploadMB:    10,

			RequestsPerMinute: 60,
			MaxConcurrent:     4,
		},
		OpenAI: OpenAIConfig{
			TranscriptionURL: "wss://api.openai.com/v1/realtime?intent=transcription",
			AnalysisModel:    "gpt-4o",
			SpeechModel:      "gpt-4o-mini-tts",
			SpeechVoice:      "verse",
			SpeechFormat:     "mp3",
		},
		Anthropic: AnthropicConfig{
			Model:     "claude-sonnet-4-5",
			MaxTokens: 1024,
		},
		Analysis: AnalysisConfig{
			Provider: "openai",
		},
		Relay: RelayConfig{
			DrainTimeout:   "1s",
			HistoryTimeout: "5s",
			SweepInterval:  "1m",
			IdleTimeout:    "30m",
			RetiredHorizon: "24h",
		},
		Concepts: ConceptsConfig{
			Watch: true,
		},
		Tracing: TracingConfig{
			SampleRatio: 1,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Pretty:    true,
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
	}
}

// String returns a JSON representation of the config with credentials masked
func (c *Config) String() string {
	masked := *c
	masked.OpenAI.APIKey = mask(c.OpenAI.APIKey)
	masked.Anthropic.APIKey = mask(c.Anthropic.APIKey)
	masked.Server.SharedSecret = mask(c.Server.SharedSecret)
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "****"
}

// Durations parses the relay timing strings. Empty values yield zero
// so callers fall back to their own defaults.
func (r RelayConfig) Durations() (RelayDurations, error) {
	var d RelayDurations
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"drain_timeout", r.DrainTimeout, &d.Drain},
		{"history_timeout", r.HistoryTimeout, &d.History},
		{"sweep_interval", r.SweepInterval, &d.SweepInterval},
		{"idle_timeout", r.IdleTimeout, &d.Idle},
		{"retired_horizon", r.RetiredHorizon, &d.RetiredHorizon},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		v, err := time.ParseDuration(f.raw)
		if err != nil {
			return RelayDurations{}, fmt.Errorf("relay.%s: %w", f.name, err)
		}
		if v < 0 {
			return RelayDurations{}, fmt.Errorf("relay.%s must be >= 0", f.name)
		}
		*f.dst = v
	}
	return d, nil
}

// RelayDurations is the parsed form of RelayConfig
type RelayDurations struct {
	Drain          time.Duration
	History        time.Duration
	SweepInterval  time.Duration
	Idle           time.Duration
	RetiredHorizon time.Duration
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("openai api_key is required for transcription and speech")
	}

	switch c.Analysis.Provider {
	case "", "openai":
	case "anthropic":
		if c.Anthropic.APIKey == "" {
			return fmt.Errorf("anthropic api_key is required when analysis.provider is anthropic")
		}
	default:
		return fmt.Errorf("invalid analysis provider %s (must be: openai, anthropic)", c.Analysis.Provider)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}

	if c.Concepts.Path == "" {
		return fmt.Errorf("concepts path is required")
	}

	if _, err := c.Relay.Durations(); err != nil {
		return err
	}

	return nil
}
