package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.NotNil(t, cfg)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "wss://api.openai.com/v1/realtime?intent=transcription", cfg.OpenAI.TranscriptionURL)
	assert.Equal(t, "gpt-4o", cfg.OpenAI.AnalysisModel)
	assert.Equal(t, "gpt-4o-mini-tts", cfg.OpenAI.SpeechModel)
	assert.Equal(t, "verse", cfg.OpenAI.SpeechVoice)
	assert.Equal(t, "openai", cfg.Analysis.Provider)
	assert.Equal(t, "1s", cfg.Relay.DrainTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.OpenAI.APIKey = "sk-test123"
	cfg.Concepts.Path = "/tmp/concepts.csv"
	return cfg
}

func TestConfigValidate(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	t.Run("missing openai key", func(t *testing.T) {
		cfg := validConfig()
		cfg.OpenAI.APIKey = ""
		assert.ErrorContains(t, cfg.Validate(), "openai api_key")
	})

	t.Run("anthropic provider requires key", func(t *testing.T) {
		cfg := validConfig()
		cfg.Analysis.Provider = "anthropic"
		assert.ErrorContains(t, cfg.Validate(), "anthropic api_key")

		cfg.Anthropic.APIKey = "sk-ant-test"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("unknown provider", func(t *testing.T) {
		cfg := validConfig()
		cfg.Analysis.Provider = "gemini"
		assert.ErrorContains(t, cfg.Validate(), "invalid analysis provider")
	})

	t.Run("bad port", func(t *testing.T) {
		cfg := validConfig()
		cfg.Server.Port = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad duration", func(t *testing.T) {
		cfg := validConfig()
		cfg.Relay.DrainTimeout = "soon"
		assert.ErrorContains(t, cfg.Validate(), "relay.drain_timeout")
	})
}

func TestRelayDurations(t *testing.T) {
	d, err := DefaultConfig().Relay.Durations()
	require.NoError(t, err)
	assert.Equal(t, time.Second, d.Drain)
	assert.Equal(t, 5*time.Second, d.History)
	assert.Equal(t, time.Minute, d.SweepInterval)
	assert.Equal(t, 30*time.Minute, d.Idle)
	assert.Equal(t, 24*time.Hour, d.RetiredHorizon)

	d, err = RelayConfig{}.Durations()
	require.NoError(t, err)
	assert.Zero(t, d.Drain)

	_, err = RelayConfig{IdleTimeout: "-1m"}.Durations()
	assert.Error(t, err)
}

func TestConfigStringMasksSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Server.SharedSecret = "hunter2"

	out := cfg.String()
	assert.NotContains(t, out, "sk-test123")
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "****")
	assert.Equal(t, "sk-test123", cfg.OpenAI.APIKey)
}
