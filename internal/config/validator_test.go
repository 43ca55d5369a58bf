package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAPIKey(t *testing.T) {
	v := NewValidator()

	t.Run("valid anthropic key", func(t *testing.T) {
		assert.NoError(t, v.ValidateAPIKey("sk-ant-test123", "anthropic"))
	})

	t.Run("invalid anthropic key", func(t *testing.T) {
		assert.Error(t, v.ValidateAPIKey("invalid-key", "anthropic"))
	})

	t.Run("valid openai key", func(t *testing.T) {
		assert.NoError(t, v.ValidateAPIKey("sk-test123", "openai"))
	})

	t.Run("invalid openai key", func(t *testing.T) {
		assert.Error(t, v.ValidateAPIKey("invalid-key", "openai"))
	})

	t.Run("empty key", func(t *testing.T) {
		assert.Error(t, v.ValidateAPIKey("", "anthropic"))
	})
}

func TestValidateTranscriptionURL(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateTranscriptionURL("wss://api.openai.com/v1/realtime?intent=transcription"))
	assert.NoError(t, v.ValidateTranscriptionURL("ws://127.0.0.1:9000/ws"))
	assert.Error(t, v.ValidateTranscriptionURL("https://api.openai.com"))
	assert.Error(t, v.ValidateTranscriptionURL("wss://"))
}

func TestValidateSpeechFormat(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateSpeechFormat("mp3"))
	assert.Error(t, v.ValidateSpeechFormat("ogg"))
}

func TestValidateOrigin(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateOrigin("http://localhost:3000"))
	assert.NoError(t, v.ValidateOrigin("*"))
	assert.Error(t, v.ValidateOrigin("localhost"))
	assert.Error(t, v.ValidateOrigin("https://example.com/app"))
}

func TestValidateLogLevel(t *testing.T) {
	v := NewValidator()

	for _, level := range []string{"debug", "info", "warn", "error"} {
		assert.NoError(t, v.ValidateLogLevel(level))
	}
	assert.Error(t, v.ValidateLogLevel("trace"))
}

func TestValidateConfig(t *testing.T) {
	v := NewValidator()

	t.Run("valid", func(t *testing.T) {
		assert.Empty(t, v.ValidateConfig(validConfig()))
	})

	t.Run("collects every problem", func(t *testing.T) {
		cfg := validConfig()
		cfg.OpenAI.APIKey = "bogus"
		cfg.OpenAI.SpeechFormat = "ogg"
		cfg.Server.AllowedOrigins = []string{"nope"}
		cfg.Logging.Level = "loud"

		errs := v.ValidateConfig(cfg)
		assert.Len(t, errs, 4)
	})

	t.Run("sample ratio out of range", func(t *testing.T) {
		cfg := validConfig()
		cfg.Tracing.SampleRatio = 1.5
		assert.Len(t, v.ValidateConfig(cfg), 1)

		cfg.Tracing.SampleRatio = 0.25
		assert.Empty(t, v.ValidateConfig(cfg))
	})
}
