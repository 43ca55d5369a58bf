package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv isolates a test from the developer's shell.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "COMPANION_OPENAI_API_KEY", "COMPANION_SERVER_PORT", "COMPANION_ANALYSIS_PROVIDER"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestNewLoader(t *testing.T) {
	loader := NewLoader("/path/to/config.json")
	assert.Equal(t, "/path/to/config.json", loader.configPath)
	assert.Equal(t, []string{".env"}, loader.envFiles)
	assert.Equal(t, "/path/to/config.json", loader.GetConfigPath())
}

func TestLoaderLoad(t *testing.T) {
	t.Run("defaults when file doesn't exist", func(t *testing.T) {
		clearEnv(t)
		tmpDir := t.TempDir()

		cfg, err := NewLoader(filepath.Join(tmpDir, "missing.json"), filepath.Join(tmpDir, "missing.env")).Load()
		require.NoError(t, err)
		assert.Equal(t, 8000, cfg.Server.Port)
		assert.Equal(t, "gpt-4o", cfg.OpenAI.AnalysisModel)
	})

	t.Run("load config from file", func(t *testing.T) {
		clearEnv(t)
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "companion.json")

		body := `{
			"server": {"port": 9100, "shared_secret": "s3cret"},
			"openai": {"api_key": "sk-file", "speech_voice": "alloy"},
			"data_dir": "` + tmpDir + `"
		}`
		require.NoError(t, os.WriteFile(configPath, []byte(body), 0644))

		cfg, err := NewLoader(configPath, filepath.Join(tmpDir, "none.env")).Load()
		require.NoError(t, err)
		assert.Equal(t, 9100, cfg.Server.Port)
		assert.Equal(t, "s3cret", cfg.Server.SharedSecret)
		assert.Equal(t, "sk-file", cfg.OpenAI.APIKey)
		assert.Equal(t, "alloy", cfg.OpenAI.SpeechVoice)
		// untouched siblings keep defaults
		assert.Equal(t, "gpt-4o-mini-tts", cfg.OpenAI.SpeechModel)
		assert.Equal(t, filepath.Join(tmpDir, "history"), cfg.History.Dir)
		assert.Equal(t, filepath.Join(tmpDir, "concepts.csv"), cfg.Concepts.Path)
	})

	t.Run("prefixed env overrides file", func(t *testing.T) {
		clearEnv(t)
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "companion.json")
		require.NoError(t, os.WriteFile(configPath, []byte(`{"server": {"port": 9100}}`), 0644))

		t.Setenv("COMPANION_SERVER_PORT", "9200")
		t.Setenv("COMPANION_ANALYSIS_PROVIDER", "anthropic")

		cfg, err := NewLoader(configPath, filepath.Join(tmpDir, "none.env")).Load()
		require.NoError(t, err)
		assert.Equal(t, 9200, cfg.Server.Port)
		assert.Equal(t, "anthropic", cfg.Analysis.Provider)
	})

	t.Run("bare OPENAI_API_KEY fallback", func(t *testing.T) {
		clearEnv(t)
		tmpDir := t.TempDir()
		t.Setenv("OPENAI_API_KEY", "sk-from-env")

		cfg, err := NewLoader(filepath.Join(tmpDir, "missing.json"), filepath.Join(tmpDir, "none.env")).Load()
		require.NoError(t, err)
		assert.Equal(t, "sk-from-env", cfg.OpenAI.APIKey)
	})

	t.Run("dotenv file", func(t *testing.T) {
		clearEnv(t)
		tmpDir := t.TempDir()
		envPath := filepath.Join(tmpDir, ".env")
		require.NoError(t, os.WriteFile(envPath, []byte("OPENAI_API_KEY=sk-dotenv\n"), 0644))
		t.Cleanup(func() { os.Unsetenv("OPENAI_API_KEY") })

		cfg, err := NewLoader(filepath.Join(tmpDir, "missing.json"), envPath).Load()
		require.NoError(t, err)
		assert.Equal(t, "sk-dotenv", cfg.OpenAI.APIKey)
	})

	t.Run("invalid json", func(t *testing.T) {
		clearEnv(t)
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "companion.json")
		require.NoError(t, os.WriteFile(configPath, []byte(`{not json`), 0644))

		_, err := NewLoader(configPath, filepath.Join(tmpDir, "none.env")).Load()
		assert.Error(t, err)
	})
}
