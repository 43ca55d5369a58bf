package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "COMPANION"

// Loader handles configuration loading
type Loader struct {
	configPath string
	envFiles   []string
}

// NewLoader creates a new config loader. envFiles are dotenv files read
// before the environment is consulted; missing files are ignored.
func NewLoader(configPath string, envFiles ...string) *Loader {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	return &Loader{
		configPath: configPath,
		envFiles:   envFiles,
	}
}

// Load reads the config file, if present, then overlays environment variables
func (l *Loader) Load() (*Config, error) {
	if err := l.loadDotenv(); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	configPath := l.GetConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// The bare OpenAI variable is what the rest of the ecosystem exports.
	if cfg.OpenAI.APIKey == "" {
		cfg.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Anthropic.APIKey == "" {
		cfg.Anthropic.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".companion")
	}
	if cfg.History.Dir == "" {
		cfg.History.Dir = filepath.Join(cfg.DataDir, "history")
	}
	if cfg.Concepts.Path == "" {
		cfg.Concepts.Path = filepath.Join(cfg.DataDir, "concepts.csv")
	}

	return cfg, nil
}

func (l *Loader) loadDotenv() error {
	for _, f := range l.envFiles {
		err := godotenv.Load(f)
		if err == nil || errors.Is(err, os.ErrNotExist) {
			continue
		}
		return fmt.Errorf("failed to load %s: %w", f, err)
	}
	return nil
}

// bindEnv registers every nested key so AutomaticEnv sees it during Unmarshal.
func bindEnv(v *viper.Viper) {
	keys := []string{
		"server.host", "server.port", "server.shared_secret", "server.allowed_origins", "server.max_upload_mb",
		"server.requests_per_minute", "server.max_concurrent",
		"openai.api_key", "openai.base_url", "openai.transcription_url", "openai.analysis_model",
		"openai.speech_model", "openai.speech_voice", "openai.speech_format",
		"anthropic.api_key", "anthropic.model", "anthropic.max_tokens",
		"analysis.provider",
		"relay.drain_timeout", "relay.history_timeout", "relay.sweep_interval",
		"relay.idle_timeout", "relay.retired_horizon",
		"history.dir",
		"concepts.path", "concepts.watch",
		"logging.level", "logging.file", "logging.pretty",
		"tracing.enabled", "tracing.sample_ratio",
		"data_dir",
	}
	for _, k := range keys {
		_ = v.BindEnv(k)
	}
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "companion.json"
	}
	return filepath.Join(home, ".companion", "companion.json")
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}
