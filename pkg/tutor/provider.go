package tutor

import (
	"fmt"

	openaiopt "github.com/openai/openai-go/option"

	"github.com/harun/companion/internal/config"
	"github.com/harun/companion/pkg/relay"
)

// NewAnalyzer builds the analyzer selected by cfg.Analysis.Provider
func NewAnalyzer(cfg *config.Config) (relay.Analyzer, error) {
	switch cfg.Analysis.Provider {
	case "", "openai":
		var opts []openaiopt.RequestOption
		if cfg.OpenAI.BaseURL != "" {
			opts = append(opts, openaiopt.WithBaseURL(cfg.OpenAI.BaseURL))
		}
		return NewOpenAIAnalyzer(cfg.OpenAI.APIKey, cfg.OpenAI.AnalysisModel, opts...), nil
	case "anthropic":
		return NewAnthropicAnalyzer(cfg.Anthropic.APIKey, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens), nil
	default:
		return nil, fmt.Errorf("unknown analysis provider: %s", cfg.Analysis.Provider)
	}
}

// NewSynthesizer builds the speech synthesizer from cfg
func NewSynthesizer(cfg *config.Config) relay.Synthesizer {
	var opts []openaiopt.RequestOption
	if cfg.OpenAI.BaseURL != "" {
		opts = append(opts, openaiopt.WithBaseURL(cfg.OpenAI.BaseURL))
	}
	return NewOpenAISynthesizer(SpeechConfig{
		APIKey:  cfg.OpenAI.APIKey,
		Model:   cfg.OpenAI.SpeechModel,
		Voice:   cfg.OpenAI.SpeechVoice,
		Format:  cfg.OpenAI.SpeechFormat,
		Options: opts,
	})
}
