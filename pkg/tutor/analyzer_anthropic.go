package tutor

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/harun/companion/pkg/relay"
)

const (
	DefaultAnthropicModel     = "claude-sonnet-4-5"
	DefaultAnthropicMaxTokens = 1024
)

// AnthropicAnalyzer implements relay.Analyzer with the Anthropic messages API
type AnthropicAnalyzer struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicAnalyzer creates an analyzer
func NewAnthropicAnalyzer(apiKey, model string, maxTokens int, opts ...option.RequestOption) *AnthropicAnalyzer {
	if model == "" {
		model = DefaultAnthropicModel
	}
	if maxTokens <= 0 {
		maxTokens = DefaultAnthropicMaxTokens
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &AnthropicAnalyzer{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: int64(maxTokens),
	}
}

// Provider returns the provider name
func (a *AnthropicAnalyzer) Provider() string {
	return "anthropic"
}

// Analyze sends the prompt with the sketch as a base64 image block
func (a *AnthropicAnalyzer) Analyze(ctx context.Context, req relay.AnalysisRequest) (string, error) {
	prompt := BuildPrompt(req)

	blocks := []anthropic.ContentBlockParamUnion{}
	if len(req.Image.Data) > 0 {
		blocks = append(blocks, anthropic.NewImageBlockBase64(
			mediaType(req.Image),
			base64.StdEncoding.EncodeToString(req.Image.Data),
		))
	}
	blocks = append(blocks, anthropic.NewTextBlock(prompt.User))

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: prompt.System},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(blocks...),
		},
	}

	response, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	var b strings.Builder
	for _, block := range response.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(text.Text)
		}
	}

	feedback := strings.TrimSpace(b.String())
	if feedback == "" {
		return "", ErrEmptyFeedback
	}
	return feedback, nil
}

var _ relay.Analyzer = (*AnthropicAnalyzer)(nil)
