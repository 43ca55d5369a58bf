package tutor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/harun/companion/pkg/relay"
)

// DefaultOpenAIModel is the chat model used for analysis
const DefaultOpenAIModel = "gpt-4o"

// ErrEmptyFeedback is returned when a provider answers with no text.
var ErrEmptyFeedback = errors.New("tutor: provider returned no feedback")

// OpenAIAnalyzer implements relay.Analyzer with OpenAI chat completions
type OpenAIAnalyzer struct {
	client openai.Client
	model  string
}

// NewOpenAIAnalyzer creates an analyzer. Extra request options, such as a
// base URL, are passed through to the client.
func NewOpenAIAnalyzer(apiKey, model string, opts ...option.RequestOption) *OpenAIAnalyzer {
	if model == "" {
		model = DefaultOpenAIModel
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &OpenAIAnalyzer{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

// Provider returns the provider name
func (a *OpenAIAnalyzer) Provider() string {
	return "openai"
}

// Analyze sends the prompt with the sketch as an image_url data URI part
func (a *OpenAIAnalyzer) Analyze(ctx context.Context, req relay.AnalysisRequest) (string, error) {
	prompt := BuildPrompt(req)

	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(prompt.User),
	}
	if len(req.Image.Data) > 0 {
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: dataURI(req.Image),
		}))
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(a.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(prompt.System),
			openai.UserMessage(parts),
		},
	}

	response, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", ErrEmptyFeedback
	}

	feedback := strings.TrimSpace(response.Choices[0].Message.Content)
	if feedback == "" {
		return "", ErrEmptyFeedback
	}
	return feedback, nil
}

var _ relay.Analyzer = (*OpenAIAnalyzer)(nil)
