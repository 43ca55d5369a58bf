package tutor

import (
	"context"
	"fmt"
	"io"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/harun/companion/pkg/relay"
)

const (
	DefaultSpeechModel  = "gpt-4o-mini-tts"
	DefaultSpeechVoice  = "verse"
	DefaultSpeechFormat = "mp3"
)

// maxSpeechBytes caps how much audio is buffered for one reply.
const maxSpeechBytes = 32 << 20

// GrandpaVoice steers the speech model toward the persona.
const GrandpaVoice = `Accent/Affect: Warm, slightly gruff with occasional thoughtful pauses; embody a curious 75-year-old grandfather trying to understand.

Tone: Gentle but direct, with a paternal quality; genuinely interested but slightly no-nonsense.

Pacing: Slightly slower than average with brief pauses; use occasional "hmm" or "well now" as thinking sounds.

Emotion: Warmly interested, sometimes puzzled, pleased when understanding clicks.

Pronunciation: Slightly simplified for complex terms, occasionally repeating technical words carefully.

Personality Affect: Kind but straightforward, occasionally using phrases like "Let me see if I've got this right..." or "That's interesting, but I'm wondering..."`

// SpeechConfig configures an OpenAISynthesizer
type SpeechConfig struct {
	APIKey       string
	Model        string
	Voice        string
	Format       string
	Instructions string
	Options      []option.RequestOption
}

// OpenAISynthesizer implements relay.Synthesizer with the OpenAI speech API
type OpenAISynthesizer struct {
	client       openai.Client
	model        string
	voice        string
	format       string
	instructions string
}

// NewOpenAISynthesizer creates a synthesizer with the persona defaults filled in
func NewOpenAISynthesizer(cfg SpeechConfig) *OpenAISynthesizer {
	if cfg.Model == "" {
		cfg.Model = DefaultSpeechModel
	}
	if cfg.Voice == "" {
		cfg.Voice = DefaultSpeechVoice
	}
	if cfg.Format == "" {
		cfg.Format = DefaultSpeechFormat
	}
	if cfg.Instructions == "" {
		cfg.Instructions = GrandpaVoice
	}
	opts := append([]option.RequestOption{option.WithAPIKey(cfg.APIKey)}, cfg.Options...)
	return &OpenAISynthesizer{
		client:       openai.NewClient(opts...),
		model:        cfg.Model,
		voice:        cfg.Voice,
		format:       cfg.Format,
		instructions: cfg.Instructions,
	}
}

// Synthesize renders text to audio in the configured format
func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text string) (relay.Speech, error) {
	params := openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(s.model),
		Voice:          openai.AudioSpeechNewParamsVoice(s.voice),
		Instructions:   openai.String(s.instructions),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormat(s.format),
	}

	resp, err := s.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return relay.Speech{}, fmt.Errorf("openai speech: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxSpeechBytes))
	if err != nil {
		return relay.Speech{}, fmt.Errorf("read speech: %w", err)
	}
	if len(audio) == 0 {
		return relay.Speech{}, fmt.Errorf("openai speech: empty audio")
	}

	return relay.Speech{Audio: audio, Format: s.format}, nil
}

var _ relay.Synthesizer = (*OpenAISynthesizer)(nil)
