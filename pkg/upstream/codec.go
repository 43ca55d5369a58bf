package upstream

import (
	"encoding/json"
	"strings"

	"github.com/harun/companion/pkg/relay"
)

// Realtime transcription event types that carry or announce text.
const (
	TypeTranscriptionCompleted = "conversation.item.input_audio_transcription.completed"
	TypeTranscriptionDelta     = "conversation.item.input_audio_transcription.delta"
	TypeError                  = "error"
)

type wireEvent struct {
	Type       string          `json:"type"`
	Text       *string         `json:"text"`
	Transcript *string         `json:"transcript"`
	Error      json.RawMessage `json:"error"`
}

type wireError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// DecodeEvent classifies one upstream message.
//
// A payload with a "text" field is recognized text. A payload with an "error"
// field is a service error whose message may be a plain string or an object
// with a message. Completed realtime transcriptions carry their text in
// "transcript". Deltas and lifecycle events are reported as EventOther so the
// final text is not appended twice. Anything that is not a JSON object is
// EventMalformed.
func DecodeEvent(data []byte) relay.Event {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return relay.Event{Kind: relay.EventMalformed, Message: err.Error()}
	}

	if len(w.Error) > 0 && string(w.Error) != "null" {
		return relay.Event{Kind: relay.EventError, Type: w.Type, Message: errorMessage(w.Error)}
	}

	switch {
	case w.Text != nil:
		return relay.Event{Kind: relay.EventText, Type: w.Type, Text: *w.Text}
	case w.Type == TypeTranscriptionCompleted && w.Transcript != nil:
		return relay.Event{Kind: relay.EventText, Type: w.Type, Text: *w.Transcript}
	}

	return relay.Event{Kind: relay.EventOther, Type: w.Type}
}

func errorMessage(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var we wireError
	if err := json.Unmarshal(raw, &we); err == nil && we.Message != "" {
		parts := make([]string, 0, 2)
		if we.Code != "" {
			parts = append(parts, we.Code)
		} else if we.Type != "" {
			parts = append(parts, we.Type)
		}
		parts = append(parts, we.Message)
		return strings.Join(parts, ": ")
	}

	return string(raw)
}
