package relay

import (
	"context"
	"time"
)

// Frame is one unit of client audio, forwarded to upstream without modification.
type Frame struct {
	Data []byte
	// Text is true when the frame arrived as a text message rather than binary.
	Text bool
}

// FrameSource is the inbound side of a stream. ReadFrame returns io.EOF when the client
// ends the stream and must return promptly once ctx is done.
type FrameSource interface {
	ReadFrame(ctx context.Context) (Frame, error)
}

// EventKind classifies an upstream transcription event.
type EventKind int

const (
	// EventOther covers lifecycle and metadata events that carry no transcript text
	EventOther EventKind = iota
	// EventText carries incrementally recognized text
	EventText
	// EventError carries a service-side error payload
	EventError
	// EventMalformed is a frame that could not be decoded
	EventMalformed
)

func (k EventKind) String() string {
	switch k {
	case EventText:
		return "text"
	case EventError:
		return "error"
	case EventMalformed:
		return "malformed"
	default:
		return "other"
	}
}

// Event is a decoded upstream transcription event.
type Event struct {
	Kind    EventKind
	Type    string
	Text    string
	Message string
}

// UpstreamConn is a persistent connection to the transcription service.
// Send and Recv may be called concurrently from different goroutines.
// Recv returns io.EOF when the service closes the connection normally.
type UpstreamConn interface {
	Send(ctx context.Context, frame Frame) error
	Recv(ctx context.Context) (Event, error)
	Close() error
}

// Dialer opens upstream connections.
type Dialer interface {
	Dial(ctx context.Context) (UpstreamConn, error)
}

// Concept is the topic a session is about.
type Concept struct {
	ID          string
	Name        string
	Explanation string
}

// ConceptResolver looks up concepts by topic reference.
type ConceptResolver interface {
	Lookup(id string) (Concept, bool)
}

// Turn is one student explanation and the feedback it received.
type Turn struct {
	TopicRef   string
	SessionID  string
	Transcript string
	Feedback   string
	Timestamp  time.Time
}

// HistoryStore persists conversation turns per topic.
type HistoryStore interface {
	Load(ctx context.Context, topicRef string) ([]Turn, error)
	Append(ctx context.Context, turn Turn) error
}

// Image is the sketch submitted with a finalize request.
type Image struct {
	Data      []byte
	MediaType string
}

// AnalysisRequest is everything the feedback analyzer sees for one turn.
type AnalysisRequest struct {
	Transcript string
	// Empty is set when nothing was recognized during the session.
	Empty    bool
	Image    Image
	Concept  Concept
	History  []Turn
	Terminal bool
}

// Analyzer turns a transcript and sketch into feedback text.
type Analyzer interface {
	Analyze(ctx context.Context, req AnalysisRequest) (string, error)
}

// Speech is synthesized audio.
type Speech struct {
	Audio  []byte
	Format string
}

// Synthesizer turns feedback text into speech.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (Speech, error)
}
