package relay

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned when no session with the given id was ever created
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionAlreadyFinalized is returned when the session existed but has been consumed
	ErrSessionAlreadyFinalized = errors.New("session already finalized")

	// ErrUpstreamUnavailable is returned when the transcription service cannot be reached
	ErrUpstreamUnavailable = errors.New("upstream transcription unavailable")

	// ErrFinalizationFailed is matched by every error raised after a session was consumed
	ErrFinalizationFailed = errors.New("finalization failed")

	// ErrInvalidTopic is returned when a session is created without a topic reference
	ErrInvalidTopic = errors.New("topic reference is required")

	// ErrUnknownConcept is returned when the session topic is missing from the catalog
	ErrUnknownConcept = errors.New("unknown concept")
)

// Finalization stages reported by FinalizationError.
const (
	StageConcept   = "concept"
	StageAnalysis  = "analysis"
	StageSynthesis = "synthesis"
)

// FinalizationError reports a failure that happened after the session record was removed.
// The session stays removed; callers must create a new session to retry.
type FinalizationError struct {
	SessionID string
	Stage     string
	Err       error
}

func (e *FinalizationError) Error() string {
	return fmt.Sprintf("finalize session %s: %s: %v", e.SessionID, e.Stage, e.Err)
}

func (e *FinalizationError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrFinalizationFailed) hold for every FinalizationError.
func (e *FinalizationError) Is(target error) bool {
	return target == ErrFinalizationFailed
}
