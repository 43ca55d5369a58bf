package relay

import (
	"context"
	"errors"
	"time"

	"github.com/harun/companion/internal/observability"
	"github.com/harun/companion/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// FinalizeRequest ends a session with the student's sketch.
type FinalizeRequest struct {
	SessionID string
	Image     Image
	// Terminal marks the last explanation attempt for this concept.
	Terminal bool
}

// FinalizeResult is the produced turn.
type FinalizeResult struct {
	SessionID   string
	TopicRef    string
	Transcript  string
	Empty       bool
	Feedback    string
	Audio       []byte
	AudioFormat string
}

// Finalize consumes a session: it claims the record, stops any listener, and turns the
// accumulated transcript plus image into feedback and speech. Once the record is
// claimed every failure is a *FinalizationError and the session is never restored.
func (m *Manager) Finalize(ctx context.Context, req FinalizeRequest) (*FinalizeResult, error) {
	start := time.Now()
	ctx = tracing.WithSessionID(ctx, req.SessionID)
	ctx, span := tracing.StartSpan(ctx, tracerName, "relay.finalize",
		attribute.String("session_id", req.SessionID),
		attribute.Bool("terminal", req.Terminal),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, m.logger)

	result, err := m.finalize(ctx, req)

	outcome := "success"
	if err != nil {
		outcome = finalizeOutcome(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error().Err(err).Str("outcome", outcome).Msg("Finalize failed")
	} else {
		logger.Info().
			Int("transcript_chars", len(result.Transcript)).
			Int("audio_bytes", len(result.Audio)).
			Bool("terminal", req.Terminal).
			Msg("Session finalized")
	}
	observability.RecordFinalize(outcome, time.Since(start))

	return result, err
}

func (m *Manager) finalize(ctx context.Context, req FinalizeRequest) (*FinalizeResult, error) {
	logger := tracing.LoggerFromContext(ctx, m.logger)

	// Removing first is the claim: a concurrent Finalize or OpenStream now sees the
	// session as already finalized.
	sess, err := m.registry.Remove(req.SessionID)
	if err != nil {
		return nil, err
	}
	m.retire(sess, "finalized")

	transcript := sess.Transcript()
	empty := transcript == ""
	if empty {
		logger.Warn().Msg("Finalizing session with an empty transcript")
	}

	concept, err := m.resolveConcept(sess.TopicRef)
	if err != nil {
		return nil, &FinalizationError{SessionID: sess.ID, Stage: StageConcept, Err: err}
	}

	history := m.loadHistory(ctx, sess.TopicRef)

	analysisStart := time.Now()
	feedback, err := m.analyzer.Analyze(ctx, AnalysisRequest{
		Transcript: transcript,
		Empty:      empty,
		Image:      req.Image,
		Concept:    concept,
		History:    history,
		Terminal:   req.Terminal,
	})
	observability.RecordCollaboratorCall(StageAnalysis, time.Since(analysisStart), err == nil)
	if err != nil {
		return nil, &FinalizationError{SessionID: sess.ID, Stage: StageAnalysis, Err: err}
	}

	synthesisStart := time.Now()
	speech, err := m.synthesizer.Synthesize(ctx, feedback)
	observability.RecordCollaboratorCall(StageSynthesis, time.Since(synthesisStart), err == nil)
	if err != nil {
		return nil, &FinalizationError{SessionID: sess.ID, Stage: StageSynthesis, Err: err}
	}

	m.appendHistory(ctx, Turn{
		TopicRef:   sess.TopicRef,
		SessionID:  sess.ID,
		Transcript: transcript,
		Feedback:   feedback,
		Timestamp:  time.Now(),
	})

	return &FinalizeResult{
		SessionID:   sess.ID,
		TopicRef:    sess.TopicRef,
		Transcript:  transcript,
		Empty:       empty,
		Feedback:    feedback,
		Audio:       speech.Audio,
		AudioFormat: speech.Format,
	}, nil
}

func (m *Manager) resolveConcept(topicRef string) (Concept, error) {
	if m.concepts == nil {
		return Concept{ID: topicRef, Name: topicRef}, nil
	}
	concept, ok := m.concepts.Lookup(topicRef)
	if !ok {
		return Concept{}, ErrUnknownConcept
	}
	return concept, nil
}

// loadHistory never fails the turn; a missing history only weakens the prompt.
func (m *Manager) loadHistory(ctx context.Context, topicRef string) []Turn {
	if m.history == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, m.historyTimeout)
	defer cancel()

	turns, err := m.history.Load(ctx, topicRef)
	if err != nil {
		logger := tracing.LoggerFromContext(ctx, m.logger)
		logger.Warn().Err(err).Msg("Failed to load conversation history")
		return nil
	}
	return turns
}

func (m *Manager) appendHistory(ctx context.Context, turn Turn) {
	if m.history == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.historyTimeout)
	defer cancel()

	if err := m.history.Append(ctx, turn); err != nil {
		logger := tracing.LoggerFromContext(ctx, m.logger)
		logger.Warn().Err(err).Msg("Failed to persist conversation turn")
	}
}

func finalizeOutcome(err error) string {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return "not_found"
	case errors.Is(err, ErrSessionAlreadyFinalized):
		return "already_finalized"
	case errors.Is(err, ErrFinalizationFailed):
		return "failed"
	default:
		return "error"
	}
}
