package relay

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/harun/companion/internal/observability"
	"github.com/harun/companion/internal/tracing"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// StreamState is the phase of one client relay.
type StreamState int

const (
	StateConnecting StreamState = iota
	StateBridging
	StateDraining
	StateClosed
)

func (s StreamState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateBridging:
		return "bridging"
	case StateDraining:
		return "draining"
	default:
		return "closed"
	}
}

// Reasons a bridging loop ends.
const (
	StopClientClosed   = "client_closed"
	StopClientError    = "client_error"
	StopUpstreamClosed = "upstream_closed"
	StopListenerDone   = "listener_done"
	StopCancelled      = "cancelled"
)

type stream struct {
	id     string
	sess   *Session
	state  StreamState
	logger zerolog.Logger
}

func (st *stream) transition(next StreamState) {
	st.logger.Debug().
		Str("from", st.state.String()).
		Str("to", next.String()).
		Msg("Stream state changed")
	st.state = next
}

// OpenStream relays frames from src to a fresh upstream connection until the client
// ends the stream, upstream goes away, or ctx is cancelled. Connection loss on either
// side is a normal end and returns nil; the accumulated transcript stays on the session
// for Finalize.
func (m *Manager) OpenStream(ctx context.Context, sessionID string, src FrameSource) error {
	streamID, err := gonanoid.New()
	if err != nil {
		return fmt.Errorf("failed to allocate stream id: %w", err)
	}

	ctx = tracing.WithSessionID(ctx, sessionID)
	ctx = tracing.WithStreamID(ctx, streamID)
	ctx, span := tracing.StartSpan(ctx, tracerName, "relay.open_stream",
		attribute.String("session_id", sessionID),
		attribute.String("stream_id", streamID),
	)
	defer span.End()

	st := &stream{
		id:     streamID,
		state:  StateConnecting,
		logger: tracing.LoggerFromContext(ctx, m.logger),
	}

	sess, err := m.registry.Get(sessionID)
	if err != nil {
		st.transition(StateClosed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	st.sess = sess

	st.transition(StateBridging)
	conn, handle, err := m.bridge(ctx, st)
	if err != nil {
		st.transition(StateClosed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	observability.StreamStarted()
	st.logger.Info().Str("concept_id", sess.TopicRef).Msg("Relaying client audio to upstream")

	reason := m.relayFrames(ctx, st, src, conn, handle)
	span.SetAttributes(attribute.String("stop_reason", reason))

	st.transition(StateDraining)
	if !handle.stop(m.drainTimeout) {
		observability.RecordDrainTimeout("stream")
		st.logger.Warn().
			Dur("timeout", m.drainTimeout).
			Msg("Upstream listener did not stop in time, releasing resources anyway")
	}
	if lerr := handle.Err(); lerr != nil && !errors.Is(lerr, io.EOF) {
		st.logger.Debug().Err(lerr).Msg("Upstream listener ended with error")
	}

	st.transition(StateClosed)
	if err := conn.Close(); err != nil {
		st.logger.Debug().Err(err).Msg("Failed to close upstream connection")
	}
	sess.detachListener(handle)
	observability.StreamEnded(reason)

	st.logger.Info().Str("reason", reason).Msg("Stream closed")
	return nil
}

// bridge replaces any running listener, dials upstream and attaches a new listener.
// The previous listener is always cancelled and awaited before the dial.
func (m *Manager) bridge(ctx context.Context, st *stream) (UpstreamConn, *listenerHandle, error) {
	sess := st.sess
	sess.handover.Lock()
	defer sess.handover.Unlock()

	if prev := sess.takeListener(); prev != nil {
		st.logger.Warn().
			Str("previous_stream_id", prev.streamID).
			Msg("Session already has a live listener, cancelling it")
		if !prev.stop(m.drainTimeout) {
			observability.RecordDrainTimeout("handover")
			st.logger.Warn().
				Dur("timeout", m.drainTimeout).
				Msg("Previous listener did not stop in time")
		}
	}

	conn, err := m.dialer.Dial(ctx)
	if err != nil {
		st.logger.Error().Err(err).Msg("Failed to connect to upstream transcription")
		return nil, nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}

	handle := startListener(ctx, sess, conn, st.id, st.logger.With().Str("component", "listener").Logger())
	if err := sess.attachListener(handle); err != nil {
		handle.stop(m.drainTimeout)
		_ = conn.Close()
		return nil, nil, fmt.Errorf("%w: %s", err, sess.ID)
	}

	return conn, handle, nil
}

// relayFrames forwards client frames verbatim until one side stops. A listener that has
// terminated means the upstream pipe is dead, so it is checked before every read and a
// watcher interrupts a blocked read as soon as the listener exits.
func (m *Manager) relayFrames(ctx context.Context, st *stream, src FrameSource, conn UpstreamConn, handle *listenerHandle) string {
	relayCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-handle.Done():
			cancel()
		case <-relayCtx.Done():
		}
	}()

	for {
		if handle.finished() {
			return StopListenerDone
		}

		frame, err := src.ReadFrame(relayCtx)
		if err != nil {
			switch {
			case handle.finished():
				return StopListenerDone
			case ctx.Err() != nil:
				return StopCancelled
			case errors.Is(err, io.EOF):
				return StopClientClosed
			default:
				st.logger.Debug().Err(err).Msg("Client read failed")
				return StopClientError
			}
		}

		if err := conn.Send(relayCtx, frame); err != nil {
			if handle.finished() {
				return StopListenerDone
			}
			st.logger.Warn().Err(err).Msg("Failed to forward frame upstream")
			return StopUpstreamClosed
		}

		observability.RecordFrameRelayed(len(frame.Data))
		st.sess.touch()
	}
}
