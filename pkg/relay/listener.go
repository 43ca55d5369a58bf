package relay

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/harun/companion/internal/observability"
	"github.com/rs/zerolog"
)

// listenerHandle is the ownership reference to one running listener goroutine.
type listenerHandle struct {
	streamID string
	cancel   context.CancelFunc
	done     chan struct{}
	err      error
}

// Done is closed once the listener goroutine has returned.
func (h *listenerHandle) Done() <-chan struct{} {
	return h.done
}

// Err reports why the listener stopped. Only valid after Done is closed; nil means the
// listener was cancelled.
func (h *listenerHandle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

func (h *listenerHandle) finished() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// stop cancels the listener and waits up to timeout for it to return. It reports false
// if the listener was still running when the timeout elapsed. Safe to call repeatedly.
func (h *listenerHandle) stop(timeout time.Duration) bool {
	h.cancel()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-h.done:
		return true
	case <-timer.C:
		return false
	}
}

// startListener spawns the goroutine that folds upstream events into sess.
func startListener(ctx context.Context, sess *Session, conn UpstreamConn, streamID string, logger zerolog.Logger) *listenerHandle {
	ctx, cancel := context.WithCancel(ctx)
	h := &listenerHandle{
		streamID: streamID,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go func() {
		defer close(h.done)
		defer cancel()
		h.err = runListener(ctx, sess, conn, logger)
	}()

	return h
}

// runListener consumes events until the connection closes or ctx is cancelled.
// Cancellation is an expected exit and returns nil.
func runListener(ctx context.Context, sess *Session, conn UpstreamConn, logger zerolog.Logger) error {
	logger.Debug().Msg("Upstream listener started")

	for {
		evt, err := conn.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Debug().Msg("Upstream listener cancelled")
				return nil
			}
			if errors.Is(err, io.EOF) {
				logger.Info().Msg("Upstream closed the transcription stream")
			} else {
				logger.Warn().Err(err).Msg("Upstream connection lost")
			}
			return err
		}

		observability.RecordTranscriptEvent(evt.Kind.String())

		switch evt.Kind {
		case EventText:
			if sess.appendText(evt.Text) {
				logger.Debug().Int("chars", len(evt.Text)).Msg("Transcript fragment appended")
			}
		case EventError:
			logger.Warn().
				Str("event_type", evt.Type).
				Str("upstream_error", evt.Message).
				Msg("Upstream reported an error, continuing")
		case EventMalformed:
			logger.Warn().Str("payload", evt.Message).Msg("Skipping undecodable upstream event")
		default:
			if evt.Type != "" {
				logger.Debug().Str("event_type", evt.Type).Msg("Ignoring upstream event")
			}
		}
	}
}
