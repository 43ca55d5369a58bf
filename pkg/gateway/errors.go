package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"unicode/utf8"

	"github.com/gorilla/websocket"

	"github.com/harun/companion/pkg/relay"
)

var (
	ErrMissingField  = errors.New("missing required field")
	ErrInvalidUpload = errors.New("invalid upload")
)

// errorResponse is the JSON error body
type errorResponse struct {
	Detail string `json:"detail"`
	Code   string `json:"code"`
}

// maxCloseReason is the largest reason a close frame can carry
const maxCloseReason = 123

// statusFor maps relay and request errors onto HTTP status codes.
// Finalization errors come first: the session is already consumed whatever the cause.
func statusFor(err error) (int, string) {
	var fe *relay.FinalizationError
	if errors.As(err, &fe) {
		if fe.Stage == relay.StageConcept {
			return http.StatusInternalServerError, "finalization_failed_concept"
		}
		return http.StatusInternalServerError, "finalization_failed"
	}

	switch {
	case errors.Is(err, relay.ErrSessionNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, relay.ErrSessionAlreadyFinalized):
		return http.StatusGone, "session_already_finalized"
	case errors.Is(err, relay.ErrUpstreamUnavailable):
		return http.StatusBadGateway, "upstream_unavailable"
	case errors.Is(err, relay.ErrUnknownConcept), errors.Is(err, relay.ErrInvalidTopic),
		errors.Is(err, ErrMissingField), errors.Is(err, ErrInvalidUpload):
		return http.StatusBadRequest, "invalid_request"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// closeFor maps stream errors onto a websocket close code and a short fixed reason.
// The full error goes to the log; upstream errors can exceed a close frame.
func closeFor(err error) (int, string) {
	switch {
	case errors.Is(err, relay.ErrSessionNotFound):
		return websocket.ClosePolicyViolation, "session not found"
	case errors.Is(err, relay.ErrSessionAlreadyFinalized):
		return websocket.ClosePolicyViolation, "session already finalized"
	case errors.Is(err, relay.ErrUpstreamUnavailable):
		return websocket.CloseTryAgainLater, "upstream transcription unavailable"
	default:
		return websocket.CloseInternalServerErr, "stream failed"
	}
}

// truncateReason cuts s to fit a close frame without splitting a rune
func truncateReason(s string) string {
	if len(s) <= maxCloseReason {
		return s
	}
	s = s[:maxCloseReason]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	writeJSON(w, status, errorResponse{Detail: err.Error(), Code: code})
}
