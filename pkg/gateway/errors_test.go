package gateway

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"

	"github.com/harun/companion/pkg/relay"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: abc", relay.ErrSessionNotFound), http.StatusNotFound, "session_not_found"},
		{fmt.Errorf("%w: abc", relay.ErrSessionAlreadyFinalized), http.StatusGone, "session_already_finalized"},
		{fmt.Errorf("%w: dial", relay.ErrUpstreamUnavailable), http.StatusBadGateway, "upstream_unavailable"},
		{relay.ErrUnknownConcept, http.StatusBadRequest, "invalid_request"},
		{relay.ErrInvalidTopic, http.StatusBadRequest, "invalid_request"},
		{fmt.Errorf("%w: session_id", ErrMissingField), http.StatusBadRequest, "invalid_request"},
		{ErrInvalidUpload, http.StatusBadRequest, "invalid_request"},
		{&relay.FinalizationError{SessionID: "s", Stage: relay.StageSynthesis, Err: errors.New("tts")}, http.StatusInternalServerError, "finalization_failed"},
		{errors.New("surprise"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			status, code := statusFor(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestFinalizationErrorOutranksCause(t *testing.T) {
	err := &relay.FinalizationError{SessionID: "s", Stage: relay.StageConcept, Err: relay.ErrUnknownConcept}
	status, code := statusFor(err)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "finalization_failed_concept", code)

	err = &relay.FinalizationError{SessionID: "s", Stage: relay.StageAnalysis, Err: relay.ErrUpstreamUnavailable}
	status, code = statusFor(fmt.Errorf("wrapped: %w", err))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "finalization_failed", code)
}

func TestCloseFor(t *testing.T) {
	code, reason := closeFor(relay.ErrSessionNotFound)
	assert.Equal(t, websocket.ClosePolicyViolation, code)
	assert.Equal(t, "session not found", reason)

	code, _ = closeFor(relay.ErrSessionAlreadyFinalized)
	assert.Equal(t, websocket.ClosePolicyViolation, code)

	code, reason = closeFor(fmt.Errorf("%w: %s", relay.ErrUpstreamUnavailable, strings.Repeat("x", 300)))
	assert.Equal(t, websocket.CloseTryAgainLater, code)
	assert.LessOrEqual(t, len(reason), maxCloseReason)

	code, _ = closeFor(errors.New("other"))
	assert.Equal(t, websocket.CloseInternalServerErr, code)
}

func TestTruncateReason(t *testing.T) {
	assert.Equal(t, "short", truncateReason("short"))

	long := truncateReason(strings.Repeat("a", 200))
	assert.Len(t, long, maxCloseReason)

	// 122 ASCII bytes then a 3-byte rune straddling the limit
	mixed := truncateReason(strings.Repeat("a", 122) + "世界")
	assert.Equal(t, strings.Repeat("a", 122), mixed)
	assert.True(t, utf8.ValidString(mixed))
}

func TestClassifyClientError(t *testing.T) {
	assert.ErrorIs(t, classifyClientError(&websocket.CloseError{Code: websocket.CloseNormalClosure}), io.EOF)
	assert.ErrorIs(t, classifyClientError(&websocket.CloseError{Code: websocket.CloseGoingAway}), io.EOF)
	assert.ErrorIs(t, classifyClientError(&websocket.CloseError{Code: websocket.CloseNoStatusReceived}), io.EOF)
	assert.ErrorIs(t, classifyClientError(fmt.Errorf("read: %w", net.ErrClosed)), io.EOF)

	err := classifyClientError(&websocket.CloseError{Code: websocket.CloseAbnormalClosure})
	assert.NotErrorIs(t, err, io.EOF)
	assert.Error(t, err)
}
