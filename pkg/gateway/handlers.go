package gateway

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/harun/companion/internal/tracing"
	"github.com/harun/companion/pkg/relay"
)

const defaultImageType = "image/webp"

type initiateRequest struct {
	ConceptID string `json:"concept_id"`
}

type initiateResponse struct {
	SessionID           string `json:"session_id"`
	AudioStreamEndpoint string `json:"audio_stream_endpoint"`
}

type finalizeResponse struct {
	SessionID     string `json:"session_id"`
	Transcription string `json:"transcription"`
	Feedback      string `json:"feedback"`
	AudioData     string `json:"audio_data"`
	AudioFormat   string `json:"audio_format"`
}

type conceptInfo struct {
	ID      string `json:"id"`
	Concept string `json:"concept"`
}

func streamEndpoint(sessionID string) string {
	return "/session/stream/" + sessionID
}

func (s *Server) handleInitiate(w http.ResponseWriter, r *http.Request) {
	conceptID, err := readConceptID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if s.concepts != nil {
		if _, ok := s.concepts.Lookup(conceptID); !ok {
			writeError(w, fmt.Errorf("%w: %s", relay.ErrUnknownConcept, conceptID))
			return
		}
	}

	id, err := s.sessions.CreateSession(r.Context(), conceptID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, initiateResponse{
		SessionID:           id,
		AudioStreamEndpoint: streamEndpoint(id),
	})
}

// readConceptID accepts a JSON body or form fields
func readConceptID(r *http.Request) (string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var conceptID string
	if mediaType == "application/json" {
		var req initiateRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil {
			return "", fmt.Errorf("%w: invalid JSON body: %v", ErrInvalidUpload, err)
		}
		conceptID = req.ConceptID
	} else {
		if mediaType == "multipart/form-data" {
			if err := r.ParseMultipartForm(64 << 10); err != nil {
				return "", fmt.Errorf("%w: %v", ErrInvalidUpload, err)
			}
		}
		conceptID = r.FormValue("concept_id")
	}

	conceptID = strings.TrimSpace(conceptID)
	if conceptID == "" {
		return "", fmt.Errorf("%w: concept_id", ErrMissingField)
	}
	return conceptID, nil
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.shuttingDown() {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Detail: "server is shutting down", Code: "shutting_down"})
		return
	}

	sessionID := r.PathValue("id")
	logger := tracing.LoggerFromContext(r.Context(), s.logger).With().Str("session_id", sessionID).Logger()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	connID, err := gonanoid.New()
	if err != nil {
		_ = ws.Close()
		logger.Error().Err(err).Msg("Failed to allocate connection id")
		return
	}

	s.conns.Add(&streamConn{
		ID:          connID,
		SessionID:   sessionID,
		Conn:        ws,
		RemoteAddr:  r.RemoteAddr,
		ConnectedAt: time.Now(),
	})
	defer s.conns.Remove(connID)

	logger.Info().Str("conn_id", connID).Str("remote_addr", r.RemoteAddr).Msg("Client stream connected")

	code, text := websocket.CloseNormalClosure, "stream ended"
	if err := s.sessions.OpenStream(r.Context(), sessionID, newFrameSource(ws, s.maxFrame)); err != nil {
		code, text = closeFor(err)
		logger.Warn().Err(err).Int("close_code", code).Msg("Stream rejected")
	}

	msg := websocket.FormatCloseMessage(code, truncateReason(text))
	if err := ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		logger.Debug().Err(err).Int("close_code", code).Msg("Failed to send close frame")
	}
	_ = ws.Close()

	logger.Info().Str("conn_id", connID).Msg("Client stream disconnected")
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	req, err := s.readFinalize(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := s.sessions.Finalize(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, finalizeResponse{
		SessionID:     result.SessionID,
		Transcription: result.Transcript,
		Feedback:      result.Feedback,
		AudioData:     base64.StdEncoding.EncodeToString(result.Audio),
		AudioFormat:   result.AudioFormat,
	})
}

func (s *Server) readFinalize(w http.ResponseWriter, r *http.Request) (relay.FinalizeRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		return relay.FinalizeRequest{}, fmt.Errorf("%w: %v", ErrInvalidUpload, err)
	}

	sessionID := strings.TrimSpace(r.FormValue("session_id"))
	if sessionID == "" {
		return relay.FinalizeRequest{}, fmt.Errorf("%w: session_id", ErrMissingField)
	}

	terminal := false
	if v := strings.TrimSpace(r.FormValue("last_explanation")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return relay.FinalizeRequest{}, fmt.Errorf("%w: last_explanation must be a boolean", ErrInvalidUpload)
		}
		terminal = b
	}

	file, header, err := r.FormFile("notepad_image")
	if err != nil {
		return relay.FinalizeRequest{}, fmt.Errorf("%w: notepad_image", ErrMissingField)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return relay.FinalizeRequest{}, fmt.Errorf("%w: read notepad_image: %v", ErrInvalidUpload, err)
	}
	if len(data) == 0 {
		return relay.FinalizeRequest{}, fmt.Errorf("%w: notepad_image is empty", ErrInvalidUpload)
	}

	mediaType := header.Header.Get("Content-Type")
	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = defaultImageType
	}

	return relay.FinalizeRequest{
		SessionID: sessionID,
		Image:     relay.Image{Data: data, MediaType: mediaType},
		Terminal:  terminal,
	}, nil
}

func (s *Server) handleAbandon(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Abandon(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.sessions.Snapshot(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleConcepts(w http.ResponseWriter, r *http.Request) {
	infos := []conceptInfo{}
	if s.concepts != nil {
		for _, c := range s.concepts.List() {
			infos = append(infos, conceptInfo{ID: c.ID, Concept: c.Name})
		}
	}
	writeJSON(w, http.StatusOK, infos)
}

func (s *Server) handleStreams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.conns.List())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if s.shuttingDown() {
		status = "shutting_down"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":          status,
		"active_sessions": s.sessions.ActiveSessions(),
		"active_streams":  s.conns.Count(),
	})
}
