package relay

import (
	"strings"
	"sync"
	"time"
)

// Session is the shared record of one live speaking turn. The registry owns it; the
// stream handler and the listener only ever hold the pointer handed out by the registry.
type Session struct {
	ID        string
	TopicRef  string
	CreatedAt time.Time

	// handover serializes listener replacement so a new upstream connection is never
	// opened while a previous listener is still running.
	handover sync.Mutex

	mu           sync.Mutex
	segments     []string
	listener     *listenerHandle
	lastActivity time.Time
	streams      int
	retired      bool
}

// SessionSnapshot is a read-only view of a session.
type SessionSnapshot struct {
	ID           string    `json:"session_id"`
	TopicRef     string    `json:"concept_id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	Segments     int       `json:"segments"`
	Streams      int       `json:"streams"`
	Listening    bool      `json:"listening"`
}

func newSession(id, topicRef string, now time.Time) *Session {
	return &Session{
		ID:           id,
		TopicRef:     topicRef,
		CreatedAt:    now,
		lastActivity: now,
	}
}

// appendText adds one recognized fragment. Blank fragments are dropped.
func (s *Session) appendText(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.segments = append(s.segments, text)
	s.lastActivity = time.Now()
	return true
}

// Transcript returns the accumulated text, fragments separated by a single space.
func (s *Session) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return strings.Join(s.segments, TranscriptDelimiter)
}

// TranscriptDelimiter separates recognized fragments in a transcript.
const TranscriptDelimiter = " "

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// attachListener records h as the session's listener. It fails once the session has
// been retired so no listener outlives finalization unnoticed.
func (s *Session) attachListener(h *listenerHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.retired {
		return ErrSessionAlreadyFinalized
	}
	s.listener = h
	s.streams++
	s.lastActivity = time.Now()
	return nil
}

// detachListener clears the handle only if it is still h.
func (s *Session) detachListener(h *listenerHandle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != h {
		return false
	}
	s.listener = nil
	s.lastActivity = time.Now()
	return true
}

// takeListener detaches and returns the current listener, if any.
func (s *Session) takeListener() *listenerHandle {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.listener
	s.listener = nil
	return h
}

// retire marks the session consumed and hands back its listener for teardown.
func (s *Session) retire() *listenerHandle {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.retired = true
	h := s.listener
	s.listener = nil
	return h
}

func (s *Session) idleSince() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastActivity, s.listener != nil
}

// Snapshot returns the current state of the session.
func (s *Session) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return SessionSnapshot{
		ID:           s.ID,
		TopicRef:     s.TopicRef,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.lastActivity,
		Segments:     len(s.segments),
		Streams:      s.streams,
		Listening:    s.listener != nil,
	}
}
