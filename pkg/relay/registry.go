package relay

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry is the process-wide map of live sessions. Every operation is a single
// critical section, so readers never observe a half-inserted or half-removed record.
type Registry struct {
	mu      sync.RWMutex
	live    map[string]*Session
	retired map[string]time.Time

	newID func() string
	now   func() time.Time
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		live:    make(map[string]*Session),
		retired: make(map[string]time.Time),
		newID:   func() string { return uuid.New().String() },
		now:     time.Now,
	}
}

const maxIDAttempts = 8

// Create allocates a session for topicRef with an empty transcript and no listener.
func (r *Registry) Create(topicRef string) (*Session, error) {
	if topicRef == "" {
		return nil, ErrInvalidTopic
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i := 0; i < maxIDAttempts; i++ {
		id := r.newID()
		if _, exists := r.live[id]; exists {
			continue
		}
		if _, used := r.retired[id]; used {
			continue
		}

		s := newSession(id, topicRef, r.now())
		r.live[id] = s
		return s, nil
	}

	return nil, fmt.Errorf("failed to allocate session id after %d attempts", maxIDAttempts)
}

// Get looks up a live session.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if s, ok := r.live[id]; ok {
		return s, nil
	}
	return nil, r.missingLocked(id)
}

// Remove atomically deletes and returns a live session. Only one caller can ever
// receive a given session from Remove.
func (r *Registry) Remove(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.live[id]
	if !ok {
		return nil, r.missingLocked(id)
	}

	delete(r.live, id)
	r.retired[id] = r.now()
	return s, nil
}

func (r *Registry) missingLocked(id string) error {
	if _, ok := r.retired[id]; ok {
		return fmt.Errorf("%w: %s", ErrSessionAlreadyFinalized, id)
	}
	return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
}

// Len returns the number of live sessions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.live)
}

// List returns all live sessions
func (r *Registry) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*Session, 0, len(r.live))
	for _, s := range r.live {
		sessions = append(sessions, s)
	}
	return sessions
}

// Sweep removes sessions that have no listener and have been idle for at least idle.
// The removed sessions are returned so the caller can retire them.
func (r *Registry) Sweep(idle time.Duration) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var swept []*Session
	for id, s := range r.live {
		last, listening := s.idleSince()
		if listening || now.Sub(last) < idle {
			continue
		}
		delete(r.live, id)
		r.retired[id] = now
		swept = append(swept, s)
	}
	return swept
}

// PruneRetired forgets retired ids older than age. Pruned ids report not-found.
func (r *Registry) PruneRetired(age time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-age)
	pruned := 0
	for id, at := range r.retired {
		if at.Before(cutoff) {
			delete(r.retired, id)
			pruned++
		}
	}
	return pruned
}
