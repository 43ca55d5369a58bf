package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harun/companion/internal/observability"
	"github.com/harun/companion/internal/tracing"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "companion.relay"

const (
	DefaultDrainTimeout   = time.Second
	DefaultHistoryTimeout = 5 * time.Second
)

// Config holds the collaborators and limits of a Manager
type Config struct {
	Dialer      Dialer
	Analyzer    Analyzer
	Synthesizer Synthesizer
	History     HistoryStore
	Concepts    ConceptResolver

	// DrainTimeout bounds every cancel-and-await of a listener.
	DrainTimeout time.Duration
	// HistoryTimeout bounds history loads and appends during Finalize.
	HistoryTimeout time.Duration

	Janitor JanitorConfig
	Logger  *zerolog.Logger
}

// Manager is the session relay manager: it owns the registry and runs streams and
// finalization against it.
type Manager struct {
	registry       *Registry
	dialer         Dialer
	analyzer       Analyzer
	synthesizer    Synthesizer
	history        HistoryStore
	concepts       ConceptResolver
	drainTimeout   time.Duration
	historyTimeout time.Duration
	janitor        *Janitor
	logger         zerolog.Logger
}

// New creates a Manager. Dialer, Analyzer and Synthesizer are required.
func New(cfg Config) (*Manager, error) {
	if cfg.Dialer == nil {
		return nil, fmt.Errorf("upstream dialer is required")
	}
	if cfg.Analyzer == nil {
		return nil, fmt.Errorf("analyzer is required")
	}
	if cfg.Synthesizer == nil {
		return nil, fmt.Errorf("synthesizer is required")
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}
	if cfg.HistoryTimeout <= 0 {
		cfg.HistoryTimeout = DefaultHistoryTimeout
	}

	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	observability.EnsureRegistered()

	m := &Manager{
		registry:       NewRegistry(),
		dialer:         cfg.Dialer,
		analyzer:       cfg.Analyzer,
		synthesizer:    cfg.Synthesizer,
		history:        cfg.History,
		concepts:       cfg.Concepts,
		drainTimeout:   cfg.DrainTimeout,
		historyTimeout: cfg.HistoryTimeout,
		logger:         logger.With().Str("component", "relay").Logger(),
	}
	m.janitor = newJanitor(m, cfg.Janitor)

	return m, nil
}

// Start starts background maintenance
func (m *Manager) Start() error {
	return m.janitor.Start()
}

// CreateSession registers a new session for topicRef and returns its id.
func (m *Manager) CreateSession(ctx context.Context, topicRef string) (string, error) {
	_, span := tracing.StartSpan(ctx, tracerName, "relay.create_session",
		attribute.String("concept_id", topicRef),
	)
	defer span.End()

	sess, err := m.registry.Create(topicRef)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	span.SetAttributes(attribute.String("session_id", sess.ID))
	observability.RecordSessionCreated()
	observability.SetActiveSessions(m.registry.Len())

	m.logger.Info().
		Str("session_id", sess.ID).
		Str("concept_id", topicRef).
		Msg("Session created")

	return sess.ID, nil
}

// Snapshot returns a read-only view of a live session
func (m *Manager) Snapshot(sessionID string) (SessionSnapshot, error) {
	sess, err := m.registry.Get(sessionID)
	if err != nil {
		return SessionSnapshot{}, err
	}
	return sess.Snapshot(), nil
}

// ActiveSessions returns the number of live sessions
func (m *Manager) ActiveSessions() int {
	return m.registry.Len()
}

// Abandon removes a session without producing feedback. Any running listener is
// cancelled and awaited.
func (m *Manager) Abandon(sessionID string) error {
	sess, err := m.registry.Remove(sessionID)
	if err != nil {
		return err
	}
	m.retire(sess, "abandoned")
	return nil
}

// retire tears down the listener of a session that has already left the registry.
func (m *Manager) retire(sess *Session, reason string) {
	if h := sess.retire(); h != nil {
		if !h.stop(m.drainTimeout) {
			observability.RecordDrainTimeout(reason)
			m.logger.Warn().
				Str("session_id", sess.ID).
				Dur("timeout", m.drainTimeout).
				Msg("Listener did not stop in time")
		}
	}
	observability.SetActiveSessions(m.registry.Len())
	if reason != "finalized" {
		observability.RecordSessionAbandoned(reason)
		m.logger.Info().Str("session_id", sess.ID).Str("reason", reason).Msg("Session abandoned")
	}
}

// Close stops background maintenance and abandons every live session.
func (m *Manager) Close(ctx context.Context) error {
	janitorErr := m.janitor.Stop(ctx)

	for _, sess := range m.registry.List() {
		if err := m.Abandon(sess.ID); err != nil && !errors.Is(err, ErrSessionAlreadyFinalized) && !errors.Is(err, ErrSessionNotFound) {
			m.logger.Warn().Err(err).Str("session_id", sess.ID).Msg("Failed to abandon session")
		}
	}

	m.logger.Info().Msg("Relay manager closed")
	return janitorErr
}
