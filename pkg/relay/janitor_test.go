package relay

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func zerologNop() zerolog.Logger {
	return zerolog.Nop()
}

type nopDialer struct{}

func (nopDialer) Dial(ctx context.Context) (UpstreamConn, error) { return newStubConn(false), nil }

type nopAnalyzer struct{}

func (nopAnalyzer) Analyze(ctx context.Context, req AnalysisRequest) (string, error) {
	return "ok", nil
}

type nopSynth struct{}

func (nopSynth) Synthesize(ctx context.Context, text string) (Speech, error) {
	return Speech{Audio: []byte{1}, Format: "mp3"}, nil
}

func newTestManager(t *testing.T, janitor JanitorConfig) *Manager {
	t.Helper()
	logger := zerologNop()
	m, err := New(Config{
		Dialer:      nopDialer{},
		Analyzer:    nopAnalyzer{},
		Synthesizer: nopSynth{},
		Janitor:     janitor,
		Logger:      &logger,
	})
	require.NoError(t, err)
	return m
}

func TestJanitorSweep(t *testing.T) {
	m := newTestManager(t, JanitorConfig{IdleTimeout: time.Minute, RetiredHorizon: time.Hour})

	now := time.Now()
	m.registry.now = func() time.Time { return now }

	stale, err := m.CreateSession(context.Background(), "t")
	require.NoError(t, err)
	fresh, err := m.CreateSession(context.Background(), "t")
	require.NoError(t, err)

	sess, err := m.registry.Get(stale)
	require.NoError(t, err)
	sess.mu.Lock()
	sess.lastActivity = now.Add(-2 * time.Minute)
	sess.mu.Unlock()

	assert.Equal(t, 1, m.janitor.Sweep())
	assert.Equal(t, 1, m.ActiveSessions())

	_, err = m.Finalize(context.Background(), FinalizeRequest{SessionID: stale})
	assert.ErrorIs(t, err, ErrSessionAlreadyFinalized)
	_, err = m.Snapshot(fresh)
	assert.NoError(t, err)

	now = now.Add(2 * time.Hour)
	m.janitor.Sweep()
	_, err = m.Finalize(context.Background(), FinalizeRequest{SessionID: stale})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestJanitorStartStop(t *testing.T) {
	m := newTestManager(t, JanitorConfig{Interval: time.Hour})

	require.NoError(t, m.Start())
	assert.Error(t, m.Start())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.janitor.Stop(ctx))
	require.NoError(t, m.janitor.Stop(ctx))
}

func TestJanitorDefaults(t *testing.T) {
	j := newJanitor(nil, JanitorConfig{})
	assert.Equal(t, DefaultSweepInterval, j.cfg.Interval)
	assert.Equal(t, DefaultIdleTimeout, j.cfg.IdleTimeout)
	assert.Equal(t, DefaultRetiredHorizon, j.cfg.RetiredHorizon)
}
