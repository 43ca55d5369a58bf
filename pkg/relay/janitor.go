package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	DefaultSweepInterval  = time.Minute
	DefaultIdleTimeout    = 30 * time.Minute
	DefaultRetiredHorizon = 24 * time.Hour
)

// JanitorConfig controls the abandonment sweep.
type JanitorConfig struct {
	// Interval between sweeps. Zero uses DefaultSweepInterval.
	Interval time.Duration
	// IdleTimeout is how long a session without a listener may sit untouched.
	IdleTimeout time.Duration
	// RetiredHorizon is how long finalized ids keep reporting already-finalized.
	RetiredHorizon time.Duration
}

// Janitor periodically abandons idle sessions and forgets old retired ids.
type Janitor struct {
	manager *Manager
	cfg     JanitorConfig
	cron    *cron.Cron

	mu      sync.Mutex
	running bool
}

func newJanitor(m *Manager, cfg JanitorConfig) *Janitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSweepInterval
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.RetiredHorizon <= 0 {
		cfg.RetiredHorizon = DefaultRetiredHorizon
	}
	return &Janitor{manager: m, cfg: cfg}
}

// Start schedules the sweep
func (j *Janitor) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		return fmt.Errorf("janitor is already running")
	}

	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", j.cfg.Interval), func() { j.Sweep() }); err != nil {
		return fmt.Errorf("failed to schedule session sweep: %w", err)
	}
	c.Start()

	j.cron = c
	j.running = true

	j.manager.logger.Info().
		Dur("interval", j.cfg.Interval).
		Dur("idle_timeout", j.cfg.IdleTimeout).
		Msg("Session janitor started")

	return nil
}

// Stop unschedules the sweep and waits for a running sweep to finish or ctx to end.
func (j *Janitor) Stop(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.running {
		return nil
	}
	j.running = false

	select {
	case <-j.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sweep abandons idle sessions and prunes retired ids. It returns the number of
// sessions abandoned.
func (j *Janitor) Sweep() int {
	m := j.manager
	swept := m.registry.Sweep(j.cfg.IdleTimeout)
	for _, sess := range swept {
		m.retire(sess, "idle")
	}

	pruned := m.registry.PruneRetired(j.cfg.RetiredHorizon)
	if len(swept) > 0 || pruned > 0 {
		m.logger.Info().
			Int("abandoned", len(swept)).
			Int("pruned_ids", pruned).
			Msg("Session sweep completed")
	}
	return len(swept)
}
