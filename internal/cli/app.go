package cli

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/harun/companion/internal/config"
	"github.com/harun/companion/internal/tracing"
	"github.com/harun/companion/pkg/concepts"
	"github.com/harun/companion/pkg/gateway"
	"github.com/harun/companion/pkg/history"
	"github.com/harun/companion/pkg/relay"
	"github.com/harun/companion/pkg/tutor"
	"github.com/harun/companion/pkg/upstream"
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.NewLoader(cfgFile, envFile).Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// app is the wired service: catalog, relay manager and gateway
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	catalog *concepts.Catalog
	watcher *concepts.Watcher
	manager *relay.Manager
	gateway *gateway.Server
}

func newApp(cfg *config.Config, logger zerolog.Logger) (*app, error) {
	durations, err := cfg.Relay.Durations()
	if err != nil {
		return nil, err
	}

	catalog, err := concepts.Load(cfg.Concepts.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to load concepts: %w", err)
	}

	store, err := history.NewStore(cfg.History.Dir)
	if err != nil {
		return nil, err
	}

	dialer, err := upstream.NewDialer(upstream.DialerConfig{
		URL:    cfg.OpenAI.TranscriptionURL,
		APIKey: cfg.OpenAI.APIKey,
	})
	if err != nil {
		return nil, err
	}

	analyzer, err := tutor.NewAnalyzer(cfg)
	if err != nil {
		return nil, err
	}

	relayLogger := logger.With().Str("component", "relay").Logger()
	manager, err := relay.New(relay.Config{
		Dialer:         dialer,
		Analyzer:       analyzer,
		Synthesizer:    tutor.NewSynthesizer(cfg),
		History:        store,
		Concepts:       catalog,
		DrainTimeout:   durations.Drain,
		HistoryTimeout: durations.History,
		Janitor: relay.JanitorConfig{
			Interval:       durations.SweepInterval,
			IdleTimeout:    durations.Idle,
			RetiredHorizon: durations.RetiredHorizon,
		},
		Logger: &relayLogger,
	})
	if err != nil {
		return nil, err
	}

	gatewayLogger := logger.With().Str("component", "gateway").Logger()
	srv, err := gateway.NewServer(gateway.Config{
		Addr:              cfg.Server.Addr(),
		Sessions:          manager,
		Concepts:          catalog,
		SharedSecret:      cfg.Server.SharedSecret,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		MaxUploadBytes:    int64(cfg.Server.MaxUploadMB) << 20,
		RequestsPerMinute: cfg.Server.RequestsPerMinute,
		MaxConcurrent:     cfg.Server.MaxConcurrent,
		Logger:            &gatewayLogger,
	})
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		catalog: catalog,
		manager: manager,
		gateway: srv,
	}

	if cfg.Concepts.Watch {
		a.watcher, err = concepts.NewWatcher(catalog, 0, func(err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("Concept reload failed, keeping previous catalog")
				return
			}
			logger.Info().Int("concepts", catalog.Len()).Msg("Concept catalog reloaded")
		})
		if err != nil {
			return nil, err
		}
	}

	return a, nil
}

func (a *app) start() error {
	if a.cfg.Tracing.Enabled {
		opts := tracing.Options{
			ServiceName:      "companion",
			ServiceVersion:   version,
			SampleRatio:      a.cfg.Tracing.SampleRatio,
			AnalysisProvider: a.cfg.Analysis.Provider,
		}
		if u, err := url.Parse(a.cfg.OpenAI.TranscriptionURL); err == nil {
			opts.UpstreamHost = u.Host
		}
		if err := tracing.InitOpenTelemetry(opts); err != nil {
			return fmt.Errorf("failed to init tracing: %w", err)
		}
	}
	if a.watcher != nil {
		if err := a.watcher.Start(); err != nil {
			return err
		}
	}
	if err := a.manager.Start(); err != nil {
		return err
	}
	if err := a.gateway.Start(); err != nil {
		return err
	}

	a.logger.Info().
		Str("addr", a.cfg.Server.Addr()).
		Int("concepts", a.catalog.Len()).
		Str("analysis_provider", a.cfg.Analysis.Provider).
		Msg("Companion started")
	return nil
}

// stop shuts down in reverse order; in-flight finalizations drain before sessions are abandoned
func (a *app) stop(ctx context.Context) error {
	var errs []error
	if err := a.gateway.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.manager.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.watcher != nil {
		if err := a.watcher.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := tracing.ShutdownOpenTelemetry(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
