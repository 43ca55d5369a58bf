package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/harun/companion/internal/observability"
	"github.com/harun/companion/pkg/relay"
)

const (
	defaultMaxUpload     = 10 << 20
	defaultMaxFrame      = 1 << 20
	defaultShutdownGrace = 30 * time.Second

	limiterPruneInterval = 5 * time.Minute
)

// SessionService is the relay surface the gateway drives
type SessionService interface {
	CreateSession(ctx context.Context, topicRef string) (string, error)
	OpenStream(ctx context.Context, sessionID string, src relay.FrameSource) error
	Finalize(ctx context.Context, req relay.FinalizeRequest) (*relay.FinalizeResult, error)
	Abandon(sessionID string) error
	Snapshot(sessionID string) (relay.SessionSnapshot, error)
	ActiveSessions() int
}

// ConceptCatalog is the read side of the concept table
type ConceptCatalog interface {
	Lookup(id string) (relay.Concept, bool)
	List() []relay.Concept
}

// Config holds server configuration
type Config struct {
	Addr           string
	Sessions       SessionService
	Concepts       ConceptCatalog
	SharedSecret   string
	AllowedOrigins []string
	MaxUploadBytes int64
	MaxFrameBytes  int64
	// RequestsPerMinute and MaxConcurrent bound POST requests per client address.
	// Zero disables the limit.
	RequestsPerMinute int
	MaxConcurrent     int
	ShutdownGrace     time.Duration
	Logger            *zerolog.Logger
}

// Server is the HTTP and websocket front of the relay
type Server struct {
	addr           string
	sessions       SessionService
	concepts       ConceptCatalog
	sharedSecret   string
	allowedOrigins []string
	maxUpload      int64
	maxFrame       int64
	shutdownGrace  time.Duration
	limiters       *RateLimiters
	conns          *ConnRegistry
	upgrader       websocket.Upgrader
	server         *http.Server
	handler        http.Handler
	logger         zerolog.Logger

	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlight       sync.WaitGroup
	stopOnce       sync.Once
	done           chan struct{}
}

// NewServer creates a server. Sessions is required.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session service is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8000"
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUpload
	}
	if cfg.MaxFrameBytes <= 0 {
		cfg.MaxFrameBytes = defaultMaxFrame
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = defaultShutdownGrace
	}

	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	s := &Server{
		addr:           cfg.Addr,
		sessions:       cfg.Sessions,
		concepts:       cfg.Concepts,
		sharedSecret:   cfg.SharedSecret,
		allowedOrigins: cfg.AllowedOrigins,
		maxUpload:      cfg.MaxUploadBytes,
		maxFrame:       cfg.MaxFrameBytes,
		shutdownGrace:  cfg.ShutdownGrace,
		conns:          NewConnRegistry(),
		done:           make(chan struct{}),
		logger:         logger.With().Str("component", "gateway").Logger(),
	}
	if cfg.RequestsPerMinute > 0 || cfg.MaxConcurrent > 0 {
		s.limiters = NewRateLimiters(cfg.RequestsPerMinute, cfg.MaxConcurrent)
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	s.handler = s.routes()

	return s, nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /session/initiate", s.tracked(s.handleInitiate))
	mux.HandleFunc("GET /session/stream/{id}", s.handleStream)
	mux.HandleFunc("POST /session/finalize", s.tracked(s.handleFinalize))
	mux.HandleFunc("GET /session/{id}", s.handleSnapshot)
	mux.HandleFunc("DELETE /session/{id}", s.tracked(s.handleAbandon))
	mux.HandleFunc("GET /concepts", s.handleConcepts)
	mux.HandleFunc("GET /streams", s.handleStreams)
	mux.Handle("GET /metrics", observability.MetricsHandler())
	mux.HandleFunc("GET /healthz", s.handleHealth)

	return chain(mux, s.withRequestContext, s.withCORS, s.withSecret, s.withRateLimit)
}

// Handler returns the fully wrapped HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// tracked rejects new work during shutdown and counts in-flight requests
func (s *Server) tracked(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.enter() {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Detail: "server is shutting down", Code: "shutting_down"})
			return
		}
		defer s.inFlight.Done()
		h(w, r)
	}
}

func (s *Server) enter() bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	if s.isShuttingDown {
		return false
	}
	s.inFlight.Add(1)
	return true
}

// Start listens on the configured address and serves in the background
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln in the background
func (s *Server) Serve(ln net.Listener) error {
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Starting gateway server")

	if s.limiters != nil {
		go s.pruneLimiters(limiterPruneInterval)
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Gateway server error")
		}
	}()
	return nil
}

// Stop drains in-flight finalizations, closes streams and shuts the listener
func (s *Server) Stop(ctx context.Context) error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()
	s.stopOnce.Do(func() { close(s.done) })

	s.logger.Info().Msg("Shutting down gateway server")

	done := make(chan struct{})
	go func() {
		s.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight requests completed")
	case <-time.After(s.shutdownGrace):
		s.logger.Warn().Msg("Shutdown grace elapsed, forcing close")
	case <-ctx.Done():
		s.logger.Warn().Msg("Shutdown cancelled, forcing close")
	}

	s.conns.CloseAll("server shutting down")

	if s.server == nil {
		return nil
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info().Msg("Gateway server stopped")
	return nil
}

func (s *Server) shuttingDown() bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	return s.isShuttingDown
}

func (s *Server) pruneLimiters(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := s.limiters.Prune(interval); n > 0 {
				s.logger.Debug().Int("dropped", n).Msg("Pruned idle rate limiters")
			}
		case <-s.done:
			return
		}
	}
}
