// Package upstream connects sessions to the realtime transcription service.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/harun/companion/pkg/relay"
)

// DefaultURL is the OpenAI realtime transcription endpoint.
const DefaultURL = "wss://api.openai.com/v1/realtime?intent=transcription"

const defaultHandshakeTimeout = 10 * time.Second

// ErrMissingAPIKey is returned by NewDialer when no key is configured.
var ErrMissingAPIKey = errors.New("upstream: api key is required")

// DialerConfig configures a Dialer
type DialerConfig struct {
	URL              string
	APIKey           string
	HandshakeTimeout time.Duration
	// Header is merged into the handshake request after the defaults.
	Header http.Header
}

// Dialer opens one upstream connection per client stream
type Dialer struct {
	url    string
	header http.Header
	ws     *websocket.Dialer
	logger zerolog.Logger
}

// NewDialer creates a dialer with the bearer and realtime beta headers set
func NewDialer(cfg DialerConfig) (*Dialer, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+cfg.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")
	for k, vs := range cfg.Header {
		for _, v := range vs {
			header.Add(k, v)
		}
	}

	return &Dialer{
		url:    cfg.URL,
		header: header,
		ws: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		logger: log.With().Str("component", "upstream").Logger(),
	}, nil
}

// Dial connects to the transcription service
func (d *Dialer) Dial(ctx context.Context) (relay.UpstreamConn, error) {
	ws, resp, err := d.ws.DialContext(ctx, d.url, d.header)
	if err != nil {
		if resp != nil {
			d.logger.Warn().Int("status", resp.StatusCode).Err(err).Msg("Upstream handshake rejected")
			return nil, fmt.Errorf("dial %s: status %d: %w", d.url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", d.url, err)
	}

	d.logger.Debug().Str("url", d.url).Msg("Upstream connected")
	return newConn(ws), nil
}

var _ relay.Dialer = (*Dialer)(nil)
