package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAppWiresGateway(t *testing.T) {
	isolate(t)
	cfg, err := loadConfig()
	require.NoError(t, err)
	cfg.Concepts.Watch = false

	a, err := newApp(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.manager.Close(context.Background()) })
	assert.Nil(t, a.watcher)

	srv := httptest.NewServer(a.gateway.Handler())
	defer srv.Close()

	resp, err := http.PostForm(srv.URL+"/session/initiate", url.Values{"concept_id": {"1"}})
	require.NoError(t, err)
	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/session/stream/"+out["session_id"], out["audio_stream_endpoint"])

	resp, err = http.PostForm(srv.URL+"/session/initiate", url.Values{"concept_id": {"404"}})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	assert.Equal(t, 1, a.manager.ActiveSessions())
}

func TestNewAppWithWatcherAndAnthropic(t *testing.T) {
	isolate(t)
	t.Setenv("COMPANION_ANALYSIS_PROVIDER", "anthropic")
	t.Setenv("COMPANION_ANTHROPIC_API_KEY", "sk-ant-REDACTED")

	cfg, err := loadConfig()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	a, err := newApp(cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, a.watcher)
	require.NoError(t, a.watcher.Start())
	t.Cleanup(func() {
		_ = a.watcher.Stop()
		_ = a.manager.Close(context.Background())
	})
}

func TestNewAppErrors(t *testing.T) {
	t.Run("missing catalog", func(t *testing.T) {
		dir := isolate(t)
		cfg, err := loadConfig()
		require.NoError(t, err)
		cfg.Concepts.Path = filepath.Join(dir, "nope.csv")

		_, err = newApp(cfg, zerolog.Nop())
		assert.ErrorContains(t, err, "failed to load concepts")
	})

	t.Run("bad duration", func(t *testing.T) {
		isolate(t)
		cfg, err := loadConfig()
		require.NoError(t, err)
		cfg.Relay.DrainTimeout = "soon"

		_, err = newApp(cfg, zerolog.Nop())
		assert.Error(t, err)
	})

	t.Run("unknown provider", func(t *testing.T) {
		isolate(t)
		cfg, err := loadConfig()
		require.NoError(t, err)
		cfg.Analysis.Provider = "llama"

		_, err = newApp(cfg, zerolog.Nop())
		assert.Error(t, err)
	})
}
