package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := getMetrics()

	before := testutil.ToFloat64(m.framesRelayed)
	RecordFrameRelayed(320)
	RecordFrameRelayed(320)
	assert.Equal(t, before+2, testutil.ToFloat64(m.framesRelayed))

	drainBefore := testutil.ToFloat64(m.drainTimeouts.WithLabelValues("stream"))
	RecordDrainTimeout("stream")
	assert.Equal(t, drainBefore+1, testutil.ToFloat64(m.drainTimeouts.WithLabelValues("stream")))

	RecordFinalize("success", 150*time.Millisecond)
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.finalizeTotal.WithLabelValues("success")), 1.0)
}

func TestStreamGauge(t *testing.T) {
	m := getMetrics()
	before := testutil.ToFloat64(m.activeStreams)

	StreamStarted()
	assert.Equal(t, before+1, testutil.ToFloat64(m.activeStreams))

	StreamEnded("client_closed")
	assert.Equal(t, before, testutil.ToFloat64(m.activeStreams))
}

func TestHTTPCode(t *testing.T) {
	assert.Equal(t, "2xx", httpCode(200))
	assert.Equal(t, "3xx", httpCode(301))
	assert.Equal(t, "4xx", httpCode(404))
	assert.Equal(t, "5xx", httpCode(502))
}

func TestMetricsHandler(t *testing.T) {
	SetActiveSessions(3)

	srv := httptest.NewServer(MetricsHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "companion_active_sessions 3")
}

func TestHistoryAndConceptCounters(t *testing.T) {
	m := getMetrics()

	before := testutil.ToFloat64(m.historyOps.WithLabelValues("append", "error"))
	RecordHistoryOp("append", time.Millisecond, false)
	assert.Equal(t, before+1, testutil.ToFloat64(m.historyOps.WithLabelValues("append", "error")))

	reloads := testutil.ToFloat64(m.conceptReloads.WithLabelValues("success"))
	RecordConceptReload(true)
	assert.Equal(t, reloads+1, testutil.ToFloat64(m.conceptReloads.WithLabelValues("success")))
}
