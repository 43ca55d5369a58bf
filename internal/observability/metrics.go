package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "companion"

type relayMetrics struct {
	activeSessions    prometheus.Gauge
	sessionsCreated   prometheus.Counter
	sessionsAbandoned *prometheus.CounterVec

	activeStreams   prometheus.Gauge
	streamsEnded    *prometheus.CounterVec
	framesRelayed   prometheus.Counter
	bytesRelayed    prometheus.Counter
	transcriptEvent *prometheus.CounterVec
	drainTimeouts   *prometheus.CounterVec

	finalizeTotal    *prometheus.CounterVec
	finalizeDuration prometheus.Histogram

	collaboratorTotal    *prometheus.CounterVec
	collaboratorDuration *prometheus.HistogramVec

	historyOps      *prometheus.CounterVec
	historyDuration *prometheus.HistogramVec

	conceptReloads *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *relayMetrics
)

func getMetrics() *relayMetrics {
	metricsOnce.Do(func() {
		m := &relayMetrics{
			activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_sessions",
				Help:      "Current number of live relay sessions.",
			}),
			sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_created_total",
				Help:      "Total sessions created.",
			}),
			sessionsAbandoned: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_abandoned_total",
				Help:      "Total sessions removed without finalization, by reason.",
			}, []string{"reason"}),
			activeStreams: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_streams",
				Help:      "Current number of bridged client streams.",
			}),
			streamsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "streams_ended_total",
				Help:      "Total client streams ended, by stop reason.",
			}, []string{"reason"}),
			framesRelayed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frames_relayed_total",
				Help:      "Total audio frames forwarded upstream.",
			}),
			bytesRelayed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bytes_relayed_total",
				Help:      "Total audio bytes forwarded upstream.",
			}),
			transcriptEvent: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_events_total",
				Help:      "Total upstream transcription events received, by kind.",
			}, []string{"kind"}),
			drainTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "drain_timeouts_total",
				Help:      "Listeners that did not stop within the drain timeout, by phase.",
			}, []string{"phase"}),
			finalizeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "finalize_total",
				Help:      "Total finalize calls, by outcome.",
			}, []string{"outcome"}),
			finalizeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "finalize_duration_seconds",
				Help:      "Finalize duration in seconds.",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40},
			}),
			collaboratorTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "collaborator_calls_total",
				Help:      "Total external analysis and synthesis calls, by stage and status.",
			}, []string{"stage", "status"}),
			collaboratorDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "collaborator_duration_seconds",
				Help:      "External call duration in seconds, by stage.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"stage"}),
			historyOps: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "history_operations_total",
				Help:      "Total conversation history operations, by op and status.",
			}, []string{"op", "status"}),
			historyDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "history_duration_seconds",
				Help:      "Conversation history operation duration in seconds, by op.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			}, []string{"op"}),
			conceptReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "concept_reloads_total",
				Help:      "Concept catalog reloads, by status.",
			}, []string{"status"}),
			httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests, by route and status code.",
			}, []string{"route", "code"}),
		}

		prometheus.MustRegister(
			m.activeSessions,
			m.sessionsCreated,
			m.sessionsAbandoned,
			m.activeStreams,
			m.streamsEnded,
			m.framesRelayed,
			m.bytesRelayed,
			m.transcriptEvent,
			m.drainTimeouts,
			m.finalizeTotal,
			m.finalizeDuration,
			m.collaboratorTotal,
			m.collaboratorDuration,
			m.historyOps,
			m.historyDuration,
			m.conceptReloads,
			m.httpRequests,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func SetActiveSessions(count int) {
	getMetrics().activeSessions.Set(float64(count))
}

func RecordSessionCreated() {
	getMetrics().sessionsCreated.Inc()
}

func RecordSessionAbandoned(reason string) {
	getMetrics().sessionsAbandoned.WithLabelValues(reason).Inc()
}

func StreamStarted() {
	getMetrics().activeStreams.Inc()
}

func StreamEnded(reason string) {
	m := getMetrics()
	m.activeStreams.Dec()
	m.streamsEnded.WithLabelValues(reason).Inc()
}

func RecordFrameRelayed(size int) {
	m := getMetrics()
	m.framesRelayed.Inc()
	m.bytesRelayed.Add(float64(size))
}

func RecordTranscriptEvent(kind string) {
	getMetrics().transcriptEvent.WithLabelValues(kind).Inc()
}

func RecordDrainTimeout(phase string) {
	getMetrics().drainTimeouts.WithLabelValues(phase).Inc()
}

func RecordFinalize(outcome string, duration time.Duration) {
	m := getMetrics()
	m.finalizeTotal.WithLabelValues(outcome).Inc()
	m.finalizeDuration.Observe(duration.Seconds())
}

func RecordCollaboratorCall(stage string, duration time.Duration, success bool) {
	m := getMetrics()
	m.collaboratorTotal.WithLabelValues(stage, status(success)).Inc()
	m.collaboratorDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

func RecordHistoryOp(op string, duration time.Duration, success bool) {
	m := getMetrics()
	m.historyOps.WithLabelValues(op, status(success)).Inc()
	m.historyDuration.WithLabelValues(op).Observe(duration.Seconds())
}

func RecordConceptReload(success bool) {
	getMetrics().conceptReloads.WithLabelValues(status(success)).Inc()
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func RecordHTTPRequest(route string, code int) {
	getMetrics().httpRequests.WithLabelValues(route, httpCode(code)).Inc()
}

func httpCode(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
