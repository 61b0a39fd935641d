package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ranya_voice"

type moduleMetrics struct {
	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec

	publishTotal        *prometheus.CounterVec
	publishSkippedTotal *prometheus.CounterVec
	publishBytes        *prometheus.CounterVec

	turnTotal    *prometheus.CounterVec
	turnDuration prometheus.Histogram

	llmCallTotal     *prometheus.CounterVec
	llmCallDuration  *prometheus.HistogramVec
	sttDuration      *prometheus.HistogramVec
	ttsDuration      *prometheus.HistogramVec
	activeSessions   prometheus.Gauge
	gatewayClients   prometheus.Gauge
	documentsIndexed prometheus.Gauge
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "tool_execution_total",
					Help:      "Total tool executions by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "tool_execution_duration_seconds",
					Help:      "Tool execution duration in seconds by tool.",
					Buckets:   prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			publishTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "publish_total",
					Help:      "Data messages published to the frontend by transport, topic and status.",
				},
				[]string{"transport", "topic", "status"},
			),
			publishSkippedTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "publish_skipped_total",
					Help:      "Frontend messages dropped because no transport was attached, by tool.",
				},
				[]string{"tool"},
			),
			publishBytes: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "publish_bytes_total",
					Help:      "Bytes published to the frontend by transport.",
				},
				[]string{"transport"},
			),
			turnTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "turn_total",
					Help:      "Conversation turns by input source and status.",
				},
				[]string{"source", "status"},
			),
			turnDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "turn_duration_seconds",
					Help:      "End-to-end turn duration in seconds.",
					Buckets:   prometheus.DefBuckets,
				},
			),
			llmCallTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "llm_call_total",
					Help:      "Language model calls by provider and status.",
				},
				[]string{"provider", "status"},
			),
			llmCallDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "llm_call_duration_seconds",
					Help:      "Language model call duration in seconds by provider.",
					Buckets:   prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			sttDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "stt_duration_seconds",
					Help:      "Speech recognition duration in seconds by provider.",
					Buckets:   prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			ttsDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "tts_duration_seconds",
					Help:      "Speech synthesis duration in seconds by provider.",
					Buckets:   prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Namespace: namespace,
					Name:      "active_sessions",
					Help:      "Sessions currently running in this worker.",
				},
			),
			gatewayClients: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Namespace: namespace,
					Name:      "gateway_clients",
					Help:      "Frontend clients connected to the websocket gateway.",
				},
			),
			documentsIndexed: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Namespace: namespace,
					Name:      "documents_indexed",
					Help:      "Documents currently searchable by search_documents.",
				},
			),
		}

		prometheus.MustRegister(
			m.toolExecutionTotal,
			m.toolExecutionDuration,
			m.publishTotal,
			m.publishSkippedTotal,
			m.publishBytes,
			m.turnTotal,
			m.turnDuration,
			m.llmCallTotal,
			m.llmCallDuration,
			m.sttDuration,
			m.ttsDuration,
			m.activeSessions,
			m.gatewayClients,
			m.documentsIndexed,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

// MetricsHandler serves the default Prometheus registry.
func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordToolExecution(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	m.toolExecutionTotal.WithLabelValues(tool, statusLabel(success)).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

func RecordPublish(transport, topic string, size int, success bool) {
	m := getMetrics()
	m.publishTotal.WithLabelValues(transport, topic, statusLabel(success)).Inc()
	if success {
		m.publishBytes.WithLabelValues(transport).Add(float64(size))
	}
}

func RecordPublishSkipped(tool string) {
	getMetrics().publishSkippedTotal.WithLabelValues(tool).Inc()
}

func RecordTurn(source string, duration time.Duration, success bool) {
	m := getMetrics()
	m.turnTotal.WithLabelValues(source, statusLabel(success)).Inc()
	m.turnDuration.Observe(duration.Seconds())
}

func RecordLLMCall(provider string, duration time.Duration, success bool) {
	m := getMetrics()
	m.llmCallTotal.WithLabelValues(provider, statusLabel(success)).Inc()
	m.llmCallDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func RecordSTT(provider string, duration time.Duration) {
	getMetrics().sttDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func RecordTTS(provider string, duration time.Duration) {
	getMetrics().ttsDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func AddActiveSessions(delta int) {
	getMetrics().activeSessions.Add(float64(delta))
}

func SetGatewayClients(count int) {
	getMetrics().gatewayClients.Set(float64(count))
}

func SetDocumentsIndexed(count int) {
	getMetrics().documentsIndexed.Set(float64(count))
}
