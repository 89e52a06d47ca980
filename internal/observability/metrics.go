package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveSubscriptions prometheus.Gauge
	ChatReplies         *prometheus.CounterVec
	ReplyLatency        prometheus.Histogram
	MemoriesWritten     *prometheus.CounterVec
	UpstreamErrors      *prometheus.CounterVec
	TurnsPublished      prometheus.Counter
	RealtimeDrops       prometheus.Counter
	WSMessages          *prometheus.CounterVec
	HTTPRequests        *prometheus.CounterVec

	stages *replyStageWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSubscriptions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_subscriptions",
			Help:      "Number of open realtime chat subscriptions.",
		}),
		ChatReplies: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_replies_total",
			Help:      "Companion replies by outcome.",
		}, []string{"outcome"}),
		ReplyLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reply_latency_ms",
			Help:      "End-to-end reply generation latency in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 15000, 30000, 60000},
		}),
		MemoriesWritten: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memories_written_total",
			Help:      "Extracted memories persisted by importance.",
		}, []string{"importance"}),
		UpstreamErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_errors_total",
			Help:      "Inference provider errors by provider and code.",
		}, []string{"provider", "code"}),
		TurnsPublished: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_published_total",
			Help:      "Turn insert events fanned out to subscribers.",
		}),
		RealtimeDrops: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_drops_total",
			Help:      "Subscribers closed because they fell behind.",
		}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests by route and status class.",
		}, []string{"route", "status"}),
		stages: newReplyStageWindow(256),
	}
}

func (m *Metrics) ObserveReplyLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.ReplyLatency.Observe(float64(d.Milliseconds()))
	m.stages.Observe(StageReplyTotal, float64(d.Microseconds())/1000)
}

// ObserveStage records one sample of a named reply stage.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stages.Observe(stage, float64(d.Microseconds())/1000)
}

func (m *Metrics) ObserveIndicator(name string) {
	if m == nil {
		return
	}
	m.stages.ObserveIndicator(name)
}

func (m *Metrics) ReplyStages() ReplyStageSnapshot {
	return m.stages.Snapshot()
}

func (m *Metrics) ResetReplyStages() {
	m.stages.Reset()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
