package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chat_relay"

// Delivery paths, used as label values.
const (
	DeliveryLive   = "live"
	DeliveryReplay = "replay"
)

// Metrics owns its own registry so tests can build as many as they like.
type Metrics struct {
	registry          *prometheus.Registry
	ActiveConnections prometheus.Gauge
	MessagesSent      prometheus.Counter
	MessagesDelivered *prometheus.CounterVec
	MessagesRead      prometheus.Counter
	MessagesCensored  prometheus.Counter
	SessionTakeovers  prometheus.Counter
	BroadcastsDropped prometheus.Counter
	AuthFailures      *prometheus.CounterVec
	WorkerRestarts    *prometheus.CounterVec
	ProcessCPU        prometheus.Gauge
	ProcessMemory     prometheus.Gauge
	ChannelLength     *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Participants currently holding a registered connection.",
		}),
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Messages persisted from a send event.",
		}),
		MessagesDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_delivered_total",
			Help:      "Messages pushed to their receiver and marked delivered.",
		}, []string{"path"}),
		MessagesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_read_total",
			Help:      "Read receipts that flipped a message to read.",
		}),
		MessagesCensored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_censored_total",
			Help:      "Messages stored with at least one word masked.",
		}),
		SessionTakeovers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_takeovers_total",
			Help:      "Connections evicted by a newer session of the same participant.",
		}),
		BroadcastsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_dropped_total",
			Help:      "Presence events dropped because the queue or a connection was full.",
		}),
		AuthFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Refused connection attempts by reason.",
		}, []string{"reason"}),
		WorkerRestarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_restarts_total",
			Help:      "Supervised worker restarts after a crash.",
		}, []string{"worker"}),
		ProcessCPU: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "process_cpu_percent",
			Help:      "CPU usage of the relay process, sampled by the connection monitor.",
		}),
		ProcessMemory: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "process_memory_percent",
			Help:      "Share of system memory used by the relay process.",
		}),
		ChannelLength: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channel_length",
			Help:      "Items waiting in an internal queue.",
		}, []string{"channel"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.ActiveConnections,
		m.MessagesSent,
		m.MessagesDelivered,
		m.MessagesRead,
		m.MessagesCensored,
		m.SessionTakeovers,
		m.BroadcastsDropped,
		m.AuthFailures,
		m.WorkerRestarts,
		m.ProcessCPU,
		m.ProcessMemory,
		m.ChannelLength,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
