// Package telemetry provides Prometheus metrics for the chat client.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector the client updates. A nil *Metrics is valid
// and records nothing, so library code can take one unconditionally.
type Metrics struct {
	registry *prometheus.Registry

	MessagesReceived prometheus.Counter
	MessagesSent     prometheus.Counter
	Connects         prometheus.Counter
	Reconnects       prometheus.Counter
	Disconnects      *prometheus.CounterVec // label: reason
	Registrations    prometheus.Counter
	QueueDepth       prometheus.Gauge
	Channels         prometheus.Gauge
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry:         reg,
		MessagesReceived: factory.NewCounter(prometheus.CounterOpts{Name: "streamchat_messages_received_total", Help: "Lines received from the chat server"}),
		MessagesSent:     factory.NewCounter(prometheus.CounterOpts{Name: "streamchat_messages_sent_total", Help: "Lines written to the chat server"}),
		Connects:         factory.NewCounter(prometheus.CounterOpts{Name: "streamchat_connects_total", Help: "Successful socket connects"}),
		Reconnects:       factory.NewCounter(prometheus.CounterOpts{Name: "streamchat_reconnects_total", Help: "Automatic reconnect attempts"}),
		Disconnects:      factory.NewCounterVec(prometheus.CounterOpts{Name: "streamchat_disconnects_total", Help: "Disconnects by reason"}, []string{"reason"}),
		Registrations:    factory.NewCounter(prometheus.CounterOpts{Name: "streamchat_registrations_total", Help: "Completed logins"}),
		QueueDepth:       factory.NewGauge(prometheus.GaugeOpts{Name: "streamchat_queue_depth", Help: "Outgoing messages waiting for a send slot"}),
		Channels:         factory.NewGauge(prometheus.GaugeOpts{Name: "streamchat_channels", Help: "Channels currently tracked"}),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) IncReceived() {
	if m != nil {
		m.MessagesReceived.Inc()
	}
}

func (m *Metrics) IncSent() {
	if m != nil {
		m.MessagesSent.Inc()
	}
}

func (m *Metrics) IncConnects() {
	if m != nil {
		m.Connects.Inc()
	}
}

func (m *Metrics) IncReconnects() {
	if m != nil {
		m.Reconnects.Inc()
	}
}

func (m *Metrics) IncRegistrations() {
	if m != nil {
		m.Registrations.Inc()
	}
}

// IncDisconnects counts one disconnect under the given reason label.
func (m *Metrics) IncDisconnects(reason string) {
	if m != nil {
		m.Disconnects.WithLabelValues(reason).Inc()
	}
}

// SetQueueDepth records the number of queued outgoing messages.
func (m *Metrics) SetQueueDepth(n int) {
	if m != nil {
		m.QueueDepth.Set(float64(n))
	}
}

// SetChannels records the number of tracked channels.
func (m *Metrics) SetChannels(n int) {
	if m != nil {
		m.Channels.Set(float64(n))
	}
}
