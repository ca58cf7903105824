// Package metrics exposes Prometheus collectors for the chat relay.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the relay's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Connections      prometheus.Gauge
	ActiveRooms      prometheus.Gauge
	Deliveries       *prometheus.CounterVec
	DroppedSends     *prometheus.CounterVec
	DiscardedInput   *prometheus.CounterVec
	HistoryEvictions prometheus.Counter

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them on reg. Passing a fresh
// prometheus.NewRegistry keeps independent instances apart.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "roomchat",
			Name:      "ws_active_connections",
			Help:      "Active websocket connections joined to a room.",
		}),
		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "roomchat",
			Name:      "active_rooms",
			Help:      "Rooms with at least one member.",
		}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roomchat",
			Name:      "deliveries_total",
			Help:      "Payloads queued to connections, by message type.",
		}, []string{"type"}),
		DroppedSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roomchat",
			Name:      "dropped_sends_total",
			Help:      "Sends skipped during a broadcast, by reason.",
		}, []string{"reason"}),
		DiscardedInput: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roomchat",
			Name:      "discarded_messages_total",
			Help:      "Incoming messages discarded before broadcast, by reason.",
		}, []string{"reason"}),
		HistoryEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "roomchat",
			Name:      "history_evictions_total",
			Help:      "Messages evicted from room history buffers.",
		}),
		gatherer: reg,
	}

	reg.MustRegister(m.Connections, m.ActiveRooms, m.Deliveries, m.DroppedSends, m.DiscardedInput, m.HistoryEvictions)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ConnectionOpened increments the active connection gauge.
func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.Connections.Inc()
	}
}

// ConnectionClosed decrements the active connection gauge.
func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.Connections.Dec()
	}
}

// SetRooms records the number of rooms with members.
func (m *Metrics) SetRooms(n int) {
	if m != nil {
		m.ActiveRooms.Set(float64(n))
	}
}

// Delivered counts one payload queued to a connection.
func (m *Metrics) Delivered(msgType string) {
	if m != nil {
		m.Deliveries.WithLabelValues(msgType).Inc()
	}
}

// Dropped counts one skipped send.
func (m *Metrics) Dropped(reason string) {
	if m != nil {
		m.DroppedSends.WithLabelValues(reason).Inc()
	}
}

// Discarded counts one rejected incoming message.
func (m *Metrics) Discarded(reason string) {
	if m != nil {
		m.DiscardedInput.WithLabelValues(reason).Inc()
	}
}

// Evicted counts one history eviction.
func (m *Metrics) Evicted() {
	if m != nil {
		m.HistoryEvictions.Inc()
	}
}
