// Package metrics exposes the relay's Prometheus series: room/member
// gauges, control-frame outcome counters, and binary bytes relayed.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles one Prometheus registry and the relay's series. A
// struct (rather than the teacher's package-level globals) so tests
// can build an isolated instance without colliding on re-registration.
type Metrics struct {
	reg *prometheus.Registry

	connections  prometheus.Counter
	controlTotal *prometheus.CounterVec
	bytesRelayed prometheus.Counter
	roomsActive  prometheus.Gauge
	membersActive prometheus.Gauge
}

// New builds and registers the relay's metric series.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		connections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_ws_connections_total", Help: "Total accepted WebSocket connections.",
		}),
		controlTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_control_frames_total", Help: "Control-plane frames by outcome.",
		}, []string{"outcome"}),
		bytesRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_binary_bytes_total", Help: "Binary payload bytes relayed (header byte included per recipient).",
		}),
		roomsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_rooms_active", Help: "Currently live rooms.",
		}),
		membersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_members_active", Help: "Connections currently inside any room.",
		}),
	}
	m.reg.MustRegister(m.connections, m.controlTotal, m.bytesRelayed, m.roomsActive, m.membersActive)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// IncConnections counts one accepted WebSocket upgrade.
func (m *Metrics) IncConnections() { m.connections.Inc() }

// IncControl counts one control-plane frame by its router-assigned
// outcome label (e.g. "create_ok", "join_is_full").
func (m *Metrics) IncControl(outcome string) { m.controlTotal.WithLabelValues(outcome).Inc() }

// AddBytesRelayed adds n bytes to the binary relay counter.
func (m *Metrics) AddBytesRelayed(n int) {
	if n > 0 {
		m.bytesRelayed.Add(float64(n))
	}
}

// SetRooms sets the active-rooms gauge.
func (m *Metrics) SetRooms(n int) { m.roomsActive.Set(float64(n)) }

// SetMembers sets the active-members gauge.
func (m *Metrics) SetMembers(n int) { m.membersActive.Set(float64(n)) }
