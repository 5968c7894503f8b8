package websocket

import "github.com/prometheus/client_golang/prometheus"

// Metrics instruments the hub
type Metrics struct {
	Connections prometheus.Gauge
	Rooms       prometheus.Gauge
	Frames      *prometheus.CounterVec
	Dropped     prometheus.Counter
}

// NewMetrics creates the hub metrics and registers them with reg when it
// is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cchat",
			Subsystem: "ws",
			Name:      "connections",
			Help:      "Number of open websocket connections.",
		}),
		Rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cchat",
			Subsystem: "ws",
			Name:      "rooms",
			Help:      "Number of conversations with at least one joined connection.",
		}),
		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cchat",
			Subsystem: "ws",
			Name:      "frames_sent_total",
			Help:      "Frames queued for delivery, by type.",
		}, []string{"type"}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cchat",
			Subsystem: "ws",
			Name:      "frames_dropped_total",
			Help:      "Frames dropped because a client's send buffer was full.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Connections, m.Rooms, m.Frames, m.Dropped)
	}
	return m
}
