package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Monitor collects order hub metrics
type Monitor struct {
	actions     *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	connections prometheus.Gauge
	broadcasts  *prometheus.CounterVec
	dropped     prometheus.Counter
	startTime   time.Time
}

// NewMonitor creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMonitor(reg prometheus.Registerer) *Monitor {
	m := &Monitor{
		actions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orderhub_actions_total",
				Help: "Realtime actions handled, by action and result",
			},
			[]string{"action", "result"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orderhub_action_duration_seconds",
				Help:    "Time spent handling realtime actions",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"action"},
		),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "orderhub_connections",
			Help: "Open websocket connections",
		}),
		broadcasts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orderhub_broadcasts_total",
				Help: "Events broadcast to topics",
			},
			[]string{"event"},
		),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orderhub_dropped_frames_total",
			Help: "Frames dropped because a client buffer was full",
		}),
		startTime: time.Now(),
	}

	if reg != nil {
		reg.MustRegister(m.actions, m.latency, m.connections, m.broadcasts, m.dropped)
	}
	return m
}

// ObserveAction records the outcome and latency of one action
func (m *Monitor) ObserveAction(action, result string, d time.Duration) {
	m.actions.WithLabelValues(action, result).Inc()
	m.latency.WithLabelValues(action).Observe(d.Seconds())
}

func (m *Monitor) ConnectionOpened() {
	m.connections.Inc()
}

func (m *Monitor) ConnectionClosed() {
	m.connections.Dec()
}

func (m *Monitor) Broadcast(event string, recipients int) {
	m.broadcasts.WithLabelValues(event).Inc()
}

func (m *Monitor) Dropped() {
	m.dropped.Inc()
}

// Uptime returns the time since the monitor was created
func (m *Monitor) Uptime() time.Duration {
	return time.Since(m.startTime)
}
