package metrics

import "github.com/prometheus/client_golang/prometheus"

// Push results used as the "result" label.
const (
	ResultDelivered = "delivered"
	ResultOffline   = "offline"
	ResultFailed    = "failed"
)

// RealtimeMetrics holds Prometheus metrics for push channels.
type RealtimeMetrics struct {
	ActiveConnections prometheus.Gauge
	Replacements      prometheus.Counter
	RegisterFailures  prometheus.Counter
	EventsPushed      *prometheus.CounterVec
	HeartbeatsSent    prometheus.Counter
	HeartbeatPrunes   prometheus.Counter
}

func NewRealtimeMetrics(reg prometheus.Registerer) *RealtimeMetrics {
	m := &RealtimeMetrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "active_connections",
			Help:      "Number of registered push channels.",
		}),
		Replacements: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "replaced_connections_total",
			Help:      "Connections discarded because the same user subscribed again.",
		}),
		RegisterFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "register_failures_total",
			Help:      "Subscriptions rolled back because the initial push failed.",
		}),
		EventsPushed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "events_pushed_total",
			Help:      "Events pushed to users, by event name and result.",
		}, []string{"event", "result"}),
		HeartbeatsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "heartbeats_sent_total",
			Help:      "Keep-alive signals successfully written.",
		}),
		HeartbeatPrunes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "heartbeat_prunes_total",
			Help:      "Connections removed after a failed heartbeat.",
		}),
	}

	reg.MustRegister(m.ActiveConnections, m.Replacements, m.RegisterFailures,
		m.EventsPushed, m.HeartbeatsSent, m.HeartbeatPrunes)
	return m
}
