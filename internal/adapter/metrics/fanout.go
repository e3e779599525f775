package metrics

import "github.com/prometheus/client_golang/prometheus"

// FanoutMetrics holds Prometheus metrics for message fan-out.
type FanoutMetrics struct {
	MessagesSent     *prometheus.CounterVec
	RecordsPersisted prometheus.Counter
	FanoutDuration   prometheus.Histogram
	MarkReadTotal    *prometheus.CounterVec
}

func NewFanoutMetrics(reg prometheus.Registerer) *FanoutMetrics {
	m := &FanoutMetrics{
		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Send operations, by result.",
		}, []string{"result"}),
		RecordsPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_records_persisted_total",
			Help:      "Delivery records written by committed sends.",
		}),
		FanoutDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fanout_duration_seconds",
			Help:      "Duration of a send from persist to last push.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}),
		MarkReadTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mark_read_total",
			Help:      "Mark-conversation-read operations, by outcome (updated, noop, error).",
		}, []string{"outcome"}),
	}

	reg.MustRegister(m.MessagesSent, m.RecordsPersisted, m.FanoutDuration, m.MarkReadTotal)
	return m
}
