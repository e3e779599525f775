package metrics

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

var requestLabels = []string{"method", "route", "status_code"}

// HTTPMetrics covers the request/response API. Push streams are counted by
// the realtime metrics instead, since their duration is the session length.
type HTTPMetrics struct {
	RequestDuration *prometheus.HistogramVec
	RequestsTotal   *prometheus.CounterVec
	InFlightGauge   prometheus.Gauge
	StreamsRejected *prometheus.CounterVec
}

func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	opts := func(name, help string) prometheus.Opts {
		return prometheus.Opts{Namespace: namespace, Subsystem: "http", Name: name, Help: help}
	}

	m := &HTTPMetrics{
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency of API requests by route template.",
			Buckets:   prometheus.DefBuckets,
		}, requestLabels),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts(opts("requests_total",
			"API requests by route template and status.")), requestLabels),
		InFlightGauge: prometheus.NewGauge(prometheus.GaugeOpts(opts("in_flight_requests",
			"API requests being served right now."))),
		StreamsRejected: prometheus.NewCounterVec(prometheus.CounterOpts(opts("streams_rejected_total",
			"Subscribe requests refused by the stream limits, by reason.")), []string{"reason"}),
	}

	reg.MustRegister(m.RequestDuration, m.RequestsTotal, m.InFlightGauge, m.StreamsRejected)
	return m
}

// unmetered reports routes left out of request metrics: the scrape endpoint,
// health checks and subscribe streams.
func unmetered(route string) bool {
	return route == "/metrics" ||
		strings.HasPrefix(route, "/health/") ||
		strings.HasSuffix(route, "/subscribe")
}

// Middleware labels each request with its route template, never the raw
// path, so ids do not explode label cardinality.
func (m *HTTPMetrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := c.Path()
			if unmetered(route) {
				return next(c)
			}

			m.InFlightGauge.Inc()
			timer := prometheus.NewTimer(nil)
			err := next(c)
			elapsed := timer.ObserveDuration()
			m.InFlightGauge.Dec()

			method := c.Request().Method
			status := strconv.Itoa(c.Response().Status)
			m.RequestDuration.WithLabelValues(method, route, status).Observe(elapsed.Seconds())
			m.RequestsTotal.WithLabelValues(method, route, status).Inc()
			return err
		}
	}
}
