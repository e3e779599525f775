package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestHTTPMetrics_Middleware(t *testing.T) {
	m := NewHTTPMetrics(prometheus.NewRegistry())

	e := echo.New()
	e.Use(m.Middleware())
	ok := func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }
	e.GET("/api/messages/project/:projectId", ok)
	e.GET("/api/sse/subscribe", ok)
	e.GET("/health/live", ok)

	for _, path := range []string{"/api/messages/project/3", "/api/messages/project/4", "/api/sse/subscribe", "/health/live"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	// Requests are grouped by route template; streams and probes are skipped.
	assert.Equal(t, 1, testutil.CollectAndCount(m.RequestsTotal))
	assert.InDelta(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues(http.MethodGet, "/api/messages/project/:projectId", "204")), 0.001)
	assert.InDelta(t, 0.0, testutil.ToFloat64(m.InFlightGauge), 0.001)
}

func TestNewRegistry_RegistersRuntimeCollectors(t *testing.T) {
	reg := NewRegistry()

	families, err := reg.Gather()
	assert.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["go_goroutines"])
}

func TestUnmetered(t *testing.T) {
	cases := map[string]bool{
		"/metrics":                         true,
		"/health/ready":                    true,
		"/api/sse/subscribe":               true,
		"/api/ws/subscribe":                true,
		"/api/messages/project/:projectId": false,
		"/version":                         false,
	}
	for route, want := range cases {
		assert.Equal(t, want, unmetered(route), route)
	}
}
