package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/projectpulse/internal/platform/version"
)

// HealthCheck is one dependency consulted by the startup and readiness
// endpoints, e.g. the Postgres pool or the Redis relay client.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type livenessResponse struct {
	Status      string  `json:"status"`
	Uptime      float64 `json:"uptime"`
	Connections int     `json:"connections"`
}

type unhealthyResponse struct {
	Status      string `json:"status"`
	FailedCheck string `json:"failed_check"`
	Error       string `json:"error"`
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health/startup", s.dependencyCheck(2*time.Second))
	s.echo.GET("/health/ready", s.dependencyCheck(5*time.Second))
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/version", s.handleVersion)
}

// handleLiveness never touches dependencies; it reports how long this
// instance has been up and how many push channels it holds.
func (s *Server) handleLiveness(c echo.Context) error {
	body := livenessResponse{
		Status:      "ok",
		Uptime:      s.clock.Since(s.startTime).Seconds(),
		Connections: s.registry.Count(),
	}
	if err := c.JSON(http.StatusOK, body); err != nil {
		return fmt.Errorf("failed to write liveness response: %w", err)
	}
	return nil
}

// dependencyCheck runs the configured checks in order under one deadline
// and answers 503 naming the first that fails.
func (s *Server) dependencyCheck(timeout time.Duration) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
		defer cancel()

		status, body := http.StatusOK, any(map[string]string{"status": "ready"})
		for _, hc := range s.healthChecks {
			if err := hc.Check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				body = unhealthyResponse{Status: "unhealthy", FailedCheck: hc.Name, Error: err.Error()}
				break
			}
		}

		if err := c.JSON(status, body); err != nil {
			return fmt.Errorf("failed to write health response: %w", err)
		}
		return nil
	}
}

func (s *Server) handleVersion(c echo.Context) error {
	if err := c.JSON(http.StatusOK, version.Get()); err != nil {
		return fmt.Errorf("failed to write version response: %w", err)
	}
	return nil
}
