package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/projectpulse/internal/adapter/metrics"
	"github.com/pscheid92/projectpulse/internal/domain"
	"github.com/pscheid92/projectpulse/internal/platform/config"
	"github.com/pscheid92/projectpulse/internal/realtime"
)

type messageService interface {
	SendMessage(ctx context.Context, senderID, conversationID int64, content string) (domain.DeliveryRecord, error)
	ConversationMessages(ctx context.Context, userID, conversationID int64) ([]domain.DeliveryRecord, error)
	UnreadCount(ctx context.Context, userID int64) (int64, error)
	UnreadByConversation(ctx context.Context, userID int64) (map[int64]int64, error)
	MarkConversationRead(ctx context.Context, userID, conversationID int64) (int64, error)
	Notify(ctx context.Context, userIDs []int64, kind, message string, data map[string]any) (int, error)
}

type Server struct {
	echo   *echo.Echo
	config *config.Config
	clock  clockwork.Clock

	messages messageService
	registry *realtime.Registry
	presence *realtime.Presence

	upgrader     websocket.Upgrader
	metricsReg   *prometheus.Registry
	httpMetrics  *metrics.HTTPMetrics
	healthChecks []HealthCheck
	startTime    time.Time
}

func NewServer(cfg *config.Config, messages messageService, registry *realtime.Registry, presence *realtime.Presence, clock clockwork.Clock, reg *prometheus.Registry, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:     e,
		config:   cfg,
		clock:    clock,
		messages: messages,
		registry: registry,
		presence: presence,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     newCheckOrigin(cfg.Origins(), !cfg.IsProduction()),
		},
		metricsReg:   reg,
		httpMetrics:  metrics.NewHTTPMetrics(reg),
		healthChecks: healthChecks,
		startTime:    clock.Now(),
	}

	srv.registerRoutes()
	return srv
}

// Start blocks until the server is shut down.
func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
