package httpserver

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pscheid92/projectpulse/internal/adapter/metrics"
)

func (s *Server) registerRoutes() {
	s.echo.Use(correlationMiddleware)
	s.echo.Use(s.setupRequestLoggerMiddleware())
	s.echo.Use(middleware.Recover())
	s.echo.Use(s.httpMetrics.Middleware())
	s.echo.Use(ErrorHandlingMiddleware())
	s.echo.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            63072000, // 2 years; only sent over HTTPS
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:        "no-referrer",
	}))

	s.registerHealthRoutes()
	s.echo.GET("/metrics", echo.WrapHandler(metrics.Handler(s.metricsReg)))

	api := s.echo.Group("/api", requireUser(s.config.UserHeader))
	s.registerStreamRoutes(api)
	s.registerMessageRoutes(api)
	s.registerPresenceRoutes(api)
	s.registerNotificationRoutes(api)
}

func (s *Server) registerStreamRoutes(api *echo.Group) {
	limits := newStreamLimits(s.clock, s.config.MaxStreams, s.config.StreamConnectRate, s.config.StreamConnectBurst,
		func(reason string) { s.httpMetrics.StreamsRejected.WithLabelValues(reason).Inc() })

	api.GET("/sse/subscribe", s.handleSSESubscribe, limits.Middleware())
	api.GET("/ws/subscribe", s.handleWSSubscribe, limits.Middleware())
}

func (s *Server) registerMessageRoutes(api *echo.Group) {
	sendLimiter := newRateLimiter(s.config.SendRateLimit, s.config.SendRateBurst)

	api.POST("/messages", s.handleSendMessage, sendLimiter)
	api.GET("/messages/project/:projectId", s.handleConversationMessages)
	api.GET("/messages/count/unread", s.handleUnreadCount)
	api.GET("/messages/count/unread-per-project", s.handleUnreadPerProject)
	api.PUT("/messages/project/:projectId/mark-as-read", s.handleMarkAsRead)
}

func (s *Server) registerPresenceRoutes(api *echo.Group) {
	api.PUT("/presence/active", s.handleSetActive)
	api.DELETE("/presence/active", s.handleClearActive)
	api.GET("/presence/users/:userId", s.handleUserStatus)
}

func (s *Server) registerNotificationRoutes(api *echo.Group) {
	api.POST("/notifications", s.handleNotify)
}

func (s *Server) setupRequestLoggerMiddleware() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.InfoContext(c.Request().Context(), "Request", attrs...)
			return nil
		},
	})
}
