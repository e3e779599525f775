package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

const wsReadLimit = 4096

// handleSSESubscribe opens the caller's push channel as an event stream and
// holds the request until the connection is replaced, pruned, or the
// client goes away.
func (s *Server) handleSSESubscribe(c echo.Context) error {
	userID := currentUser(c)
	ctx := c.Request().Context()

	h := c.Response().Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)
	c.Response().Flush()

	conn, err := s.registry.Register(userID, newSSESink(c.Response(), s.config.WriteTimeout))
	if err != nil {
		slog.WarnContext(ctx, "Subscribe failed", "transport", "sse", "error", err)
		return nil
	}

	select {
	case <-conn.Done():
	case <-ctx.Done():
	}
	s.registry.Unregister(userID, conn)
	return nil
}

// handleWSSubscribe opens the caller's push channel over a WebSocket. The
// read loop only drains control frames; clients never send events.
func (s *Server) handleWSSubscribe(c echo.Context) error {
	userID := currentUser(c)
	ctx := c.Request().Context()

	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already replied with an HTTP error.
		slog.InfoContext(ctx, "WebSocket upgrade failed", "error", err)
		return nil
	}
	ws.SetReadLimit(wsReadLimit)

	conn, err := s.registry.Register(userID, newWSSink(ws, s.config.WriteTimeout))
	if err != nil {
		slog.WarnContext(ctx, "Subscribe failed", "transport", "websocket", "error", err)
		return nil
	}

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			slog.DebugContext(ctx, "WebSocket read loop ended", "connection_id", conn.Handle(), "error", err)
			break
		}
	}
	s.registry.Unregister(userID, conn)
	return nil
}
