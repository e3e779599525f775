package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"
	apperrors "github.com/pscheid92/projectpulse/internal/platform/errors"
)

const maxNotificationRecipients = 1000

type notifyRequest struct {
	UserIDs []int64        `json:"userIds"`
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
}

// handleNotify is called by the outer application, e.g. when a user is
// invited to a project.
func (s *Server) handleNotify(c echo.Context) error {
	var req notifyRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body").WithCause(err)
	}
	if len(req.UserIDs) == 0 {
		return apperrors.ValidationError("userIds must not be empty")
	}
	if len(req.UserIDs) > maxNotificationRecipients {
		return apperrors.ValidationError("too many recipients").WithField("max", maxNotificationRecipients)
	}

	delivered, err := s.messages.Notify(c.Request().Context(), req.UserIDs, req.Kind, req.Message, req.Data)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusAccepted, map[string]int{"delivered": delivered})
}
