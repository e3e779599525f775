package httpserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	apperrors "github.com/pscheid92/projectpulse/internal/platform/errors"
)

type setActiveRequest struct {
	ProjectID int64 `json:"projectId"`
}

type userStatusResponse struct {
	UserID          int64      `json:"userId"`
	Online          bool       `json:"online"`
	LastSeenAt      *time.Time `json:"lastSeenAt,omitempty"`
	ActiveProjectID *int64     `json:"activeProjectId,omitempty"`
}

// handleSetActive records the project the caller is looking at. Messages
// sent there while it stays active arrive already read.
func (s *Server) handleSetActive(c echo.Context) error {
	var req setActiveRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body").WithCause(err)
	}
	if req.ProjectID <= 0 {
		return apperrors.ValidationError("projectId is required")
	}

	s.presence.SetActive(currentUser(c), req.ProjectID)
	slog.DebugContext(c.Request().Context(), "Presence set", "project_id", req.ProjectID)
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleClearActive(c echo.Context) error {
	s.presence.ClearActive(currentUser(c))
	return c.NoContent(http.StatusNoContent)
}

// handleUserStatus reports whether a user has a live channel on this
// instance. The last-seen time is only known while the channel is open.
func (s *Server) handleUserStatus(c echo.Context) error {
	userID, err := pathID(c, "userId")
	if err != nil {
		return err
	}

	resp := userStatusResponse{UserID: userID, Online: s.registry.IsOnline(userID)}
	if seen, ok := s.registry.LastSeenAt(userID); ok {
		seen = seen.UTC()
		resp.LastSeenAt = &seen
	}
	if projectID, ok := s.presence.Active(userID); ok {
		resp.ActiveProjectID = &projectID
	}
	return writeJSON(c, http.StatusOK, resp)
}
