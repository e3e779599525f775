package httpserver

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/projectpulse/internal/domain"
	apperrors "github.com/pscheid92/projectpulse/internal/platform/errors"
)

type sendMessageRequest struct {
	ProjectID int64  `json:"projectId"`
	Content   string `json:"content"`
}

type markReadResponse struct {
	ProjectID int64 `json:"projectId"`
	Updated   int64 `json:"updated"`
}

func (s *Server) handleSendMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body").WithCause(err)
	}
	if req.ProjectID <= 0 {
		return apperrors.ValidationError("projectId is required")
	}

	record, err := s.messages.SendMessage(c.Request().Context(), currentUser(c), req.ProjectID, req.Content)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusCreated, record)
}

func (s *Server) handleConversationMessages(c echo.Context) error {
	projectID, err := pathID(c, "projectId")
	if err != nil {
		return err
	}

	records, err := s.messages.ConversationMessages(c.Request().Context(), currentUser(c), projectID)
	if err != nil {
		return err
	}
	if records == nil {
		records = []domain.DeliveryRecord{}
	}
	return writeJSON(c, http.StatusOK, records)
}

func (s *Server) handleUnreadCount(c echo.Context) error {
	count, err := s.messages.UnreadCount(c.Request().Context(), currentUser(c))
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, map[string]int64{"count": count})
}

// handleUnreadPerProject answers with a projectId → count object. Projects
// without unread messages are omitted.
func (s *Server) handleUnreadPerProject(c echo.Context) error {
	counts, err := s.messages.UnreadByConversation(c.Request().Context(), currentUser(c))
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, counts)
}

func (s *Server) handleMarkAsRead(c echo.Context) error {
	projectID, err := pathID(c, "projectId")
	if err != nil {
		return err
	}

	updated, err := s.messages.MarkConversationRead(c.Request().Context(), currentUser(c), projectID)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, markReadResponse{ProjectID: projectID, Updated: updated})
}

func writeJSON(c echo.Context, status int, body any) error {
	if err := c.JSON(status, body); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}
