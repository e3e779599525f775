package httpserver

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/projectpulse/internal/app"
	"github.com/pscheid92/projectpulse/internal/domain"
	"github.com/pscheid92/projectpulse/internal/platform/correlation"
	apperrors "github.com/pscheid92/projectpulse/internal/platform/errors"
)

const (
	correlationHeader    = "X-Correlation-ID"
	maxCorrelationLength = 64
	userIDKey            = "userID"
)

// correlationMiddleware tags the request context with a correlation id,
// reusing an inbound one when present, and echoes it in the response.
func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Request().Header.Get(correlationHeader)
		if id == "" || len(id) > maxCorrelationLength {
			id = correlation.NewID()
		}
		c.Response().Header().Set(correlationHeader, id)

		ctx := correlation.WithID(c.Request().Context(), id)
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

// requireUser reads the authenticated user id the gateway put into header.
func requireUser(header string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID, err := strconv.ParseInt(c.Request().Header.Get(header), 10, 64)
			if err != nil || userID <= 0 {
				return apperrors.UnauthorizedError("missing or invalid user identity")
			}

			c.Set(userIDKey, userID)
			ctx := correlation.WithUserID(c.Request().Context(), userID)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// currentUser must only be called behind requireUser.
func currentUser(c echo.Context) int64 {
	userID, _ := c.Get(userIDKey).(int64)
	return userID
}

func ErrorHandlingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				return err
			}

			structuredErr := toAPIError(err)
			logError(c, structuredErr)

			if err := c.JSON(structuredErr.HTTPStatus(), structuredErr.ToResponse()); err != nil {
				return fmt.Errorf("failed to write error response: %w", err)
			}
			return nil
		}
	}
}

// toAPIError maps domain sentinels to their client-facing category.
func toAPIError(err error) *apperrors.Error {
	switch {
	case errors.Is(err, domain.ErrConversationNotFound):
		return apperrors.NotFoundError("project not found").WithCause(err)
	case errors.Is(err, domain.ErrNotParticipant):
		return apperrors.ForbiddenError("not a member of this project").WithCause(err)
	case errors.Is(err, domain.ErrEmptyContent),
		errors.Is(err, domain.ErrContentTooLong),
		errors.Is(err, app.ErrEmptyNotification):
		return apperrors.ValidationError(err.Error()).WithCause(err)
	}
	return apperrors.AsStructuredError(err)
}

func logError(c echo.Context, err *apperrors.Error) {
	ctx := c.Request().Context()
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}

	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}

	switch err.Type {
	case apperrors.TypeValidation, apperrors.TypeNotFound, apperrors.TypeUnauthorized, apperrors.TypeForbidden:
		slog.InfoContext(ctx, "Request rejected", attrs...)
	case apperrors.TypeConflict, apperrors.TypeRateLimited, apperrors.TypeUnavailable:
		slog.WarnContext(ctx, "Request refused", attrs...)
	case apperrors.TypeExternal:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "External service error", attrs...)
	default:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "Internal error", attrs...)
	}
}

// pathID parses a positive int64 path parameter.
func pathID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.ValidationError("invalid " + name).WithField("value", c.Param(name))
	}
	return id, nil
}
