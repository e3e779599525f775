package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    *Error
		typ    ErrorType
		status int
	}{
		{"validation", ValidationError("bad"), TypeValidation, http.StatusBadRequest},
		{"unauthorized", UnauthorizedError("who"), TypeUnauthorized, http.StatusUnauthorized},
		{"forbidden", ForbiddenError("no"), TypeForbidden, http.StatusForbidden},
		{"not found", NotFoundError("gone"), TypeNotFound, http.StatusNotFound},
		{"conflict", ConflictError("dup"), TypeConflict, http.StatusConflict},
		{"rate limited", RateLimitedError("slow down"), TypeRateLimited, http.StatusTooManyRequests},
		{"internal", InternalError("boom", nil), TypeInternal, http.StatusInternalServerError},
		{"external", ExternalError("redis", nil), TypeExternal, http.StatusBadGateway},
		{"unavailable", UnavailableError("full"), TypeUnavailable, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.typ, tt.err.Type)
			assert.Equal(t, tt.status, tt.err.HTTPStatus())
			assert.NotNil(t, tt.err.Context)
			assert.Contains(t, tt.err.Error(), string(tt.typ))
		})
	}
}

func TestInternalError_WrapsCause(t *testing.T) {
	cause := fmt.Errorf("database connection failed")
	err := InternalError("failed to save messages", cause)

	assert.Equal(t, cause, err.Cause)
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "database connection failed")
}

func TestWithField_Chainable(t *testing.T) {
	err := NotFoundError("project not found").
		WithField("project_id", int64(42)).
		WithField("user_id", int64(7))

	assert.Equal(t, int64(42), err.Context["project_id"])
	assert.Equal(t, int64(7), err.Context["user_id"])
}

func TestWithField_NilContext(t *testing.T) {
	err := &Error{Type: TypeValidation, Message: "x"}
	err.WithField("k", "v")
	assert.Equal(t, "v", err.Context["k"])
}

func TestToResponse(t *testing.T) {
	resp := ValidationError("content must not be empty").WithField("field", "content").ToResponse()

	assert.Equal(t, "content must not be empty", resp.Error)
	assert.Equal(t, TypeValidation, resp.Type)
	assert.Equal(t, "content", resp.Context["field"])
}

func TestAsStructuredError(t *testing.T) {
	assert.Nil(t, AsStructuredError(nil))

	original := ForbiddenError("not a member")
	wrapped := fmt.Errorf("handler: %w", original)
	assert.Same(t, original, AsStructuredError(wrapped))

	plain := errors.New("oops")
	converted := AsStructuredError(plain)
	require.NotNil(t, converted)
	assert.Equal(t, TypeInternal, converted.Type)
	assert.ErrorIs(t, converted, plain)
}

func TestFromHTTPStatus(t *testing.T) {
	assert.Equal(t, TypeNotFound, FromHTTPStatus(http.StatusNotFound, "").Type)
	assert.Equal(t, "Not Found", FromHTTPStatus(http.StatusNotFound, "").Message)
	assert.Equal(t, TypeRateLimited, FromHTTPStatus(http.StatusTooManyRequests, "rate limit exceeded").Type)
	assert.Equal(t, TypeExternal, FromHTTPStatus(http.StatusBadGateway, "").Type)
	assert.Equal(t, TypeUnavailable, FromHTTPStatus(http.StatusServiceUnavailable, "").Type)
	assert.Equal(t, TypeInternal, FromHTTPStatus(http.StatusTeapot, "").Type)
}
