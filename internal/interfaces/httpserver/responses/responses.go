// Package responses contains HTTP response DTOs and the error mapping for
// the rendering-layer surface.
package responses

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"jan-server/services/chat-client/internal/domain/chat"
	"jan-server/services/chat-client/internal/domain/conversation"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error *ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// HandleError maps domain errors to HTTP status codes and writes the
// response.
func HandleError(c *gin.Context, err error, message string, log zerolog.Logger) {
	status := http.StatusInternalServerError
	errType := "internal_error"

	switch {
	case errors.Is(err, chat.ErrBusy):
		status = http.StatusConflict
		errType = "conflict_error"
	case errors.Is(err, chat.ErrNothingToRetry):
		status = http.StatusConflict
		errType = "conflict_error"
	case errors.Is(err, conversation.ErrInvalidTransition):
		status = http.StatusConflict
		errType = "conflict_error"
	case errors.Is(err, chat.ErrNotRunning):
		status = http.StatusServiceUnavailable
		errType = "unavailable_error"
	}

	if status >= 500 {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg(message)
	}

	c.JSON(status, ErrorResponse{Error: &ErrorDetail{
		Message: message + ": " + err.Error(),
		Type:    errType,
	}})
}

// HandleValidationError writes a 400 for malformed request payloads.
func HandleValidationError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: &ErrorDetail{
		Message: err.Error(),
		Type:    "validation_error",
	}})
}
