package utils

import (
	"errors"
	"net/http"

	"docllama/internal/logger"
	"docllama/models"

	"github.com/gin-gonic/gin"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	ErrorCode string      `json:"error_code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}

// RespondWithError sends a standardized error response
func RespondWithError(c *gin.Context, statusCode int, errorCode, message string, details interface{}) {
	c.JSON(statusCode, ErrorResponse{
		ErrorCode: errorCode,
		Message:   message,
		Details:   details,
	})
}

// RespondWithBadRequest sends a 400 Bad Request error
func RespondWithBadRequest(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusBadRequest, "bad_request", message, details)
}

// RespondWithNotFound sends a 404 Not Found error
func RespondWithNotFound(c *gin.Context, message string) {
	RespondWithError(c, http.StatusNotFound, "not_found", message, nil)
}

// RespondWithInternalError sends a 500 Internal Server Error
func RespondWithInternalError(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusInternalServerError, "internal_error", message, details)
}

// RespondWithUpstreamError sends a 502 Bad Gateway error
func RespondWithUpstreamError(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusBadGateway, "upstream_error", message, details)
}

// RespondWithServiceError maps the error taxonomy onto HTTP statuses.
func RespondWithServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		RespondWithBadRequest(c, err.Error(), nil)
	case errors.Is(err, models.ErrUpstream):
		RespondWithUpstreamError(c, "Model backend request failed", err.Error())
	case errors.Is(err, models.ErrIndex):
		logger.Error("Vector index failure", "path", c.FullPath(), "error", err)
		RespondWithError(c, http.StatusInternalServerError, "index_error", "Vector index request failed", err.Error())
	default:
		logger.Error("Unhandled request failure", "path", c.FullPath(), "error", err)
		RespondWithInternalError(c, "Internal server error", nil)
	}
}
