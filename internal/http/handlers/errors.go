package handlers

import (
	"errors"
	"net/http"

	"sharedtrips/internal/chat"
	"sharedtrips/internal/domain"
	"sharedtrips/internal/http/middleware"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// ErrorResponse standardizes error payloads.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func respondError(c *gin.Context, status int, code, message string) {
	if code == "" {
		code = http.StatusText(status)
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:     message,
		Code:      code,
		Message:   message,
		RequestID: middleware.GetRequestID(c),
	})
}

// RespondDomainError maps domain errors to HTTP responses.
func RespondDomainError(c *gin.Context, err error) {
	switch {
	case domain.IsValidation(err):
		respondError(c, http.StatusBadRequest, "validation_error", err.Error())
	case domain.IsNotFound(err):
		respondError(c, http.StatusNotFound, "not_found", err.Error())
	case domain.IsCapacity(err):
		respondError(c, http.StatusConflict, "capacity_exceeded", err.Error())
	case domain.IsConflict(err):
		respondError(c, http.StatusConflict, "conflict", err.Error())
	case domain.IsRateLimited(err):
		respondError(c, http.StatusTooManyRequests, "rate_limited", err.Error())
	case errors.Is(err, chat.ErrHubClosed):
		respondError(c, http.StatusServiceUnavailable, "shutting_down", "server is shutting down")
	default:
		_ = c.Error(err)
		log.Error().Err(err).Str("module", "http").Str("request_id", middleware.GetRequestID(c)).
			Str("path", c.Request.URL.Path).Msg("request failed")
		respondError(c, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
