// Package handlers provides the HTTP handlers: the Slack Events API endpoint,
// the read-only admin API over stored events, and the health probe.
//
// This file holds the shared response helpers. Every failure is written as an
// ErrorResponse with a stable code; 5xx failures are also logged with the
// request-scoped logger.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/slacker/internal/http/middleware"
)

// ErrorResponse is the error envelope returned by all endpoints.
type ErrorResponse struct {
	// RequestID echoes X-Request-ID so clients can quote it.
	RequestID string `json:"request_id,omitempty"`
	// Code is a stable machine-readable code (see errors.go).
	Code string `json:"code"`
	// Message is safe to show to users.
	Message string `json:"message"`
}

func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get(middleware.HeaderRequestID),
		Code:      code,
		Message:   msg,
	})
}

// Fail is the exported variant of fail for router-level fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}
