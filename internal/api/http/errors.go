package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/minihost/backend/internal/bridge/lifecycle"
	"github.com/GriffinCanCode/minihost/backend/internal/catalog"
	"github.com/GriffinCanCode/minihost/backend/internal/infrastructure/httpclient"
	"github.com/GriffinCanCode/minihost/backend/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/minihost/backend/internal/session"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var statusErr *httpclient.StatusError
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, session.ErrClosed):
		return http.StatusGone
	case errors.Is(err, session.ErrEmptyCredential):
		return http.StatusBadRequest
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrTooManyRequests):
		return http.StatusServiceUnavailable
	case errors.As(err, &statusErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
