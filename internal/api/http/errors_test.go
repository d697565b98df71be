package http

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/GriffinCanCode/minihost/backend/internal/bridge/lifecycle"
	"github.com/GriffinCanCode/minihost/backend/internal/catalog"
	"github.com/GriffinCanCode/minihost/backend/internal/infrastructure/httpclient"
	"github.com/GriffinCanCode/minihost/backend/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/minihost/backend/internal/session"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unknown session", fmt.Errorf("%w: sess_x", session.ErrNotFound), http.StatusNotFound},
		{"unknown app", fmt.Errorf("%w: x", catalog.ErrNotFound), http.StatusNotFound},
		{"invalid transition", fmt.Errorf("%w: ready -> loading", lifecycle.ErrInvalidTransition), http.StatusConflict},
		{"closed", session.ErrClosed, http.StatusGone},
		{"empty credential", session.ErrEmptyCredential, http.StatusBadRequest},
		{"breaker open", resilience.ErrCircuitOpen, http.StatusServiceUnavailable},
		{"upstream status", fmt.Errorf("list: %w", &httpclient.StatusError{Code: 500}), http.StatusBadGateway},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
