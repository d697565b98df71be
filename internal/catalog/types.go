package catalog

import (
	"errors"

	"github.com/GriffinCanCode/minihost/backend/internal/bridge/capability"
	"github.com/GriffinCanCode/minihost/backend/internal/bridge/surface"
)

var (
	// ErrNotFound is returned for an unknown micro-app id.
	ErrNotFound = errors.New("micro-app not found")
	// ErrNoExchangeMaterial is returned when an app has no client id or
	// launch token to exchange.
	ErrNoExchangeMaterial = errors.New("micro-app has no credential exchange material")
)

// MicroApp is a catalog entry.
type MicroApp struct {
	ID          string                 `json:"id" yaml:"id"`
	Name        string                 `json:"name" yaml:"name"`
	Description string                 `json:"description,omitempty" yaml:"description"`
	Source      surface.Source         `json:"source" yaml:"source"`
	ClientID    string                 `json:"clientId,omitempty" yaml:"clientId"`
	Token       string                 `json:"token,omitempty" yaml:"token"`
	Permissions capability.Permissions `json:"permissions" yaml:"permissions"`
}

// CanExchange reports whether the app carries token exchange material.
func (a MicroApp) CanExchange() bool {
	return a.ClientID != "" && a.Token != ""
}

// TokenRequest is the body of POST /auth/token.
type TokenRequest struct {
	ClientID string `json:"clientId"`
	Token    string `json:"token"`
}

// TokenResponse carries the access token returned by the backend.
type TokenResponse struct {
	AccessToken string `json:"accessToken"`
}

type listResponse struct {
	MicroApps []MicroApp `json:"microApps"`
}

type errorResponse struct {
	Error string `json:"error"`
}
