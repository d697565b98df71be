package native

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/minihost/backend/internal/bridge/capability"
)

// ErrScanCancelled is returned when the user closes the QR scanner.
var ErrScanCancelled = errors.New("QR scan cancelled")

// SessionPrompter shows prompts on behalf of one session.
type SessionPrompter struct {
	hub       *Hub
	sessionID string
	appID     string
	logger    *zap.Logger
}

// For returns a prompter that tags prompts with the session and app.
func (h *Hub) For(sessionID, appID string) *SessionPrompter {
	return &SessionPrompter{
		hub:       h,
		sessionID: sessionID,
		appID:     appID,
		logger:    h.logger.With(zap.String("session_id", sessionID), zap.String("app_id", appID)),
	}
}

// Alert shows a message. With no shell connected the alert is logged and
// counts as shown.
func (p *SessionPrompter) Alert(ctx context.Context, alert capability.Alert) error {
	_, err := p.hub.Ask(ctx, Prompt{
		Kind:       KindAlert,
		SessionID:  p.sessionID,
		AppID:      p.appID,
		Title:      alert.Title,
		Message:    alert.Message,
		ButtonText: alert.ButtonText,
	})
	if errors.Is(err, ErrNoShell) {
		p.logger.Info("alert",
			zap.String("title", alert.Title),
			zap.String("message", alert.Message),
			zap.String("button", alert.ButtonText))
		return nil
	}
	return err
}

// Confirm asks a yes/no question.
func (p *SessionPrompter) Confirm(ctx context.Context, confirm capability.Confirm) (bool, error) {
	answer, err := p.hub.Ask(ctx, Prompt{
		Kind:        KindConfirm,
		SessionID:   p.sessionID,
		AppID:       p.appID,
		Title:       confirm.Title,
		Message:     confirm.Message,
		CancelText:  confirm.CancelText,
		ConfirmText: confirm.ConfirmText,
	})
	if err != nil {
		return false, err
	}

	switch answer.Outcome {
	case OutcomeConfirm:
		return true, nil
	case OutcomeCancel, OutcomeDismissed:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected confirm outcome %q", answer.Outcome)
	}
}

// ScanQR opens the scanner overlay and returns the decoded payload.
func (p *SessionPrompter) ScanQR(ctx context.Context) (string, error) {
	answer, err := p.hub.Ask(ctx, Prompt{
		Kind:      KindQR,
		SessionID: p.sessionID,
		AppID:     p.appID,
	})
	if err != nil {
		return "", err
	}
	if answer.Outcome != OutcomeScanned {
		return "", ErrScanCancelled
	}
	return answer.Data, nil
}
