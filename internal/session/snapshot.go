package session

import (
	"time"

	"github.com/GriffinCanCode/minihost/backend/internal/bridge/surface"
)

// Snapshot is a point-in-time view of a session.
type Snapshot struct {
	ID                string             `json:"id"`
	AppID             string             `json:"appId"`
	Name              string             `json:"name"`
	State             string             `json:"state"`
	Generation        uint64             `json:"generation"`
	Error             *LoadFailure       `json:"error,omitempty"`
	Source            surface.Source     `json:"source"`
	Callbacks         []string           `json:"callbacks"`
	Buffered          int                `json:"buffered"`
	InFlight          []string           `json:"inFlight"`
	CredentialHeld    bool               `json:"credentialHeld"`
	CredentialWaiters int                `json:"credentialWaiters"`
	Namespace         string             `json:"namespace"`
	Console           []surface.LogEntry `json:"console"`
	CreatedAt         time.Time          `json:"createdAt"`
}

// LoadFailure is the user-facing description of a failed load.
type LoadFailure struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// snapshot runs on the loop.
func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		ID:                s.id.String(),
		AppID:             s.params.AppID,
		Name:              s.params.Name,
		State:             s.machine.State().String(),
		Generation:        s.machine.Generation(),
		Source:            s.params.Source,
		Callbacks:         s.router.Callbacks().Names(),
		Buffered:          s.router.Buffered(),
		CredentialHeld:    s.broker.Held(),
		CredentialWaiters: s.broker.Pending(),
		Namespace:         s.gateway.Namespace(),
		Console:           s.surface.Console(),
		CreatedAt:         s.created,
	}
	for _, topic := range s.router.InFlight() {
		snap.InFlight = append(snap.InFlight, topic.String())
	}
	if loadErr := s.machine.Err(); loadErr != nil {
		snap.Error = &LoadFailure{Kind: loadErr.Kind.String(), Message: loadErr.Message()}
	}
	return snap
}
