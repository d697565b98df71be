package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/minihost/backend/internal/bridge/surface"
	"github.com/GriffinCanCode/minihost/backend/internal/catalog"
	"github.com/GriffinCanCode/minihost/backend/internal/shared/id"
)

// ErrNotFound is returned for an unknown session id.
var ErrNotFound = errors.New("session not found")

// Catalog resolves micro-apps by id.
type Catalog interface {
	Get(ctx context.Context, id string) (catalog.MicroApp, error)
}

// ParamsFromApp converts a catalog entry into session parameters.
func ParamsFromApp(app catalog.MicroApp) Params {
	return Params{
		AppID:       app.ID,
		Name:        app.Name,
		Source:      app.Source,
		ClientID:    app.ClientID,
		Token:       app.Token,
		Permissions: app.Permissions,
	}
}

// Manager keeps the live sessions of a host.
type Manager struct {
	catalog Catalog
	deps    Deps
	logger  *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a manager launching apps from cat.
func NewManager(cat Catalog, deps Deps) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		catalog:  cat,
		deps:     deps,
		logger:   logger.Named("sessions"),
		sessions: make(map[string]*Session),
	}
}

// Launch resolves appID in the catalog and starts a session for it. A
// non-empty devURL overrides the catalog source with a developer server.
func (m *Manager) Launch(ctx context.Context, appID, devURL string) (*Session, error) {
	if m.catalog == nil {
		return nil, errors.New("no catalog configured")
	}
	app, err := m.catalog.Get(ctx, appID)
	if err != nil {
		return nil, err
	}

	params := ParamsFromApp(app)
	if devURL != "" {
		params.Source = surface.Source{URL: devURL, DevMode: true}
	}
	return m.Open(params)
}

// Open starts a session for params.
func (m *Manager) Open(params Params) (*Session, error) {
	s, err := New(id.NewSessionID(), params, m.deps)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[s.ID().String()] = s
	m.mu.Unlock()

	if err := s.Start(); err != nil {
		m.Close(s.ID().String())
		return nil, fmt.Errorf("start session: %w", err)
	}

	m.logger.Info("session started",
		zap.String("session_id", s.ID().String()),
		zap.String("app_id", params.AppID))
	return s, nil
}

// Get returns a session by id.
func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return s, nil
}

// List returns live sessions, oldest first.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()

	// Session ids are ULIDs and sort by creation time.
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID().String() < out[j].ID().String()
	})
	return out
}

// Close tears down and forgets a session.
func (m *Manager) Close(sessionID string) error {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	s.Close()
	return nil
}

// CloseAll tears down every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Close()
		}(s)
	}
	wg.Wait()
}
