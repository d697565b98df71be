package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/minihost/backend/internal/catalog"
	"github.com/GriffinCanCode/minihost/backend/internal/session"
)

const snapshotTimeout = 5 * time.Second

// Catalog lists the micro-apps available to launch.
type Catalog interface {
	ListMicroApps(ctx context.Context) ([]catalog.MicroApp, error)
}

// Shells reports connected host shells.
type Shells interface {
	Connected() int
}

// Handlers contains the host API handlers.
type Handlers struct {
	sessions *session.Manager
	catalog  Catalog
	shells   Shells
	logger   *zap.Logger
	started  time.Time
}

// NewHandlers creates a new handler set.
func NewHandlers(sessions *session.Manager, cat Catalog, shells Shells, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		sessions: sessions,
		catalog:  cat,
		shells:   shells,
		logger:   logger.Named("api"),
		started:  time.Now(),
	}
}

type launchRequest struct {
	AppID  string `json:"appId" binding:"required"`
	DevURL string `json:"devUrl"`
}

type reloadRequest struct {
	URL string `json:"url"`
}

type credentialRequest struct {
	Token string `json:"token" binding:"required"`
}

// Health reports liveness and a few counters.
func (h *Handlers) Health(c *gin.Context) {
	shells := 0
	if h.shells != nil {
		shells = h.shells.Connected()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"sessions": len(h.sessions.List()),
		"shells":   shells,
		"uptime":   time.Since(h.started).Round(time.Second).String(),
	})
}

// LaunchSession starts a session for a catalog app.
func (h *Handlers) LaunchSession(c *gin.Context) {
	var req launchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "appId is required"})
		return
	}

	s, err := h.sessions.Launch(c.Request.Context(), req.AppID, req.DevURL)
	if err != nil {
		respondError(c, err)
		return
	}
	h.respondSnapshot(c, http.StatusCreated, s)
}

// ListSessions lists live sessions.
func (h *Handlers) ListSessions(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), snapshotTimeout)
	defer cancel()

	snapshots := make([]session.Snapshot, 0)
	for _, s := range h.sessions.List() {
		snap, err := s.Snapshot(ctx)
		if err != nil {
			// Closed between List and Snapshot.
			continue
		}
		snapshots = append(snapshots, snap)
	}
	c.JSON(http.StatusOK, gin.H{"sessions": snapshots})
}

// GetSession returns one session.
func (h *Handlers) GetSession(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	h.respondSnapshot(c, http.StatusOK, s)
}

// RetrySession reloads content after a failed load.
func (h *Handlers) RetrySession(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	if err := s.Retry(); err != nil {
		respondError(c, err)
		return
	}
	h.respondSnapshot(c, http.StatusAccepted, s)
}

// ReloadSession reloads content, optionally from a new developer URL.
func (h *Handlers) ReloadSession(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}

	var req reloadRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
			return
		}
	}

	if err := s.Reload(req.URL); err != nil {
		respondError(c, err)
		return
	}
	h.respondSnapshot(c, http.StatusAccepted, s)
}

// SupplyCredential hands a credential to the session.
func (h *Handlers) SupplyCredential(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}

	var req credentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return
	}
	if err := s.SupplyCredential(req.Token); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetStorage returns the session's stored pairs.
func (h *Handlers) GetStorage(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}

	entries, err := s.Storage(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// CloseSession tears a session down.
func (h *Handlers) CloseSession(c *gin.Context) {
	if err := h.sessions.Close(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) lookup(c *gin.Context) (*session.Session, bool) {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return s, true
}

func (h *Handlers) respondSnapshot(c *gin.Context, status int, s *session.Session) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), snapshotTimeout)
	defer cancel()

	snap, err := s.Snapshot(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(status, snap)
}
