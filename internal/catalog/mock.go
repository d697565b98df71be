package catalog

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// MockServer is an in-process catalog backend with dummy tokens.
type MockServer struct {
	mu   sync.RWMutex
	apps []MicroApp

	exchanges atomic.Int64
}

// NewMockServer serves apps.
func NewMockServer(apps []MicroApp) *MockServer {
	return &MockServer{apps: append([]MicroApp(nil), apps...)}
}

// NewMockHandler returns a gin engine serving the catalog endpoints.
func NewMockHandler(apps []MicroApp) *gin.Engine {
	return NewMockServer(apps).Handler()
}

// Handler builds the gin engine.
func (m *MockServer) Handler() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	m.Register(router)
	return router
}

// Register mounts the catalog endpoints on r.
func (m *MockServer) Register(r gin.IRouter) {
	r.GET("/micro-apps", m.list)
	r.GET("/micro-apps/:id", m.get)
	r.POST("/auth/token", m.exchange)
}

// Exchanges is the number of successful token exchanges served.
func (m *MockServer) Exchanges() int64 {
	return m.exchanges.Load()
}

func (m *MockServer) list(c *gin.Context) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c.JSON(http.StatusOK, listResponse{MicroApps: m.apps})
}

func (m *MockServer) get(c *gin.Context) {
	app, ok := m.find(func(a MicroApp) bool { return a.ID == c.Param("id") })
	if !ok {
		c.JSON(http.StatusNotFound, errorResponse{Error: "micro-app not found"})
		return
	}
	c.JSON(http.StatusOK, app)
}

func (m *MockServer) exchange(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ClientID == "" || req.Token == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "clientId and token are required"})
		return
	}

	_, ok := m.find(func(a MicroApp) bool { return a.ClientID == req.ClientID && a.Token == req.Token })
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse{Error: "unknown client or token"})
		return
	}

	m.exchanges.Add(1)
	c.JSON(http.StatusOK, TokenResponse{AccessToken: "access_" + req.ClientID + "_" + uuid.NewString()})
}

func (m *MockServer) find(match func(MicroApp) bool) (MicroApp, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, app := range m.apps {
		if match(app) {
			return app, true
		}
	}
	return MicroApp{}, false
}
