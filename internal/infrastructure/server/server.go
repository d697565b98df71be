package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/minihost/backend/internal/api/http"
	"github.com/GriffinCanCode/minihost/backend/internal/api/middleware"
	"github.com/GriffinCanCode/minihost/backend/internal/bridge/broker"
	"github.com/GriffinCanCode/minihost/backend/internal/bridge/capability"
	"github.com/GriffinCanCode/minihost/backend/internal/bridge/storage"
	"github.com/GriffinCanCode/minihost/backend/internal/bridge/surface"
	"github.com/GriffinCanCode/minihost/backend/internal/catalog"
	"github.com/GriffinCanCode/minihost/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/minihost/backend/internal/infrastructure/httpclient"
	"github.com/GriffinCanCode/minihost/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/minihost/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/minihost/backend/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/minihost/backend/internal/native"
	"github.com/GriffinCanCode/minihost/backend/internal/session"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router   *gin.Engine
	http     *http.Server
	sessions *session.Manager
	hub      *native.Hub
	logger   *logging.Logger
	config   *config.Config
	metrics  *monitoring.Metrics
	tracer   *tracing.Tracer
}

// New creates a new server instance
func New(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	logger.Info("Initializing micro-app host",
		zap.String("port", cfg.Server.Port),
		zap.String("catalog_url", cfg.Catalog.URL),
	)

	metrics := monitoring.NewMetrics()
	tracer := tracing.New("minihost", logger.Logger)

	store, err := newStore(cfg.Storage)
	if err != nil {
		return nil, err
	}

	catalogCfg := httpclient.DefaultConfig("catalog")
	catalogCfg.BaseURL = cfg.Catalog.URL
	catalogCfg.Timeout = cfg.Catalog.Timeout
	catalogClient := catalog.NewClient(catalogCfg, logger.Logger)

	contentCfg := httpclient.DefaultConfig("content")
	contentCfg.RetryMax = 1
	loader := surface.NewLoader(httpclient.New(contentCfg), logger.Logger)

	hub := native.NewHub(logger.Logger, metrics)
	files := native.NewFiles(cfg.Storage.DownloadDir, logger.Logger)

	sessions := session.NewManager(catalogClient, session.Deps{
		Bridge: cfg.Bridge,
		Store:  store,
		Loader: loader,
		Prompter: func(sessionID, appID string) capability.Prompter {
			return hub.For(sessionID, appID)
		},
		Files: files,
		Fetcher: func(p session.Params) broker.Fetcher {
			return catalog.TokenFetcher{Client: catalogClient, ClientID: p.ClientID, Token: p.Token}
		},
		Metrics: metrics,
		Tracer:  tracer,
		Logger:  logger.Logger,
	})

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	handlers := apihttp.NewHandlers(sessions, catalogClient, hub, logger.Logger)
	Routes(router, handlers, hub, metrics)

	s := &Server{
		router:   router,
		sessions: sessions,
		hub:      hub,
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
		tracer:   tracer,
	}
	s.http = &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server initialized successfully")
	return s, nil
}

// Routes registers the host API on router.
func Routes(router gin.IRouter, handlers *apihttp.Handlers, hub *native.Hub, metrics *monitoring.Metrics) {
	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(gzhttp.GzipHandler(metrics.Handler())))
	router.GET("/micro-apps", gin.WrapH(handlers.MicroApps()))

	router.POST("/sessions", handlers.LaunchSession)
	router.GET("/sessions", handlers.ListSessions)
	router.GET("/sessions/:id", handlers.GetSession)
	router.POST("/sessions/:id/retry", handlers.RetrySession)
	router.POST("/sessions/:id/reload", handlers.ReloadSession)
	router.POST("/sessions/:id/credential", handlers.SupplyCredential)
	router.GET("/sessions/:id/storage", handlers.GetStorage)
	router.DELETE("/sessions/:id", handlers.CloseSession)

	router.GET("/shell", hub.HandleConnection)
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Sessions returns the session manager.
func (s *Server) Sessions() *session.Manager {
	return s.sessions
}

// Run serves until Shutdown.
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and tears down every session.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	err := s.http.Shutdown(ctx)
	s.sessions.CloseAll()
	s.logger.Info("Closed all sessions")
	s.tracer.Close()

	_ = s.logger.Sync()
	return err
}

func newStore(cfg config.StorageConfig) (storage.Store, error) {
	if cfg.StorageDir == "" {
		return storage.NewMemoryStore(), nil
	}
	store, err := storage.NewFileStore(cfg.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	return store, nil
}
