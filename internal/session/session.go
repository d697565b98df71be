package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/minihost/backend/internal/bridge/broker"
	"github.com/GriffinCanCode/minihost/backend/internal/bridge/capability"
	"github.com/GriffinCanCode/minihost/backend/internal/bridge/lifecycle"
	"github.com/GriffinCanCode/minihost/backend/internal/bridge/loop"
	"github.com/GriffinCanCode/minihost/backend/internal/bridge/router"
	"github.com/GriffinCanCode/minihost/backend/internal/bridge/storage"
	"github.com/GriffinCanCode/minihost/backend/internal/bridge/surface"
	"github.com/GriffinCanCode/minihost/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/minihost/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/minihost/backend/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/minihost/backend/internal/shared/id"
)

var (
	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("session closed")
	// ErrEmptyCredential rejects an empty supplied token.
	ErrEmptyCredential = errors.New("credential must not be empty")
)

const teardownTimeout = 5 * time.Second

// Params describe the micro-app a session hosts.
type Params struct {
	AppID       string
	Name        string
	Source      surface.Source
	ClientID    string
	Token       string
	Permissions capability.Permissions
}

// ContentLoader materializes a micro-app source.
type ContentLoader interface {
	Load(ctx context.Context, src surface.Source) (surface.Content, error)
}

// Deps are shared by every session of a host.
type Deps struct {
	Bridge config.BridgeConfig
	Store  storage.Store
	Loader ContentLoader
	// Prompter returns the native UI for one session.
	Prompter func(sessionID, appID string) capability.Prompter
	Files    capability.Files
	// Fetcher builds the credential exchange for apps that carry a client
	// id and launch token. Nil disables exchange; credentials then arrive
	// only through SupplyCredential.
	Fetcher func(Params) broker.Fetcher
	Metrics *monitoring.Metrics
	// Tracer records content loads. Nil disables spans.
	Tracer *tracing.Tracer
	Logger *zap.Logger
}

// Session hosts one micro-app: its content surface, message router,
// credential broker and storage namespace, all driven by one event loop.
type Session struct {
	id      id.SessionID
	created time.Time
	deps    Deps
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	loop    *loop.Loop
	machine *lifecycle.Machine
	broker  *broker.Broker
	gateway *storage.Gateway
	router  *router.Router
	surface *surface.Runtime

	// Loop-owned.
	params Params

	mu      sync.Mutex
	started bool
	closed  bool
}

// New wires a session. Nothing runs until Start.
func New(sid id.SessionID, params Params, deps Deps) (*Session, error) {
	if params.AppID == "" {
		return nil, errors.New("session: app id is required")
	}
	if deps.Store == nil || deps.Loader == nil {
		return nil, errors.New("session: store and loader are required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("session_id", sid.String()), zap.String("app_id", params.AppID))

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:      sid,
		created: time.Now(),
		deps:    deps,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		loop:    loop.New(),
		machine: lifecycle.New(),
		params:  params,
	}

	s.machine.OnTransition(s.onTransition)

	brokerOpts := broker.Options{
		MaxWaiters:   deps.Bridge.MaxWaiters,
		FetchTimeout: deps.Bridge.CredentialTimeout,
		Logger:       logger,
	}
	if deps.Fetcher != nil && params.ClientID != "" && params.Token != "" {
		brokerOpts.Fetcher = deps.Fetcher(params)
	}
	if deps.Metrics != nil {
		brokerOpts.Observe = deps.Metrics.RecordCredential
	}
	s.broker = broker.New(brokerOpts)

	s.gateway = storage.NewGateway(deps.Store, params.AppID)
	s.surface = surface.New(surface.Config{ScriptTimeout: deps.Bridge.ScriptTimeout}, s.loop, s.deliver, logger)

	var prompter capability.Prompter
	if deps.Prompter != nil {
		prompter = deps.Prompter(sid.String(), params.AppID)
	}
	routes := capability.Routes(capability.Deps{
		Credentials: s.broker,
		Storage:     s.gateway,
		Prompter:    prompter,
		Files:       deps.Files,
		Permissions: params.Permissions,
		Namespace:   s.gateway.Namespace(),
		Logger:      logger,
	}, capability.Timeouts{
		Request:    deps.Bridge.RequestTimeout,
		Prompt:     deps.Bridge.PromptTimeout,
		Credential: deps.Bridge.CredentialTimeout,
	})

	r, err := router.New(routes, s.machine, s.surface, s.loop, router.Options{
		BufferLimit:    deps.Bridge.BufferLimit,
		DefaultTimeout: deps.Bridge.RequestTimeout,
		Logger:         logger,
		Metrics:        deps.Metrics,
	})
	if err != nil {
		cancel()
		return nil, err
	}
	s.router = r
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() id.SessionID {
	return s.id
}

// AppID returns the hosted micro-app id.
func (s *Session) AppID() string {
	return s.params.AppID
}

// Start runs the event loop, starts credential acquisition and begins the
// first load.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	go s.loop.Run(s.ctx)
	if s.deps.Metrics != nil {
		s.deps.Metrics.SessionStarted()
	}
	s.broker.Acquire()

	return s.onLoop(func() error {
		gen := s.machine.Begin()
		s.load(gen, s.params.Source)
		return nil
	})
}

// Retry reloads content after a failed load.
func (s *Session) Retry() error {
	return s.onLoop(func() error {
		gen, err := s.machine.Retry()
		if err != nil {
			return err
		}
		s.load(gen, s.params.Source)
		return nil
	})
}

// Reload loads the content again in a fresh surface. A non-empty devURL
// replaces the source with that developer server; a session that failed to
// reach its developer server may be pointed at a new one the same way.
func (s *Session) Reload(devURL string) error {
	return s.onLoop(func() error {
		gen, err := s.machine.Reload()
		if err != nil && devURL != "" && s.machine.State() == lifecycle.Errored {
			gen, err = s.machine.Retry()
		}
		if err != nil {
			return err
		}
		if devURL != "" {
			s.params.Source = surface.Source{URL: devURL, DevMode: true}
		}
		s.surface.Unload()
		s.load(gen, s.params.Source)
		return nil
	})
}

// SupplyCredential hands a credential to the broker, resolving every
// pending TOKEN request in order.
func (s *Session) SupplyCredential(token string) error {
	if token == "" {
		return ErrEmptyCredential
	}
	if s.isClosed() {
		return ErrClosed
	}
	s.broker.Supply(token)
	return nil
}

// Storage returns every stored pair of the app's namespace.
func (s *Session) Storage(ctx context.Context) (map[string]string, error) {
	keys, err := s.gateway.Keys(ctx)
	if err != nil {
		return nil, err
	}
	entries := make(map[string]string, len(keys))
	for _, key := range keys {
		value, ok, err := s.gateway.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			entries[key] = value
		}
	}
	return entries, nil
}

// Snapshot reports the session state.
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.onLoopCtx(ctx, func() error {
		snap = s.snapshot()
		return nil
	})
	return snap, err
}

// Close tears the session down: queued and buffered messages are dropped,
// pending credential requests are released and the surface is discarded.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	started := s.started
	s.mu.Unlock()

	teardown := func() {
		s.router.Close()
		s.surface.Close()
	}
	if started {
		ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		if err := s.loop.Call(ctx, teardown); err != nil {
			s.logger.Warn("session teardown did not run on the loop", zap.Error(err))
		}
		cancel()
	} else {
		teardown()
	}

	s.broker.Close()
	s.cancel()
	s.loop.Stop()

	if started && s.deps.Metrics != nil {
		s.deps.Metrics.SessionClosed()
	}
	s.logger.Info("session closed")
}

// Done is closed once the event loop has exited.
func (s *Session) Done() <-chan struct{} {
	return s.loop.Done()
}

// load fetches src off the loop and mounts the result on it. Runs on the
// loop.
func (s *Session) load(gen uint64, src surface.Source) {
	s.logger.Info("loading content",
		zap.Uint64("generation", gen),
		zap.String("url", src.URL),
		zap.Bool("dev_mode", src.DevMode))

	go func() {
		span, ctx := s.deps.Tracer.StartSpan(s.ctx, "content.load")
		span.SetTag("app_id", s.params.AppID)
		span.SetTag("session_id", s.id.String())
		span.SetTag("generation", strconv.FormatUint(gen, 10))

		content, err := s.deps.Loader.Load(ctx, src)
		span.SetError(err)
		span.Finish()
		s.deps.Tracer.Submit(span)

		s.loop.Post(func() { s.mount(gen, content, err) })
	}()
}

func (s *Session) mount(gen uint64, content surface.Content, err error) {
	if s.machine.Generation() != gen {
		return
	}
	if err == nil {
		err = s.surface.Load(s.ctx, content)
	}
	if err != nil {
		s.surface.Unload()
		s.machine.Failed(gen, err)
		return
	}
	if s.machine.Loaded(gen) {
		s.router.Flush(s.surface.Callbacks())
	}
}

// deliver is the surface's postMessage sink. Runs on the loop.
func (s *Session) deliver(raw string) {
	s.router.Deliver(raw)
}

func (s *Session) onTransition(t lifecycle.Transition) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordTransition(t.From.String(), t.To.String())
	}
	fields := []zap.Field{
		zap.String("from", t.From.String()),
		zap.String("to", t.To.String()),
		zap.Uint64("generation", t.Generation),
	}
	if t.Err != nil {
		s.logger.Warn("content failed to load", append(fields, zap.Error(t.Err))...)
		return
	}
	s.logger.Debug("lifecycle transition", fields...)
}

func (s *Session) onLoop(fn func() error) error {
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	return s.onLoopCtx(ctx, fn)
}

func (s *Session) onLoopCtx(ctx context.Context, fn func() error) error {
	if s.isClosed() {
		return ErrClosed
	}
	var result error
	if err := s.loop.Call(ctx, func() { result = fn() }); err != nil {
		if errors.Is(err, loop.ErrStopped) {
			return ErrClosed
		}
		return fmt.Errorf("session busy: %w", err)
	}
	return result
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
