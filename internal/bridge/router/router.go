// Package router dispatches inbound envelopes to capability handlers and
// sends exactly one resolve or reject back per request.
//
// A Router is owned by the session's event loop: Deliver, Flush, Close and
// the accessors must be called from functions running on that loop. Handlers
// run on their own goroutines and post their results back through the
// Scheduler.
package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/minihost/backend/internal/bridge/envelope"
	"github.com/GriffinCanCode/minihost/backend/internal/bridge/lifecycle"
	"github.com/GriffinCanCode/minihost/backend/internal/infrastructure/monitoring"
)

// Gate exposes the lifecycle state the router consults. The router never
// changes it.
type Gate interface {
	State() lifecycle.State
	Generation() uint64
}

// Emitter evaluates an outbound invocation inside the content surface.
type Emitter interface {
	Emit(script string) error
}

// Scheduler runs a function on the event loop.
type Scheduler interface {
	Post(fn func()) bool
}

// Options tunes a Router.
type Options struct {
	// BufferLimit caps envelopes held while the surface is not ready.
	BufferLimit int
	// DefaultTimeout bounds handlers whose route sets none.
	DefaultTimeout time.Duration
	Logger         *zap.Logger
	Metrics        *monitoring.Metrics
}

type queued struct {
	env envelope.Envelope
	gen uint64
}

type result struct {
	value any
	err   error
}

// Router is the message router of one session.
type Router struct {
	routes  map[envelope.Topic]Route
	gate    Gate
	emitter Emitter
	sched   Scheduler
	opts    Options
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	callbacks envelope.CallbackSet
	buffer    []envelope.Envelope
	busy      map[envelope.Topic]bool
	queues    map[envelope.Topic][]queued
	cancels   map[envelope.Topic]context.CancelFunc
	running   map[envelope.Topic]uint64
	closed    bool
}

// New builds a router over a fixed route table. Routes cannot be added
// afterwards.
func New(routes []Route, gate Gate, emitter Emitter, sched Scheduler, opts Options) (*Router, error) {
	if opts.BufferLimit <= 0 {
		opts.BufferLimit = 256
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	table := make(map[envelope.Topic]Route, len(routes))
	for _, r := range routes {
		if r.Topic == "" || r.Handler == nil {
			return nil, fmt.Errorf("route %q: topic and handler are required", r.Topic)
		}
		if _, dup := table[r.Topic]; dup {
			return nil, fmt.Errorf("route %q registered twice", r.Topic)
		}
		table[r.Topic] = r
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Router{
		routes:  table,
		gate:    gate,
		emitter: emitter,
		sched:   sched,
		opts:    opts,
		logger:  logger.Named("router"),
		ctx:     ctx,
		cancel:  cancel,
		busy:    make(map[envelope.Topic]bool),
		queues:  make(map[envelope.Topic][]queued),
		cancels: make(map[envelope.Topic]context.CancelFunc),
		running: make(map[envelope.Topic]uint64),
	}, nil
}

// Deliver accepts one raw message from the content surface.
func (r *Router) Deliver(raw string) {
	if r.closed {
		return
	}

	env, err := envelope.Decode(raw)
	if err != nil {
		r.logger.Warn("dropping undecodable message", zap.Error(err), zap.Int("length", len(raw)))
		r.record("", "malformed")
		return
	}

	if r.gate.State() != lifecycle.Ready {
		if len(r.buffer) >= r.opts.BufferLimit {
			r.logger.Warn("buffer full, dropping message",
				zap.String("topic", env.Topic.String()),
				zap.Int("limit", r.opts.BufferLimit))
			r.record(env.Topic.String(), "dropped")
			if r.opts.Metrics != nil {
				r.opts.Metrics.RecordBufferDrop(1)
			}
			return
		}
		r.buffer = append(r.buffer, env)
		r.record(env.Topic.String(), "buffered")
		return
	}

	r.dispatch(env)
}

// Flush records the callbacks the freshly loaded surface defined, cancels
// handlers still running for an earlier load and replays buffered envelopes
// in arrival order. Call it when the lifecycle enters Ready.
func (r *Router) Flush(callbacks envelope.CallbackSet) {
	if r.closed {
		return
	}
	r.callbacks = callbacks

	gen := r.gate.Generation()
	for topic, cancel := range r.cancels {
		if r.running[topic] != gen {
			r.logger.Debug("cancelling handler from a previous load",
				zap.String("topic", topic.String()),
				zap.Uint64("generation", r.running[topic]))
			cancel()
		}
	}

	buffered := r.buffer
	r.buffer = nil
	if len(buffered) > 0 {
		r.logger.Debug("replaying buffered messages", zap.Int("count", len(buffered)))
	}
	for _, env := range buffered {
		r.dispatch(env)
	}
}

// Close drops buffered and queued envelopes and cancels running handlers.
// Results arriving later are discarded.
func (r *Router) Close() {
	if r.closed {
		return
	}
	r.closed = true
	r.cancel()

	dropped := len(r.buffer)
	for _, q := range r.queues {
		dropped += len(q)
	}
	if dropped > 0 {
		r.logger.Warn("dropping undelivered messages on teardown", zap.Int("count", dropped))
		if r.opts.Metrics != nil {
			r.opts.Metrics.RecordBufferDrop(dropped)
		}
	}
	r.buffer = nil
	r.queues = make(map[envelope.Topic][]queued)
}

// Buffered returns the number of envelopes waiting for Ready.
func (r *Router) Buffered() int {
	return len(r.buffer)
}

// InFlight returns the topics with a running handler.
func (r *Router) InFlight() []envelope.Topic {
	topics := make([]envelope.Topic, 0, len(r.busy))
	for t, busy := range r.busy {
		if busy {
			topics = append(topics, t)
		}
	}
	return topics
}

// Callbacks returns the negotiated callback set.
func (r *Router) Callbacks() envelope.CallbackSet {
	return r.callbacks
}

func (r *Router) dispatch(env envelope.Envelope) {
	route, ok := r.routes[env.Topic]
	if !ok {
		r.logger.Warn("no handler for topic", zap.String("topic", env.Topic.String()))
		r.record(env.Topic.String(), "unknown")
		return
	}

	gen := r.gate.Generation()
	if r.busy[env.Topic] || len(r.queues[env.Topic]) > 0 {
		r.queues[env.Topic] = append(r.queues[env.Topic], queued{env: env, gen: gen})
		r.record(env.Topic.String(), "queued")
		return
	}
	r.start(route, env, gen)
}

func (r *Router) start(route Route, env envelope.Envelope, gen uint64) {
	timeout := route.Timeout
	if timeout <= 0 {
		timeout = r.opts.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(r.ctx, timeout)

	r.busy[route.Topic] = true
	r.cancels[route.Topic] = cancel
	r.running[route.Topic] = gen
	r.record(route.Topic.String(), "dispatched")

	timer := monitoring.NewTimer(r.opts.Metrics, route.Topic.String())
	go func() {
		res := invoke(ctx, route, env)
		timer.Stop()
		if !r.sched.Post(func() { r.complete(route, gen, res) }) {
			cancel()
		}
	}()
}

// invoke runs the handler and waits for it or for ctx, whichever is first.
func invoke(ctx context.Context, route Route, env envelope.Envelope) result {
	done := make(chan result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- result{err: &HandlerError{Topic: route.Topic, Panic: p}}
			}
		}()
		value, err := route.Handler.Handle(ctx, env.Data)
		if err != nil {
			err = &HandlerError{Topic: route.Topic, Err: err}
		}
		done <- result{value: value, err: err}
	}()

	select {
	case res := <-done:
		return res
	case <-ctx.Done():
		err := ErrHandlerTimeout
		if errors.Is(ctx.Err(), context.Canceled) {
			err = context.Canceled
		}
		return result{err: &HandlerError{Topic: route.Topic, Err: err}}
	}
}

func (r *Router) complete(route Route, gen uint64, res result) {
	if cancel := r.cancels[route.Topic]; cancel != nil {
		cancel()
		delete(r.cancels, route.Topic)
	}
	delete(r.running, route.Topic)
	r.busy[route.Topic] = false
	if r.closed {
		return
	}

	topic := route.Topic.String()
	if r.gate.State() != lifecycle.Ready || r.gate.Generation() != gen {
		r.logger.Debug("discarding result for a previous load",
			zap.String("topic", topic),
			zap.Uint64("generation", gen))
		r.record(topic, "discarded")
	} else {
		r.emit(route, res)
	}

	r.next(route)
}

func (r *Router) next(route Route) {
	// A resolve callback may have posted the same topic again.
	if r.busy[route.Topic] {
		return
	}
	for len(r.queues[route.Topic]) > 0 {
		q := r.queues[route.Topic][0]
		r.queues[route.Topic] = r.queues[route.Topic][1:]
		if q.gen != r.gate.Generation() {
			r.logger.Debug("dropping queued message from a previous load", zap.String("topic", route.Topic.String()))
			r.record(route.Topic.String(), "discarded")
			continue
		}
		r.start(route, q.env, q.gen)
		return
	}
	delete(r.queues, route.Topic)
}

func (r *Router) emit(route Route, res result) {
	topic := route.Topic.String()

	if res.err != nil {
		var handlerErr *HandlerError
		message := res.err.Error()
		if errors.As(res.err, &handlerErr) {
			message = handlerErr.Message()
		}
		r.logger.Info("request rejected", zap.String("topic", topic), zap.Error(res.err))
		r.record(topic, "rejected")
		if route.Reject != "" {
			r.invoke(route.Reject, message)
		}
		return
	}

	r.record(topic, "resolved")
	if route.Resolve == "" {
		return
	}
	if _, ok := res.value.(Void); ok || res.value == nil {
		r.invoke(route.Resolve)
		return
	}
	r.invoke(route.Resolve, res.value)
}

func (r *Router) invoke(callback string, payload ...any) {
	if !r.callbacks.Has(callback) {
		r.logger.Debug("callback not defined by surface", zap.String("callback", callback))
		return
	}
	script, err := envelope.Encode(callback, payload...)
	if err != nil {
		r.logger.Error("encode callback", zap.String("callback", callback), zap.Error(err))
		return
	}
	if err := r.emitter.Emit(script); err != nil {
		r.logger.Warn("emit callback", zap.String("callback", callback), zap.Error(err))
	}
}

func (r *Router) record(topic, outcome string) {
	if r.opts.Metrics != nil {
		r.opts.Metrics.RecordEnvelope(topic, outcome)
	}
}
