// Package broker owns the single credential of a micro-app session.
//
// Callers never fetch a credential themselves. They wait on the broker, which
// runs at most one fetch at a time and broadcasts whatever arrives to every
// waiter in the order they asked.
package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Fetcher performs the underlying credential acquisition, typically a token
// exchange against the catalog backend.
type Fetcher interface {
	Fetch(ctx context.Context) (string, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context) (string, error)

func (f FetcherFunc) Fetch(ctx context.Context) (string, error) { return f(ctx) }

// Continuation receives the outcome of a credential request: a token or an
// error, never both.
type Continuation func(token string, err error)

// Options configures a Broker.
type Options struct {
	// Fetcher acquires the credential. Without one the broker only waits for
	// Supply.
	Fetcher Fetcher
	// MaxWaiters bounds the pending queue; further requests fail with
	// ErrTooManyWaiters.
	MaxWaiters int
	// FetchTimeout bounds a single fetch. Zero means no bound beyond Close.
	FetchTimeout time.Duration
	// Observe, when set, is told how each request ended ("supplied",
	// "failed", "timeout", "closed", "rejected") and how long it waited.
	Observe func(result string, waited time.Duration)
	Logger  *zap.Logger
}

type waiter struct {
	fn     Continuation
	queued time.Time
	stop   func() bool
}

// Broker holds at most one credential and the FIFO of requests waiting for
// it.
type Broker struct {
	opts   Options
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	token    string
	held     bool
	closed   bool
	fetching bool
	fetchGen uint64
	waiters  []*waiter
}

// New creates a broker with no credential held.
func New(opts Options) *Broker {
	if opts.MaxWaiters <= 0 {
		opts.MaxWaiters = 64
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		opts:   opts,
		logger: logger.Named("broker"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Await registers fn for the credential. If one is held, fn runs before
// Await returns. Otherwise fn is queued and acquisition is started if a
// fetcher is configured. If ctx ends first, fn receives ErrCredentialTimeout.
func (b *Broker) Await(ctx context.Context, fn Continuation) {
	now := time.Now()

	b.mu.Lock()
	switch {
	case b.closed:
		b.mu.Unlock()
		b.observe("closed", now)
		fn("", ErrBrokerClosed)
		return
	case b.held:
		token := b.token
		b.mu.Unlock()
		b.observe("supplied", now)
		fn(token, nil)
		return
	case len(b.waiters) >= b.opts.MaxWaiters:
		b.mu.Unlock()
		b.observe("rejected", now)
		fn("", ErrTooManyWaiters)
		return
	}

	w := &waiter{fn: fn, queued: now}
	b.waiters = append(b.waiters, w)
	w.stop = context.AfterFunc(ctx, func() {
		if b.remove(w) {
			b.observe("timeout", w.queued)
			fn("", fmt.Errorf("%w: %w", ErrCredentialTimeout, context.Cause(ctx)))
		}
	})
	start := b.startFetchLocked()
	b.mu.Unlock()

	start()
}

// Request is the blocking form of Await.
func (b *Broker) Request(ctx context.Context) (string, error) {
	type result struct {
		token string
		err   error
	}
	ch := make(chan result, 1)
	b.Await(ctx, func(token string, err error) {
		ch <- result{token, err}
	})
	r := <-ch
	return r.token, r.err
}

// Acquire starts the underlying fetch unless a credential is held or a fetch
// is already running.
func (b *Broker) Acquire() {
	b.mu.Lock()
	start := b.startFetchLocked()
	b.mu.Unlock()
	start()
}

// Supply stores token and resolves every waiter with it, oldest first.
func (b *Broker) Supply(token string) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.token = token
	b.held = true
	b.fetching = false
	b.fetchGen++
	waiters := b.takeWaitersLocked()
	b.mu.Unlock()

	b.logger.Debug("credential supplied", zap.Int("waiters", len(waiters)))
	for _, w := range waiters {
		b.observe("supplied", w.queued)
		w.fn(token, nil)
	}
}

// Fail rejects every waiter with a *CredentialError and forgets any held
// credential so a later request starts a new acquisition.
func (b *Broker) Fail(err error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.token = ""
	b.held = false
	b.fetching = false
	b.fetchGen++
	waiters := b.takeWaitersLocked()
	b.mu.Unlock()

	credErr := &CredentialError{Err: err}
	b.logger.Warn("credential acquisition failed",
		zap.Error(err),
		zap.Int("waiters", len(waiters)))
	for _, w := range waiters {
		b.observe("failed", w.queued)
		w.fn("", credErr)
	}
}

// Close rejects every waiter with ErrBrokerClosed, drops the credential and
// refuses later requests. It cancels an in-flight fetch.
func (b *Broker) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.token = ""
	b.held = false
	b.fetching = false
	b.fetchGen++
	waiters := b.takeWaitersLocked()
	b.mu.Unlock()

	b.cancel()
	if len(waiters) > 0 {
		b.logger.Warn("releasing pending credential requests", zap.Int("waiters", len(waiters)))
	}
	for _, w := range waiters {
		b.observe("closed", w.queued)
		w.fn("", ErrBrokerClosed)
	}
}

// Held reports whether a credential is currently held.
func (b *Broker) Held() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.held
}

// Pending returns the number of queued requests.
func (b *Broker) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.waiters)
}

// startFetchLocked marks a fetch as running and returns the function that
// performs it; the caller runs it after releasing the lock.
func (b *Broker) startFetchLocked() func() {
	if b.opts.Fetcher == nil || b.closed || b.held || b.fetching {
		return func() {}
	}
	b.fetching = true
	b.fetchGen++
	gen := b.fetchGen

	return func() {
		go b.fetch(gen)
	}
}

func (b *Broker) fetch(gen uint64) {
	ctx := b.ctx
	if b.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.FetchTimeout)
		defer cancel()
	}

	token, err := b.opts.Fetcher.Fetch(ctx)

	b.mu.Lock()
	current := b.fetching && b.fetchGen == gen
	b.mu.Unlock()
	if !current {
		b.logger.Debug("discarding stale credential fetch result")
		return
	}

	if err != nil {
		b.Fail(err)
		return
	}
	b.Supply(token)
}

func (b *Broker) takeWaitersLocked() []*waiter {
	waiters := b.waiters
	b.waiters = nil
	for _, w := range waiters {
		w.stop()
	}
	return waiters
}

func (b *Broker) remove(target *waiter) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, w := range b.waiters {
		if w == target {
			b.waiters = append(b.waiters[:i], b.waiters[i+1:]...)
			return true
		}
	}
	return false
}

func (b *Broker) observe(result string, since time.Time) {
	if b.opts.Observe != nil {
		b.opts.Observe(result, time.Since(since))
	}
}
