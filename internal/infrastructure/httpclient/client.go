package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/minihost/backend/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/minihost/backend/internal/infrastructure/tracing"
)

// Config tunes a Client.
type Config struct {
	Name      string
	BaseURL   string
	Timeout   time.Duration
	RetryMax  int
	RetryWait time.Duration
	// RateLimit is requests per second; zero means unlimited.
	RateLimit float64
	UserAgent string
}

// DefaultConfig returns settings suitable for a remote JSON backend.
func DefaultConfig(name string) Config {
	return Config{
		Name:      name,
		Timeout:   10 * time.Second,
		RetryMax:  2,
		RetryWait: 200 * time.Millisecond,
		UserAgent: "minihost/1.0",
	}
}

// StatusError is a response outside the 2xx range.
type StatusError struct {
	Code   int
	Status string
	URL    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d %s (url: %s)", e.Code, e.Status, e.URL)
}

// Client wraps resty with rate limiting and a circuit breaker. Transport
// level retries come from go-retryablehttp.
type Client struct {
	Resty   *resty.Client
	Limiter *rate.Limiter
	Breaker *resilience.Breaker
}

// New creates a client.
func New(cfg Config) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.RetryMax
	retryClient.RetryWaitMin = cfg.RetryWait
	retryClient.RetryWaitMax = 4 * cfg.RetryWait
	retryClient.Logger = nil
	// Hand the last response back instead of a "giving up" error so status
	// codes survive.
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	restyClient := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", cfg.UserAgent).
		SetTransport(&retryablehttp.RoundTripper{Client: retryClient}).
		OnBeforeRequest(tracing.Propagate)
	if cfg.BaseURL != "" {
		restyClient.SetBaseURL(cfg.BaseURL)
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(1, int(cfg.RateLimit)))
	}

	breaker := resilience.New(cfg.Name, resilience.Settings{
		MaxRequests: 2,
		Interval:    60 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// A 4xx is the backend answering, not the backend failing.
		IsFailure: func(err error) bool {
			var statusErr *StatusError
			if errors.As(err, &statusErr) {
				return statusErr.Code >= http.StatusInternalServerError
			}
			return err != nil
		},
	})

	return &Client{
		Resty:   restyClient,
		Limiter: limiter,
		Breaker: breaker,
	}
}

// Request creates a request once the breaker and the rate limiter allow it.
func (c *Client) Request(ctx context.Context) (*resty.Request, error) {
	if err := c.Breaker.Allow(); err != nil {
		return nil, err
	}
	if err := c.Limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	return c.Resty.R().SetContext(ctx), nil
}

// Execute runs a request through the breaker and turns non-2xx responses
// into *StatusError.
func (c *Client) Execute(fn func() (*resty.Response, error)) (*resty.Response, error) {
	return resilience.Do(c.Breaker, func() (*resty.Response, error) {
		resp, err := fn()
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return resp, &StatusError{Code: resp.StatusCode(), Status: http.StatusText(resp.StatusCode()), URL: resp.Request.URL}
		}
		return resp, nil
	})
}
