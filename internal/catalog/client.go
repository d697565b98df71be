package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/minihost/backend/internal/infrastructure/httpclient"
)

// Client talks to the catalog backend.
type Client struct {
	http   *httpclient.Client
	logger *zap.Logger
}

// NewClient creates a catalog client for cfg.BaseURL.
func NewClient(cfg httpclient.Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := httpclient.New(cfg)
	c.Resty.
		SetHeader("Accept", "application/json").
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal)
	return &Client{http: c, logger: logger.Named("catalog")}
}

// ListMicroApps fetches the catalog.
func (c *Client) ListMicroApps(ctx context.Context) ([]MicroApp, error) {
	req, err := c.http.Request(ctx)
	if err != nil {
		return nil, err
	}

	var out listResponse
	_, err = c.http.Execute(func() (*resty.Response, error) {
		return req.SetResult(&out).Get("/micro-apps")
	})
	if err != nil {
		return nil, fmt.Errorf("list micro-apps: %w", err)
	}
	return out.MicroApps, nil
}

// Get fetches a single micro-app.
func (c *Client) Get(ctx context.Context, id string) (MicroApp, error) {
	req, err := c.http.Request(ctx)
	if err != nil {
		return MicroApp{}, err
	}

	var app MicroApp
	_, err = c.http.Execute(func() (*resty.Response, error) {
		return req.SetResult(&app).Get("/micro-apps/" + url.PathEscape(id))
	})
	if err != nil {
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
			return MicroApp{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return MicroApp{}, fmt.Errorf("get micro-app %s: %w", id, err)
	}
	return app, nil
}

// ExchangeToken trades a client id and launch token for an access token.
func (c *Client) ExchangeToken(ctx context.Context, clientID, token string) (string, error) {
	req, err := c.http.Request(ctx)
	if err != nil {
		return "", err
	}

	var out TokenResponse
	var failure errorResponse
	_, err = c.http.Execute(func() (*resty.Response, error) {
		return req.
			SetBody(TokenRequest{ClientID: clientID, Token: token}).
			SetResult(&out).
			SetError(&failure).
			Post("/auth/token")
	})
	if err != nil {
		if failure.Error != "" {
			return "", fmt.Errorf("token exchange: %s: %w", failure.Error, err)
		}
		return "", fmt.Errorf("token exchange: %w", err)
	}
	if out.AccessToken == "" {
		return "", errors.New("token exchange: empty access token")
	}

	c.logger.Debug("token exchanged", zap.String("client_id", clientID))
	return out.AccessToken, nil
}

// TokenFetcher exchanges one app's launch material for a credential.
type TokenFetcher struct {
	Client   *Client
	ClientID string
	Token    string
}

// Fetch implements broker.Fetcher.
func (f TokenFetcher) Fetch(ctx context.Context) (string, error) {
	if f.ClientID == "" || f.Token == "" {
		return "", ErrNoExchangeMaterial
	}
	return f.Client.ExchangeToken(ctx, f.ClientID, f.Token)
}
