package catalog

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/minihost/backend/internal/bridge/capability"
	"github.com/GriffinCanCode/minihost/backend/internal/bridge/envelope"
	"github.com/GriffinCanCode/minihost/backend/internal/bridge/surface"
	"github.com/GriffinCanCode/minihost/backend/internal/infrastructure/httpclient"
)

var testApps = []MicroApp{
	{
		ID:          "weather",
		Name:        "Weather",
		Source:      surface.Source{HTML: "<html><body>weather</body></html>"},
		ClientID:    "client-weather",
		Token:       "launch-weather",
		Permissions: capability.Permissions{FileAccess: true},
	},
	{
		ID:     "notes",
		Name:   "Notes",
		Source: surface.Source{URL: "http://localhost:5173", DevMode: true},
	},
}

func newTestClient(t *testing.T) (*Client, *MockServer) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mock := NewMockServer(testApps)
	srv := httptest.NewServer(mock.Handler())
	t.Cleanup(srv.Close)

	cfg := httpclient.DefaultConfig("catalog-test")
	cfg.BaseURL = srv.URL
	cfg.RetryMax = 0
	return NewClient(cfg, nil), mock
}

func TestListMicroApps(t *testing.T) {
	client, _ := newTestClient(t)

	apps, err := client.ListMicroApps(context.Background())
	require.NoError(t, err)
	require.Len(t, apps, 2)
	assert.Equal(t, "weather", apps[0].ID)
	assert.True(t, apps[0].Permissions.FileAccess)
	assert.True(t, apps[1].Source.DevMode)
}

func TestGet(t *testing.T) {
	client, _ := newTestClient(t)

	app, err := client.Get(context.Background(), "notes")
	require.NoError(t, err)
	assert.Equal(t, "Notes", app.Name)

	_, err = client.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExchangeToken(t *testing.T) {
	client, mock := newTestClient(t)

	token, err := client.ExchangeToken(context.Background(), "client-weather", "launch-weather")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(token, "access_client-weather_"))
	assert.Equal(t, int64(1), mock.Exchanges())

	_, err = client.ExchangeToken(context.Background(), "client-weather", "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown client or token")
}

func TestTokenFetcher(t *testing.T) {
	client, _ := newTestClient(t)

	token, err := TokenFetcher{Client: client, ClientID: "client-weather", Token: "launch-weather"}.Fetch(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	_, err = TokenFetcher{Client: client}.Fetch(context.Background())
	assert.ErrorIs(t, err, ErrNoExchangeMaterial)
}

func TestClientHonorsContext(t *testing.T) {
	client, _ := newTestClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	_, err := client.ListMicroApps(ctx)
	assert.Error(t, err)
}

const seedYAML = `
microApps:
  - id: weather
    name: Weather
    clientId: client-weather
    token: launch-weather
    permissions:
      fileAccess: true
    source:
      html: "<html></html>"
  - id: notes
    name: Notes
    source:
      url: http://localhost:5173
      devMode: true
`

func TestParseApps(t *testing.T) {
	apps, err := ParseApps([]byte(seedYAML))
	require.NoError(t, err)
	require.Len(t, apps, 2)

	assert.Equal(t, "client-weather", apps[0].ClientID)
	assert.True(t, apps[0].Permissions.FileAccess)
	assert.True(t, apps[0].CanExchange())
	assert.Equal(t, "http://localhost:5173", apps[1].Source.URL)
	assert.True(t, apps[1].Source.DevMode)
	assert.False(t, apps[1].CanExchange())
}

func TestParseAppsValidation(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing name", "microApps:\n  - id: a\n    source:\n      html: x\n"},
		{"missing source", "microApps:\n  - id: a\n    name: A\n"},
		{"not yaml", "microApps: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseApps([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadAppsFromDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "team"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(seedYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "team", "b.yml"), []byte(
		"microApps:\n  - id: notes\n    name: Notes v2\n    source:\n      html: x\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o644))

	apps, err := LoadApps(dir)
	require.NoError(t, err)
	require.Len(t, apps, 2)
	assert.Equal(t, "weather", apps[0].ID)
	assert.Equal(t, "Notes v2", apps[1].Name)
}

func TestLoadAppsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apps.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o644))

	apps, err := LoadApps(path)
	require.NoError(t, err)
	assert.Len(t, apps, 2)
}

func TestSampleAppsPostKnownTopics(t *testing.T) {
	apps, err := LoadApps(filepath.Join("..", "..", "examples", "apps.yaml"))
	require.NoError(t, err)

	known := map[string]bool{}
	for _, topic := range []envelope.Topic{
		envelope.TopicToken, envelope.TopicQRRequest,
		envelope.TopicSaveData, envelope.TopicGetData,
		envelope.TopicAlert, envelope.TopicConfirmAlert,
		envelope.TopicDownload, envelope.TopicUpload,
	} {
		known[topic.String()] = true
	}

	topicPattern := regexp.MustCompile(`topic:\s*"([^"]+)"`)
	posted := 0
	for _, app := range apps {
		for _, m := range topicPattern.FindAllStringSubmatch(app.Source.HTML, -1) {
			posted++
			assert.True(t, known[m[1]], "app %s posts unknown topic %q", app.ID, m[1])
		}
	}
	assert.Positive(t, posted)
}
