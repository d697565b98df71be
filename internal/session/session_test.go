package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/minihost/backend/internal/bridge/broker"
	"github.com/GriffinCanCode/minihost/backend/internal/bridge/capability"
	"github.com/GriffinCanCode/minihost/backend/internal/bridge/lifecycle"
	"github.com/GriffinCanCode/minihost/backend/internal/bridge/storage"
	"github.com/GriffinCanCode/minihost/backend/internal/bridge/surface"
	"github.com/GriffinCanCode/minihost/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/minihost/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/minihost/backend/internal/shared/id"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// page wraps scripts in a minimal document.
func page(scripts ...string) string {
	var b strings.Builder
	b.WriteString("<html><head><title>Test</title></head><body>")
	for _, s := range scripts {
		b.WriteString("<script>")
		b.WriteString(s)
		b.WriteString("</script>")
	}
	b.WriteString("</body></html>")
	return b.String()
}

// post builds a postMessage call for topic and a JS data literal.
func post(topic, data string) string {
	if data == "" {
		return `ReactNativeWebView.postMessage(JSON.stringify({topic:"` + topic + `"}));`
	}
	return `ReactNativeWebView.postMessage(JSON.stringify({topic:"` + topic + `",data:` + data + `}));`
}

// stubLoader serves fixed HTML through the real loader and can fail a
// number of loads first.
type stubLoader struct {
	mu       sync.Mutex
	html     string
	failures int
	sources  []surface.Source
	real     *surface.Loader
}

func newStubLoader(html string) *stubLoader {
	return &stubLoader{html: html, real: surface.NewLoader(nil, nil)}
}

func (l *stubLoader) Load(ctx context.Context, src surface.Source) (surface.Content, error) {
	l.mu.Lock()
	l.sources = append(l.sources, src)
	fail := l.failures > 0
	if fail {
		l.failures--
	}
	html := l.html
	l.mu.Unlock()

	if fail {
		return surface.Content{}, &lifecycle.LoadError{
			Kind: lifecycle.DevTargetUnreachable,
			URL:  src.URL,
			Err:  errors.New("connection refused"),
		}
	}
	return l.real.Load(ctx, surface.Source{HTML: html})
}

func (l *stubLoader) Sources() []surface.Source {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]surface.Source(nil), l.sources...)
}


type stubPrompter struct {
	mu      sync.Mutex
	alerts  []capability.Alert
	confirm bool
}

func (p *stubPrompter) Alert(_ context.Context, alert capability.Alert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts = append(p.alerts, alert)
	return nil
}

func (p *stubPrompter) Confirm(context.Context, capability.Confirm) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.confirm, nil
}

func (p *stubPrompter) ScanQR(context.Context) (string, error) {
	return "qr", nil
}

func (p *stubPrompter) Alerts() []capability.Alert {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]capability.Alert(nil), p.alerts...)
}

type stubFiles struct {
	downloads atomic.Int32
}

func (f *stubFiles) Download(context.Context, string, capability.Download) (string, error) {
	f.downloads.Add(1)
	return "/tmp/file", nil
}

func (f *stubFiles) Upload(context.Context, string) error { return nil }

type harness struct {
	t        *testing.T
	loader   *stubLoader
	prompter *stubPrompter
	files    *stubFiles
	store    storage.Store
	deps     Deps
}

func newHarness(t *testing.T, html string) *harness {
	t.Helper()
	h := &harness{
		t:        t,
		loader:   newStubLoader(html),
		prompter: &stubPrompter{},
		files:    &stubFiles{},
		store:    storage.NewMemoryStore(),
	}
	h.deps = Deps{
		Bridge:   config.Default().Bridge,
		Store:    h.store,
		Loader:   h.loader,
		Prompter: func(string, string) capability.Prompter { return h.prompter },
		Files:    h.files,
		Metrics:  monitoring.NewMetrics(),
	}
	return h
}

func (h *harness) start(params Params) *Session {
	h.t.Helper()
	if params.AppID == "" {
		params.AppID = "test-app"
	}
	s, err := New(id.NewSessionID(), params, h.deps)
	require.NoError(h.t, err)
	require.NoError(h.t, s.Start())
	h.t.Cleanup(s.Close)
	return s
}

func snapshot(t *testing.T, s *Session) Snapshot {
	t.Helper()
	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	return snap
}

func waitState(t *testing.T, s *Session, state string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return snapshot(t, s).State == state
	}, waitFor, tick)
}

func consoleLines(t *testing.T, s *Session) []string {
	t.Helper()
	var lines []string
	for _, entry := range snapshot(t, s).Console {
		lines = append(lines, entry.Message)
	}
	return lines
}

func waitConsole(t *testing.T, s *Session, line string) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, l := range consoleLines(t, s) {
			if l == line {
				return true
			}
		}
		return false
	}, waitFor, tick, "console never printed %q", line)
}

func TestStartReachesReady(t *testing.T) {
	h := newHarness(t, page(`window.resolveToken = function(){};`))
	s := h.start(Params{Name: "Test"})

	waitState(t, s, "ready")
	snap := snapshot(t, s)
	assert.Equal(t, uint64(1), snap.Generation)
	assert.Equal(t, []string{"resolveToken"}, snap.Callbacks)
	assert.Equal(t, storage.Namespace("test-app"), snap.Namespace)
	assert.Nil(t, snap.Error)
}

func TestAlertUsesDefaultButton(t *testing.T) {
	h := newHarness(t, page(post("ALERT", `{title:"Hello",message:"World"}`)))
	s := h.start(Params{})
	waitState(t, s, "ready")

	require.Eventually(t, func() bool { return len(h.prompter.Alerts()) == 1 }, waitFor, tick)
	alert := h.prompter.Alerts()[0]
	assert.Equal(t, "Hello", alert.Title)
	assert.Equal(t, "World", alert.Message)
	assert.Equal(t, "OK", alert.ButtonText)
}

func TestConfirmCancel(t *testing.T) {
	h := newHarness(t, page(
		`window.resolveConfirmAlert = function(v){ console.log("confirm:" + v); };`,
		post("CONFIRM_ALERT", `{title:"Delete?",message:"Really"}`),
	))
	h.prompter.confirm = false
	s := h.start(Params{})

	waitConsole(t, s, "confirm:cancel")
}

func TestTokenRequestedBeforeSupply(t *testing.T) {
	h := newHarness(t, page(
		`window.resolveToken = function(t){ console.log("token:" + t); };`,
		post("TOKEN", ""),
	))
	s := h.start(Params{})
	waitState(t, s, "ready")

	require.Eventually(t, func() bool { return snapshot(t, s).CredentialWaiters == 1 }, waitFor, tick)
	require.NoError(t, s.SupplyCredential("tok-1"))

	waitConsole(t, s, "token:tok-1")
	assert.True(t, snapshot(t, s).CredentialHeld)
}

func TestTokenFetchedOnceForAllWaiters(t *testing.T) {
	h := newHarness(t, page(
		`var n = 0; window.resolveToken = function(t){ n++; console.log("token" + n + ":" + t); };`,
		post("TOKEN", ""),
		post("TOKEN", ""),
	))
	var fetches atomic.Int32
	release := make(chan struct{})
	h.deps.Fetcher = func(p Params) broker.Fetcher {
		return broker.FetcherFunc(func(ctx context.Context) (string, error) {
			fetches.Add(1)
			<-release
			return "exchanged-" + p.ClientID, nil
		})
	}
	s := h.start(Params{ClientID: "client", Token: "launch"})
	waitState(t, s, "ready")
	close(release)

	waitConsole(t, s, "token1:exchanged-client")
	waitConsole(t, s, "token2:exchanged-client")
	assert.Equal(t, int32(1), fetches.Load())
}

func TestFetcherUnusedWithoutExchangeMaterial(t *testing.T) {
	h := newHarness(t, page())
	called := false
	h.deps.Fetcher = func(Params) broker.Fetcher {
		called = true
		return nil
	}
	h.start(Params{})
	assert.False(t, called)
}

func TestMalformedMessagesKeepSessionResponsive(t *testing.T) {
	h := newHarness(t, page(
		`window.resolveSaveLocalData = function(){ console.log("saved"); };`,
		`ReactNativeWebView.postMessage("not json");`,
		`ReactNativeWebView.postMessage("{}");`,
		`ReactNativeWebView.postMessage("[1,2]");`,
		post("NO_SUCH_TOPIC", "1"),
		post("SAVE_LOCAL_DATA", `{key:"k",value:"v"}`),
	))
	s := h.start(Params{})

	waitConsole(t, s, "saved")
	assert.Equal(t, "ready", snapshot(t, s).State)
}

func TestStorageRoundTripAndIsolation(t *testing.T) {
	h := newHarness(t, page(
		`window.resolveSaveLocalData = function(){`+post("GET_LOCAL_DATA", `{key:"color"}`)+`};`,
		`window.resolveGetLocalData = function(r){ console.log("got:" + r.value); };`,
		post("SAVE_LOCAL_DATA", `{key:"color",value:"blue"}`),
	))
	s := h.start(Params{AppID: "painter"})
	waitConsole(t, s, "got:blue")

	entries, err := s.Storage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"color": "blue"}, entries)

	other := h.start(Params{AppID: "other"})
	waitState(t, other, "ready")
	entries, err = other.Storage(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDownloadWithoutFileAccess(t *testing.T) {
	h := newHarness(t, page(
		`window.rejectDownload = function(e){ console.log("rejected:" + e); };`,
		post("download_file", `{fileName:"a.txt",data:"hello"}`),
	))
	s := h.start(Params{Permissions: capability.Permissions{FileAccess: false}})

	waitConsole(t, s, "rejected:"+capability.ErrPermissionDenied.Error())
	assert.Zero(t, h.files.downloads.Load())
}

func TestFailedLoadThenRetry(t *testing.T) {
	h := newHarness(t, page())
	h.loader.failures = 1
	s := h.start(Params{Source: surface.Source{URL: "http://localhost:5173", DevMode: true}})

	waitState(t, s, "errored")
	snap := snapshot(t, s)
	require.NotNil(t, snap.Error)
	assert.Equal(t, "dev_target_unreachable", snap.Error.Kind)
	assert.Contains(t, snap.Error.Message, "http://localhost:5173")

	require.NoError(t, s.Retry())
	waitState(t, s, "ready")
	snap = snapshot(t, s)
	assert.Nil(t, snap.Error)
	assert.Equal(t, uint64(2), snap.Generation)
}

func TestRetryRequiresErrored(t *testing.T) {
	h := newHarness(t, page())
	s := h.start(Params{})
	waitState(t, s, "ready")

	assert.ErrorIs(t, s.Retry(), lifecycle.ErrInvalidTransition)
}

func TestReloadWithDevURL(t *testing.T) {
	h := newHarness(t, page(`console.log("loaded");`))
	s := h.start(Params{Source: surface.Source{HTML: "<html></html>"}})
	waitState(t, s, "ready")

	require.NoError(t, s.Reload("http://localhost:3000"))
	waitState(t, s, "ready")

	sources := h.loader.Sources()
	require.Len(t, sources, 2)
	assert.Equal(t, "http://localhost:3000", sources[1].URL)
	assert.True(t, sources[1].DevMode)

	snap := snapshot(t, s)
	assert.Equal(t, uint64(2), snap.Generation)
	assert.Equal(t, "http://localhost:3000", snap.Source.URL)
	// A fresh surface only carries the new page's console.
	assert.Equal(t, []string{"loaded"}, consoleLines(t, s))
}

func TestReloadRecoversUnreachableDevServer(t *testing.T) {
	h := newHarness(t, page())
	h.loader.failures = 1
	s := h.start(Params{Source: surface.Source{URL: "http://localhost:5173", DevMode: true}})
	waitState(t, s, "errored")

	assert.ErrorIs(t, s.Reload(""), lifecycle.ErrInvalidTransition)
	require.NoError(t, s.Reload("http://localhost:5174"))
	waitState(t, s, "ready")
}

func TestSupplyEmptyCredential(t *testing.T) {
	h := newHarness(t, page())
	s := h.start(Params{})
	assert.ErrorIs(t, s.SupplyCredential(""), ErrEmptyCredential)
}

func TestCloseReleasesSession(t *testing.T) {
	h := newHarness(t, page(
		`window.resolveToken = function(t){ console.log("token:" + t); };`,
		post("TOKEN", ""),
	))
	s := h.start(Params{})
	require.Eventually(t, func() bool { return snapshot(t, s).CredentialWaiters == 1 }, waitFor, tick)

	s.Close()
	s.Close()

	select {
	case <-s.Done():
	case <-time.After(waitFor):
		t.Fatal("event loop did not stop")
	}
	_, err := s.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Retry(), ErrClosed)
	assert.ErrorIs(t, s.SupplyCredential("late"), ErrClosed)
	assert.ErrorIs(t, s.Start(), ErrClosed)
}

func TestNewValidates(t *testing.T) {
	h := newHarness(t, page())

	_, err := New(id.NewSessionID(), Params{}, h.deps)
	assert.Error(t, err)

	deps := h.deps
	deps.Loader = nil
	_, err = New(id.NewSessionID(), Params{AppID: "a"}, deps)
	assert.Error(t, err)
}
