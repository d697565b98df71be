package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/minihost/backend/internal/bridge/capability"
	"github.com/GriffinCanCode/minihost/backend/internal/bridge/surface"
	"github.com/GriffinCanCode/minihost/backend/internal/catalog"
)

type stubCatalog map[string]catalog.MicroApp

func (c stubCatalog) Get(_ context.Context, id string) (catalog.MicroApp, error) {
	app, ok := c[id]
	if !ok {
		return catalog.MicroApp{}, fmt.Errorf("%w: %s", catalog.ErrNotFound, id)
	}
	return app, nil
}

func newTestManager(t *testing.T) (*Manager, *harness) {
	t.Helper()
	h := newHarness(t, page())
	cat := stubCatalog{
		"weather": {
			ID:          "weather",
			Name:        "Weather",
			Source:      surface.Source{URL: "https://apps.example.com/weather"},
			Permissions: capability.Permissions{FileAccess: true},
		},
	}
	m := NewManager(cat, h.deps)
	t.Cleanup(m.CloseAll)
	return m, h
}

func TestManagerLaunch(t *testing.T) {
	m, h := newTestManager(t)

	s, err := m.Launch(context.Background(), "weather", "")
	require.NoError(t, err)
	assert.Equal(t, "weather", s.AppID())
	waitState(t, s, "ready")

	got, err := m.Get(s.ID().String())
	require.NoError(t, err)
	assert.Same(t, s, got)
	assert.Equal(t, "https://apps.example.com/weather", h.loader.Sources()[0].URL)
}

func TestManagerLaunchWithDevURL(t *testing.T) {
	m, h := newTestManager(t)

	s, err := m.Launch(context.Background(), "weather", "http://localhost:5173")
	require.NoError(t, err)
	waitState(t, s, "ready")

	src := h.loader.Sources()[0]
	assert.Equal(t, "http://localhost:5173", src.URL)
	assert.True(t, src.DevMode)
}

func TestManagerLaunchUnknownApp(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.Launch(context.Background(), "missing", "")
	assert.ErrorIs(t, err, catalog.ErrNotFound)
	assert.Empty(t, m.List())
}

func TestManagerListAndClose(t *testing.T) {
	m, _ := newTestManager(t)

	first, err := m.Open(Params{AppID: "a"})
	require.NoError(t, err)
	second, err := m.Open(Params{AppID: "b"})
	require.NoError(t, err)

	list := m.List()
	require.Len(t, list, 2)
	assert.Same(t, first, list[0])
	assert.Same(t, second, list[1])

	require.NoError(t, m.Close(first.ID().String()))
	assert.ErrorIs(t, m.Close(first.ID().String()), ErrNotFound)
	_, err = m.Get(first.ID().String())
	assert.ErrorIs(t, err, ErrNotFound)
	<-first.Done()

	m.CloseAll()
	assert.Empty(t, m.List())
	<-second.Done()
}

func TestParamsFromApp(t *testing.T) {
	params := ParamsFromApp(catalog.MicroApp{
		ID:          "x",
		Name:        "X",
		ClientID:    "c",
		Token:       "t",
		Permissions: capability.Permissions{FileAccess: true},
	})
	assert.Equal(t, Params{AppID: "x", Name: "X", ClientID: "c", Token: "t", Permissions: capability.Permissions{FileAccess: true}}, params)
}
