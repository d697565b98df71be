package monitoring

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsIsolatedRegistries(t *testing.T) {
	// Two collectors in one process must not collide.
	a := NewMetrics()
	b := NewMetrics()

	a.RecordEnvelope("TOKEN", "dispatched")
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Envelopes.WithLabelValues("TOKEN", "dispatched")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Envelopes.WithLabelValues("TOKEN", "dispatched")))
}

func TestRecordEnvelopeWithoutTopic(t *testing.T) {
	m := NewMetrics()
	m.RecordEnvelope("", "malformed")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Envelopes.WithLabelValues("none", "malformed")))
}

func TestSessionGauges(t *testing.T) {
	m := NewMetrics()
	m.SessionStarted()
	m.SessionStarted()
	m.SessionClosed()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsActive))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SessionsTotal))
}

func TestMiddlewareUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/sessions/:id", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/abc", nil))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/sessions/:id", "200")))
}

func TestHandlerExposition(t *testing.T) {
	m := NewMetrics()
	m.RecordTransition("loading", "ready")

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "minihost_lifecycle_transitions_total"))
}

func TestTimerWithoutMetrics(t *testing.T) {
	timer := NewTimer(nil, "ALERT")
	time.Sleep(time.Millisecond)
	assert.Greater(t, timer.Stop(), time.Duration(0))
}
