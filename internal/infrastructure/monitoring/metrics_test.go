package monitoring

import (
	"errors"
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

func TestIndependentInstances(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics()
		NewMetrics()
	})
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordHTTPRequest("GET", "/", "200", time.Millisecond, 0, 0)
		m.RecordSessionOp("create_session", "success", time.Millisecond)
		m.RecordOutputUnit("quiet", 10)
		m.SetSessionsLive(3)
		NewTimer(m, "op").Stop(nil)
	})
}

func TestSessionMetrics(t *testing.T) {
	m := NewMetrics()

	m.IncSessionsCreated()
	m.IncSessionsCreated()
	m.IncSessionsCrashed()
	m.SetSessionsLive(2)
	m.RecordOutputUnit("quiet", 100)
	m.RecordOutputUnit("size", 5000)
	m.RecordClassification("prompt")
	NewTimer(m, "send_message").Stop(errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SessionsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsCrashed))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SessionsLive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutputUnits.WithLabelValues("size")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Classifications.WithLabelValues("prompt")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionOps.WithLabelValues("send_message", "error")))
}

func TestMiddlewareUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/sessions/:id", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	for _, id := range []string{"a", "b", "c"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/"+id, nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/sessions/:id", "200")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewMetrics()
	m.IncSessionsCreated()

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.Contains(body, "omnik_sessions_created_total 1"))
	assert.Contains(t, body, "omnik_uptime_seconds")
	assert.Contains(t, body, "go_goroutines")
}
