package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAndGauge(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	m.ObservePrediction("pneumonia", "completed")
	m.ObservePrediction("pneumonia", "completed")
	m.ObservePrediction("brainTumor", "failed")
	m.ObserveEnrichment("failed")
	m.SetModelLoaded("tuberculosis", "demo", true)
	m.ObserveInference("pneumonia", 0.02)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PredictionsTotal.WithLabelValues("pneumonia", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PredictionsTotal.WithLabelValues("brainTumor", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EnrichmentTotal.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ModelLoaded.WithLabelValues("tuberculosis", "demo")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.InferenceDuration))
}

func TestNewTwiceOnSameRegistryFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	require.Error(t, err)
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObservePrediction("pneumonia", "completed")
		m.ObserveEnrichment("ok")
		m.SetModelLoaded("pneumonia", "onnx", true)
	})
}

func TestHandlerAndMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m, err := New(nil)
	require.NoError(t, err)

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/api/prediction/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/metrics", m.Handler())

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/prediction/abc", nil))

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	body := resp.Body.String()
	assert.True(t, strings.Contains(body, `rd_http_requests_total{method="GET",route="/api/prediction/:id",status="204"} 1`), body)
}
