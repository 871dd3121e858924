package metrics

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the prediction service.
type Metrics struct {
	PredictionsTotal  *prometheus.CounterVec
	InferenceDuration *prometheus.HistogramVec
	EnrichmentTotal   *prometheus.CounterVec
	ModelLoaded       *prometheus.GaugeVec
	HTTPRequestsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// New registers all collectors against registry. A nil registry gets a fresh one.
func New(registry *prometheus.Registry) (*Metrics, error) {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	m := &Metrics{
		registry: registry,
		PredictionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rd_predictions_total",
				Help: "Prediction requests that reached a terminal state, by model and status.",
			},
			[]string{"model", "status"},
		),
		InferenceDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rd_inference_duration_seconds",
				Help:    "Time spent in model inference.",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
			},
			[]string{"model"},
		),
		EnrichmentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rd_enrichment_total",
				Help: "Interpretation requests to the text generation service, by outcome.",
			},
			[]string{"status"},
		),
		ModelLoaded: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rd_model_loaded",
				Help: "1 when a classifier is available, labelled with how it is served (onnx or demo).",
			},
			[]string{"model", "mode"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rd_http_requests_total",
				Help: "HTTP requests by method, route and status code.",
			},
			[]string{"method", "route", "status"},
		),
	}

	for _, c := range []prometheus.Collector{
		m.PredictionsTotal,
		m.InferenceDuration,
		m.EnrichmentTotal,
		m.ModelLoaded,
		m.HTTPRequestsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return m, nil
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObservePrediction counts a terminal prediction outcome.
func (m *Metrics) ObservePrediction(model, status string) {
	if m == nil {
		return
	}
	m.PredictionsTotal.WithLabelValues(model, status).Inc()
}

// ObserveInference records inference latency in seconds.
func (m *Metrics) ObserveInference(model string, seconds float64) {
	if m == nil {
		return
	}
	if seconds < 0 {
		seconds = 0
	}
	m.InferenceDuration.WithLabelValues(model).Observe(seconds)
}

// ObserveEnrichment counts an enrichment outcome (ok, failed, skipped).
func (m *Metrics) ObserveEnrichment(status string) {
	if m == nil {
		return
	}
	m.EnrichmentTotal.WithLabelValues(status).Inc()
}

// SetModelLoaded records how a model is served.
func (m *Metrics) SetModelLoaded(model, mode string, loaded bool) {
	if m == nil {
		return
	}
	v := 0.0
	if loaded {
		v = 1
	}
	m.ModelLoaded.WithLabelValues(model, mode).Set(v)
}

// Middleware counts requests by matched route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if m == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// Handler exposes metrics in Prometheus text format.
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
