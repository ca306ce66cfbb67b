package prometheus

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler owns the registry served on /metrics and records request
// metrics for every route.
type Handler struct {
	registry        *prometheus.Registry
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	errorTotal      *prometheus.CounterVec
}

func New(namespace string) *Handler {
	registry := prometheus.NewRegistry()
	h := &Handler{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		requestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		errorTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_errors_total",
				Help:      "Total number of HTTP errors",
			},
			[]string{"method", "path", "status"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		h.requestDuration,
		h.requestTotal,
		h.errorTotal,
	)

	return h
}

// Registry is where application metrics are registered.
func (h *Handler) Registry() *prometheus.Registry {
	return h.registry
}

func (h *Handler) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		h.requestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
		h.requestTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		if c.Writer.Status() >= 400 {
			h.errorTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		}
	}
}

func (h *Handler) Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{Registry: h.registry}))
}
