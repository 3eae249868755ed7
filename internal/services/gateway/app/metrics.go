package app

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/LeonardoBeccarini/agri_dashboard/pkg/upstream"
)

type Metrics struct {
	Requests        *prometheus.CounterVec
	Latency         *prometheus.HistogramVec
	Upstream        *prometheus.CounterVec
	Classifications *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agri",
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status code",
		}, []string{"route", "method", "code"}),
		Latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agri",
			Subsystem: "gateway",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"route"}),
		Upstream: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agri",
			Subsystem: "gateway",
			Name:      "upstream_calls_total",
			Help:      "Upstream calls by name and outcome (ok, error, unavailable)",
		}, []string{"upstream", "outcome"}),
		Classifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agri",
			Subsystem: "gateway",
			Name:      "classifications_total",
			Help:      "Texture labels returned to clients",
		}, []string{"label"}),
	}
}

func (m *Metrics) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.Requests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.Latency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) observeUpstream(name string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, upstream.ErrUnavailable):
		outcome = "unavailable"
	default:
		outcome = "error"
	}
	m.Upstream.WithLabelValues(name, outcome).Inc()
}
