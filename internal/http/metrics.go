package http

import (
	"fmt"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// HTTPMetrics holds the Prometheus collectors served on /metrics.
type HTTPMetrics struct {
	logger         *zap.Logger
	requestsTotal  *prometheus.CounterVec
	requestDur     *prometheus.HistogramVec
	activeRequests prometheus.Gauge
	runsTotal      *prometheus.CounterVec
}

// NewHTTPMetrics creates the API collectors and registers them with reg.
func NewHTTPMetrics(reg prometheus.Registerer, logger *zap.Logger) (*HTTPMetrics, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &HTTPMetrics{
		logger: logger,
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "helpdesk_http_requests_total",
				Help: "Total HTTP requests labeled by method, endpoint and status code.",
			},
			[]string{"method", "endpoint", "status"},
		),
		requestDur: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "helpdesk_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds. Ask requests include the full agent run.",
				Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"method", "endpoint"},
		),
		activeRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "helpdesk_http_active_requests",
			Help: "Number of currently active HTTP requests.",
		}),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "helpdesk_http_ask_runs_total",
				Help: "Agent runs started through the ask endpoint, labeled by outcome.",
			},
			[]string{"outcome"},
		),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{m.requestsTotal, m.requestDur, m.activeRequests, m.runsTotal} {
			if err := reg.Register(c); err != nil {
				return nil, fmt.Errorf("registering http metrics: %w", err)
			}
		}
	}
	return m, nil
}

// MetricsMiddleware returns an Echo middleware that records HTTP metrics.
func (m *HTTPMetrics) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			m.activeRequests.Inc()
			defer m.activeRequests.Dec()

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			endpoint := normalizePath(c.Path())
			method := c.Request().Method

			m.requestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
			m.requestDur.WithLabelValues(method, endpoint).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

func (m *HTTPMetrics) recordRun(outcome string) {
	m.runsTotal.WithLabelValues(outcome).Inc()
}

// normalizePath keeps the endpoint label bounded. All routes are fixed, so
// only unmatched requests need folding.
func normalizePath(path string) string {
	if path == "" {
		return "unmatched"
	}
	return path
}
