// Package observability collects Prometheus metrics for the report service.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"prorab/internal/core/cache"
	"prorab/internal/domain/issues"
	"prorab/internal/infrastructure/storage/postgres"
)

// Metrics holds the application collectors and its own registry.
type Metrics struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	cacheEvents   *prometheus.CounterVec
	buildDuration *prometheus.HistogramVec

	strategyTotal    *prometheus.CounterVec
	strategyDuration *prometheus.HistogramVec
}

var (
	_ cache.Metrics           = (*Metrics)(nil)
	_ issues.StrategyObserver = (*Metrics)(nil)
)

// NewMetrics initializes the registry and every collector.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prorab_http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "prorab_http_request_duration_seconds",
			Help:    "HTTP request duration per route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		cacheEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prorab_report_cache_events_total",
			Help: "Report cache events by namespace and kind (hit, miss, shared_hit, coalesced, evicted).",
		}, []string{"namespace", "event"}),
		buildDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "prorab_report_build_duration_seconds",
			Help:    "Duration of report computations on cache miss.",
			Buckets: prometheus.DefBuckets,
		}, []string{"namespace", "status"}),
		strategyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prorab_fact_strategy_attempts_total",
			Help: "Fact strategy attempts by strategy and outcome.",
		}, []string{"strategy", "outcome"}),
		strategyDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "prorab_fact_strategy_duration_seconds",
			Help:    "Fact strategy duration.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"strategy"}),
	}
	registry.MustRegister(
		m.requestsTotal, m.requestDuration,
		m.cacheEvents, m.buildDuration,
		m.strategyTotal, m.strategyDuration,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request count and latency per matched route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) Hit(namespace string)       { m.cacheEvents.WithLabelValues(namespace, "hit").Inc() }
func (m *Metrics) Miss(namespace string)      { m.cacheEvents.WithLabelValues(namespace, "miss").Inc() }
func (m *Metrics) SharedHit(namespace string) { m.cacheEvents.WithLabelValues(namespace, "shared_hit").Inc() }
func (m *Metrics) Coalesced(namespace string) { m.cacheEvents.WithLabelValues(namespace, "coalesced").Inc() }
func (m *Metrics) Evicted(namespace string)   { m.cacheEvents.WithLabelValues(namespace, "evicted").Inc() }

// ObserveBuild records one report computation.
func (m *Metrics) ObserveBuild(namespace string, elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.buildDuration.WithLabelValues(namespace, status).Observe(elapsed.Seconds())
}

// ObserveStrategy records one fact strategy attempt.
func (m *Metrics) ObserveStrategy(strategy, outcome string, elapsed time.Duration) {
	m.strategyTotal.WithLabelValues(strategy, outcome).Inc()
	m.strategyDuration.WithLabelValues(strategy).Observe(elapsed.Seconds())
}

// ObservePool exports connection pool statistics as gauges read on scrape.
func (m *Metrics) ObservePool(stats func() postgres.PoolStats) {
	gauge := func(name, help string, value func(postgres.PoolStats) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, func() float64 {
			return value(stats())
		})
	}
	m.registry.MustRegister(
		gauge("prorab_db_pool_total_conns", "Connections in the pool.",
			func(s postgres.PoolStats) float64 { return float64(s.TotalConns) }),
		gauge("prorab_db_pool_acquired_conns", "Connections currently in use.",
			func(s postgres.PoolStats) float64 { return float64(s.AcquiredConns) }),
		gauge("prorab_db_pool_idle_conns", "Idle connections.",
			func(s postgres.PoolStats) float64 { return float64(s.IdleConns) }),
		gauge("prorab_db_pool_max_conns", "Maximum pool size.",
			func(s postgres.PoolStats) float64 { return float64(s.MaxConns) }),
	)
}
