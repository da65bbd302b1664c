package observability

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

	"prorab/internal/domain/issues"
	"prorab/internal/infrastructure/storage/postgres"
)

func TestMetrics_CacheEvents(t *testing.T) {
	m := NewMetrics()

	m.Hit("issues:summary")
	m.Hit("issues:summary")
	m.Miss("issues:summary")
	m.Coalesced("issues:options")
	m.ObserveBuild("issues:summary", 120*time.Millisecond, nil)
	m.ObserveBuild("issues:summary", time.Second, errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheEvents.WithLabelValues("issues:summary", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheEvents.WithLabelValues("issues:summary", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheEvents.WithLabelValues("issues:options", "coalesced")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.buildDuration))
}

func TestMetrics_Strategies(t *testing.T) {
	m := NewMetrics()

	m.ObserveStrategy(issues.StrategyAggregate, issues.OutcomeError, time.Millisecond)
	m.ObserveStrategy(issues.StrategyJoin, issues.OutcomeRows, 40*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.strategyTotal.WithLabelValues(issues.StrategyAggregate, issues.OutcomeError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.strategyTotal.WithLabelValues(issues.StrategyJoin, issues.OutcomeRows)))
}

func TestMetrics_MiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `prorab_http_requests_total{code="204",route="/ping"} 1`))
}

func TestMetrics_NilHandler(t *testing.T) {
	var m *Metrics
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetrics_ObservePool(t *testing.T) {
	m := NewMetrics()
	acquired := int32(3)
	m.ObservePool(func() postgres.PoolStats {
		return postgres.PoolStats{TotalConns: 5, AcquiredConns: acquired, IdleConns: 2, MaxConns: 25}
	})

	count, err := testutil.GatherAndCount(m.registry, "prorab_db_pool_acquired_conns", "prorab_db_pool_max_conns")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, w.Body.String(), "prorab_db_pool_acquired_conns 3")
}
