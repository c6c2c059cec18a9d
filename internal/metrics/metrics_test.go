package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_IndependentRegistries(t *testing.T) {
	a := New("nasa_proxy")
	b := New("nasa_proxy")

	a.CacheHits.Inc()
	a.CacheHits.Inc()
	b.CacheHits.Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(a.CacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.CacheHits))
}

func TestHandler_ExposesCounters(t *testing.T) {
	m := New("nasa_proxy")
	m.CacheMisses.Inc()
	m.HTTPRequestsTotal.WithLabelValues("search", "200").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "nasa_proxy_search_cache_misses_total 1")
	assert.Contains(t, string(body), `nasa_proxy_http_requests_total{code="200",route="search"} 1`)
}
