package nasa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leonardcser/nasa-proxy/internal/cache"
	"github.com/leonardcser/nasa-proxy/internal/metrics"
)

// fixture returns an upstream body holding n items with nasa_id "id-<i>".
func fixture(n int) []byte {
	items := make([]string, n)
	for i := range items {
		items[i] = fmt.Sprintf(`{"href":"https://images-assets.nasa.gov/image/id-%d/collection.json","data":[{"nasa_id":"id-%d","title":"Item %d","media_type":"image"}],"links":[{"href":"https://images-assets.nasa.gov/image/id-%d/thumb.jpg"}]}`, i, i, i, i)
	}
	return []byte(`{"collection":{"version":"1.0","items":[` + strings.Join(items, ",") + `],"metadata":{"total_hits":` + fmt.Sprint(n) + `}}}`)
}

type upstream struct {
	*httptest.Server
	calls   atomic.Int32
	mu      sync.Mutex
	queries []url.Values
	agents  []string
}

func newUpstream(t *testing.T, h http.HandlerFunc) *upstream {
	t.Helper()
	u := &upstream{}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.calls.Add(1)
		u.mu.Lock()
		u.queries = append(u.queries, r.URL.Query())
		u.agents = append(u.agents, r.UserAgent())
		u.mu.Unlock()
		h(w, r)
	}))
	t.Cleanup(u.Close)
	return u
}

func serveBody(body []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}
}

func ids(t *testing.T, items []json.RawMessage) []string {
	t.Helper()
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = Summarize(it).NasaID
	}
	return out
}

func TestSearch_MissPathSlicesPage(t *testing.T) {
	up := newUpstream(t, serveBody(fixture(25)))
	s := NewSearcher(cache.NewMemory(cache.Options{}), Options{BaseURL: up.URL})

	res, err := s.Search(context.Background(), "moon", 2, 10)
	require.NoError(t, err)

	assert.False(t, res.Cached)
	assert.Equal(t, 10, res.Count)
	want := make([]string, 0, 10)
	for i := 10; i < 20; i++ {
		want = append(want, fmt.Sprintf("id-%d", i))
	}
	assert.Equal(t, want, ids(t, res.Items))
}

func TestSearch_MissPathPastEndIsEmpty(t *testing.T) {
	up := newUpstream(t, serveBody(fixture(25)))
	s := NewSearcher(cache.NewMemory(cache.Options{}), Options{BaseURL: up.URL})

	res, err := s.Search(context.Background(), "moon", 3, 10)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Count)

	res, err = s.Search(context.Background(), "moon", 4, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Count)
	assert.NotNil(t, res.Items)
}

func TestSearch_HitPathReturnsWholeCollection(t *testing.T) {
	up := newUpstream(t, serveBody(fixture(25)))
	s := NewSearcher(cache.NewMemory(cache.Options{}), Options{BaseURL: up.URL})
	ctx := context.Background()

	first, err := s.Search(ctx, "moon", 2, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, first.Count)

	second, err := s.Search(ctx, "moon", 2, 10)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, 25, second.Count, "hit path serves the full cached collection")
	assert.Len(t, second.Items, 25)
	assert.EqualValues(t, 1, up.calls.Load())
}

func TestSearch_SliceCachedHits(t *testing.T) {
	up := newUpstream(t, serveBody(fixture(25)))
	s := NewSearcher(cache.NewMemory(cache.Options{}), Options{BaseURL: up.URL, SliceCachedHits: true})
	ctx := context.Background()

	_, err := s.Search(ctx, "moon", 2, 10)
	require.NoError(t, err)
	res, err := s.Search(ctx, "moon", 2, 10)
	require.NoError(t, err)

	assert.True(t, res.Cached)
	assert.Equal(t, 10, res.Count)
	assert.Equal(t, "id-10", Summarize(res.Items[0]).NasaID)
}

func TestSearch_ClampsLimitBeforeKey(t *testing.T) {
	up := newUpstream(t, serveBody(fixture(60)))
	store := cache.NewMemory(cache.Options{})
	s := NewSearcher(store, Options{BaseURL: up.URL})

	res, err := s.Search(context.Background(), "x", 1, 1000)
	require.NoError(t, err)
	assert.Equal(t, 50, res.Count)

	_, ok := store.Get("x-1-50")
	assert.True(t, ok)
	_, ok = store.Get("x-1-1000")
	assert.False(t, ok)
}

func TestSearch_UpstreamQuery(t *testing.T) {
	up := newUpstream(t, serveBody(fixture(3)))
	s := NewSearcher(cache.NewMemory(cache.Options{}), Options{BaseURL: up.URL})

	_, err := s.Search(context.Background(), "apollo 11", 3, 20)
	require.NoError(t, err)

	require.Len(t, up.queries, 1)
	q := up.queries[0]
	assert.Equal(t, "apollo 11", q.Get("q"))
	assert.Equal(t, "3", q.Get("page"))
	assert.Equal(t, "image,video", q.Get("media_type"))
	assert.False(t, q.Has("limit"), "the page size is never sent upstream")
	assert.Equal(t, UserAgent, up.agents[0])
}

func TestSearch_DefaultsForNonPositiveInputs(t *testing.T) {
	up := newUpstream(t, serveBody(fixture(25)))
	store := cache.NewMemory(cache.Options{})
	s := NewSearcher(store, Options{BaseURL: up.URL})

	res, err := s.Search(context.Background(), "moon", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 10, res.Count)
	_, ok := store.Get("moon-1-10")
	assert.True(t, ok)
}

func TestSearch_EmptyQueryIsPermittedByDefault(t *testing.T) {
	up := newUpstream(t, serveBody(fixture(2)))
	store := cache.NewMemory(cache.Options{})
	s := NewSearcher(store, Options{BaseURL: up.URL})

	_, err := s.Search(context.Background(), "", 1, 10)
	require.NoError(t, err)
	_, ok := store.Get("-1-10")
	assert.True(t, ok)
}

func TestSearch_RequireQuery(t *testing.T) {
	up := newUpstream(t, serveBody(fixture(2)))
	s := NewSearcher(cache.NewMemory(cache.Options{}), Options{BaseURL: up.URL, RequireQuery: true})

	_, err := s.Search(context.Background(), "   ", 1, 10)
	assert.ErrorIs(t, err, ErrEmptyQuery)
	assert.EqualValues(t, 0, up.calls.Load())
}

func TestSearch_UpstreamFailuresAreNotCached(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
		},
		{
			name:    "malformed json",
			handler: serveBody([]byte(`{"collection":`)),
		},
		{
			name:    "missing items",
			handler: serveBody([]byte(`{"reason":"no"}`)),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := newUpstream(t, tt.handler)
			store := cache.NewMemory(cache.Options{})
			m := metrics.New("test")
			s := NewSearcher(store, Options{BaseURL: up.URL, Metrics: m})

			_, err := s.Search(context.Background(), "moon", 1, 10)
			assert.ErrorIs(t, err, ErrUpstream)
			assert.Equal(t, 0, store.Len())

			// No retry on the first call, and the next call goes upstream again.
			assert.EqualValues(t, 1, up.calls.Load())
			_, _ = s.Search(context.Background(), "moon", 1, 10)
			assert.EqualValues(t, 2, up.calls.Load())
			assert.Equal(t, 2.0, testutil.ToFloat64(m.UpstreamErrors))
		})
	}
}

func TestSearch_UpstreamTimeout(t *testing.T) {
	release := make(chan struct{})
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)
	s := NewSearcher(cache.NewMemory(cache.Options{}), Options{BaseURL: up.URL, Timeout: 50 * time.Millisecond})

	start := time.Now()
	_, err := s.Search(context.Background(), "moon", 1, 10)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSearch_ExpiredEntryRefetches(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time { mu.Lock(); defer mu.Unlock(); return now }

	up := newUpstream(t, serveBody(fixture(5)))
	s := NewSearcher(cache.NewMemory(cache.Options{Now: clock}), Options{BaseURL: up.URL})
	ctx := context.Background()

	_, err := s.Search(ctx, "moon", 1, 10)
	require.NoError(t, err)
	res, err := s.Search(ctx, "moon", 1, 10)
	require.NoError(t, err)
	assert.True(t, res.Cached)

	mu.Lock()
	now = now.Add(DefaultTTL)
	mu.Unlock()

	res, err = s.Search(ctx, "moon", 1, 10)
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.EqualValues(t, 2, up.calls.Load())
}

func TestSearch_ConcurrentMissesMayBothGoUpstream(t *testing.T) {
	arrived := make(chan struct{}, 2)
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		arrived <- struct{}{}
		time.Sleep(20 * time.Millisecond)
		serveBody(fixture(25))(w, r)
	})
	s := NewSearcher(cache.NewMemory(cache.Options{}), Options{BaseURL: up.URL})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Search(context.Background(), "moon", 1, 10)
		}(i)
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("concurrent searches did not complete")
	}

	for _, err := range errs {
		assert.NoError(t, err)
	}
	calls := up.calls.Load()
	assert.GreaterOrEqual(t, calls, int32(1))
	assert.LessOrEqual(t, calls, int32(2))
}

func TestSearch_Metrics(t *testing.T) {
	up := newUpstream(t, serveBody(fixture(5)))
	m := metrics.New("test")
	s := NewSearcher(cache.NewMemory(cache.Options{}), Options{BaseURL: up.URL, Metrics: m})
	ctx := context.Background()

	_, err := s.Search(ctx, "moon", 1, 10)
	require.NoError(t, err)
	_, err = s.Search(ctx, "moon", 1, 10)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMisses))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheEntries))
}

func TestSearch_CorruptCacheEntryIsRefetched(t *testing.T) {
	up := newUpstream(t, serveBody(fixture(5)))
	store := cache.NewMemory(cache.Options{})
	store.Put("moon-1-10", []byte("not json"), time.Hour)
	s := NewSearcher(store, Options{BaseURL: up.URL})

	res, err := s.Search(context.Background(), "moon", 1, 10)
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, 5, res.Count)
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "moon-2-10", CacheKey("moon", 2, 10))
	assert.Equal(t, CacheKey("moon", 2, 10), CacheKey("moon", 2, 10))

	triples := []struct {
		q    string
		p, l int
	}{
		{"moon", 1, 10},
		{"moon", 2, 10},
		{"moon", 1, 11},
		{"mars", 1, 10},
		{"moon-1", 1, 10},
		{"moon", 11, 1},
		{"moon-1", 1, 1},
		{"", 1, 10},
	}
	seen := map[string]int{}
	for i, tr := range triples {
		k := CacheKey(tr.q, tr.p, tr.l)
		if j, dup := seen[k]; dup {
			t.Fatalf("triples %d and %d share key %q", j, i, k)
		}
		seen[k] = i
	}
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 10, ClampLimit(0))
	assert.Equal(t, 10, ClampLimit(-4))
	assert.Equal(t, 1, ClampLimit(1))
	assert.Equal(t, 50, ClampLimit(50))
	assert.Equal(t, 50, ClampLimit(51))
	assert.Equal(t, 50, ClampLimit(1000))
}

func TestSummarize(t *testing.T) {
	raw := json.RawMessage(`{"data":[{"nasa_id":"as11-40-5874","title":"Apollo 11 <b>flag</b>","description":"<p>Buzz Aldrin</p>","secondary_creator":"Neil Armstrong","media_type":"image","date_created":"1969-07-20T00:00:00Z"}],"links":[{"href":"https://images-assets.nasa.gov/thumb.jpg"}]}`)
	it := Summarize(raw)

	assert.Equal(t, "as11-40-5874", it.NasaID)
	assert.Equal(t, "Apollo 11 flag", it.Title)
	assert.Equal(t, "Buzz Aldrin", it.Description)
	assert.Equal(t, "Neil Armstrong", it.Photographer)
	assert.Equal(t, "image", it.MediaType)
	assert.Equal(t, "https://images-assets.nasa.gov/thumb.jpg", it.Preview)
}

func TestErrUpstreamWrapping(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	s := NewSearcher(cache.NewMemory(cache.Options{}), Options{BaseURL: up.URL})

	_, err := s.Search(context.Background(), "moon", 1, 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUpstream))
	assert.Contains(t, err.Error(), "502")
}
