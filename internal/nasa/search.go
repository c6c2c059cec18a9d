package nasa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/tidwall/gjson"

	"github.com/leonardcser/nasa-proxy/internal/cache"
	"github.com/leonardcser/nasa-proxy/internal/logger"
	"github.com/leonardcser/nasa-proxy/internal/metrics"
)

const (
	DefaultBaseURL  = "https://images-api.nasa.gov"
	DefaultTTL      = time.Hour
	DefaultPage     = 1
	DefaultLimit    = 10
	MaxLimit        = 50
	RequestTimeout  = 15 * time.Second
	MaxResponseSize = 16 * 1024 * 1024 // 16MB
	UserAgent       = "nasa-proxy/0.1 (+https://github.com/leonardcser/nasa-proxy)"

	// itemsPath is where the upstream body keeps its result list.
	itemsPath = "collection.items"
	mediaType = "image,video"
)

var (
	ErrUpstream   = errors.New("nasa: upstream request failed")
	ErrEmptyQuery = errors.New("nasa: empty query")
)

// SearchResult is one page of upstream items.
type SearchResult struct {
	Count int               `json:"count"`
	Items []json.RawMessage `json:"data"`
	// Cached reports whether the page came from the response cache.
	Cached bool `json:"-"`
}

type Options struct {
	// BaseURL of the NASA Images API. Defaults to DefaultBaseURL.
	BaseURL string
	// TTL of cached upstream bodies. Defaults to DefaultTTL.
	TTL time.Duration
	// Timeout bounds each upstream request. Defaults to RequestTimeout.
	Timeout time.Duration
	// HTTPClient overrides the client used for upstream calls; Timeout is
	// ignored when set.
	HTTPClient *http.Client
	// SliceCachedHits paginates cache hits the same way as misses. When
	// false a hit returns the whole cached collection.
	SliceCachedHits bool
	// RequireQuery rejects empty queries with ErrEmptyQuery.
	RequireQuery bool
	// Metrics is optional.
	Metrics *metrics.Metrics
}

// Searcher answers search requests from the cache or the NASA Images API.
// Concurrent misses on the same key each go upstream.
type Searcher struct {
	client   *http.Client
	cache    cache.KV
	endpoint string
	ttl      time.Duration
	opts     Options
}

func NewSearcher(cacheStore cache.KV, opts Options) *Searcher {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = RequestTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Searcher{
		client:   client,
		cache:    cacheStore,
		endpoint: base + "/search",
		ttl:      ttl,
		opts:     opts,
	}
}

// ClampLimit caps limit at MaxLimit. Non-positive limits fall back to
// DefaultLimit.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return min(limit, MaxLimit)
}

// CacheKey composes the cache key for a search. Page and limit never
// contain the separator, so distinct triples give distinct keys.
func CacheKey(query string, page, limit int) string {
	return query + "-" + strconv.Itoa(page) + "-" + strconv.Itoa(limit)
}

// Search returns one page of items for query. The limit is silently
// clamped to MaxLimit before the cache key is built.
func (s *Searcher) Search(ctx context.Context, query string, page, limit int) (*SearchResult, error) {
	if s.opts.RequireQuery && strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if page < 1 {
		page = DefaultPage
	}
	limit = ClampLimit(limit)
	key := CacheKey(query, page, limit)

	if e, ok := s.cache.Get(key); ok {
		if items, err := parseItems(e.Payload); err == nil {
			logger.Debugf("search cache hit: %s", key)
			s.hit()
			if s.opts.SliceCachedHits {
				items = pageOf(items, page, limit)
			}
			return &SearchResult{Count: len(items), Items: items, Cached: true}, nil
		}
		s.cache.Remove(key)
	}

	s.miss()
	body, err := s.fetch(ctx, query, page)
	if err != nil {
		s.upstreamError()
		return nil, err
	}
	items, err := parseItems(body)
	if err != nil {
		s.upstreamError()
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	s.cache.Put(key, body, s.ttl)
	s.cacheSize()

	items = pageOf(items, page, limit)
	return &SearchResult{Count: len(items), Items: items}, nil
}

func (s *Searcher) fetch(ctx context.Context, query string, page int) ([]byte, error) {
	values := url.Values{
		"q":          {query},
		"page":       {strconv.Itoa(page)},
		"media_type": {mediaType},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"?"+values.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", UserAgent)

	logger.Infof("Fetching data from NASA API: q=%q page=%d", query, page)
	start := time.Now()
	resp, err := s.client.Do(req)
	if s.opts.Metrics != nil {
		s.opts.Metrics.UpstreamLatency.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: nasa status %d", ErrUpstream, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if len(body) > MaxResponseSize {
		return nil, fmt.Errorf("%w: response exceeds %s", ErrUpstream, humanize.Bytes(MaxResponseSize))
	}
	logger.Debugf("NASA API returned %s in %s", humanize.Bytes(uint64(len(body))), time.Since(start).Round(time.Millisecond))
	return body, nil
}

// parseItems extracts the raw items under collection.items.
func parseItems(body []byte) ([]json.RawMessage, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("malformed JSON body")
	}
	res := gjson.GetBytes(body, itemsPath)
	if !res.IsArray() {
		return nil, fmt.Errorf("missing %s", itemsPath)
	}
	arr := res.Array()
	items := make([]json.RawMessage, 0, len(arr))
	for _, it := range arr {
		items = append(items, json.RawMessage(it.Raw))
	}
	return items, nil
}

// pageOf returns items[(page-1)*limit : page*limit], clipped to bounds.
func pageOf(items []json.RawMessage, page, limit int) []json.RawMessage {
	start := (page - 1) * limit
	if start >= len(items) {
		return []json.RawMessage{}
	}
	end := min(page*limit, len(items))
	return items[start:end]
}

func (s *Searcher) hit() {
	if s.opts.Metrics != nil {
		s.opts.Metrics.CacheHits.Inc()
	}
}

func (s *Searcher) miss() {
	if s.opts.Metrics != nil {
		s.opts.Metrics.CacheMisses.Inc()
	}
}

func (s *Searcher) upstreamError() {
	if s.opts.Metrics != nil {
		s.opts.Metrics.UpstreamErrors.Inc()
	}
}

func (s *Searcher) cacheSize() {
	if s.opts.Metrics == nil {
		return
	}
	if m, ok := s.cache.(interface{ Len() int }); ok {
		s.opts.Metrics.CacheEntries.Set(float64(m.Len()))
	}
}
