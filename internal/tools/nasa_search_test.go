package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leonardcser/nasa-proxy/internal/nasa"
)

type fakeSearcher struct {
	res         *nasa.SearchResult
	err         error
	page, limit int
	query       string
}

func (f *fakeSearcher) Search(_ context.Context, q string, page, limit int) (*nasa.SearchResult, error) {
	f.query, f.page, f.limit = q, page, limit
	return f.res, f.err
}

func call(t *testing.T, s Searcher, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Name = "nasa-search"
	req.Params.Arguments = args
	res, err := NasaSearchHandler(s)(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestNasaSearchHandler(t *testing.T) {
	raw := json.RawMessage(`{"data":[{"nasa_id":"as11-40-5874","title":"Apollo 11","media_type":"image","date_created":"1969-07-20T00:00:00Z","description":"<p>Buzz on the <b>Moon</b></p>","secondary_creator":"Neil Armstrong"}],"links":[{"href":"https://images-assets.nasa.gov/thumb.jpg"}]}`)
	s := &fakeSearcher{res: &nasa.SearchResult{Count: 1, Items: []json.RawMessage{raw}}}

	res := call(t, s, map[string]any{"query": "apollo", "page": float64(2), "limit": float64(5)})
	assert.False(t, res.IsError)
	assert.Equal(t, "apollo", s.query)
	assert.Equal(t, 2, s.page)
	assert.Equal(t, 5, s.limit)

	out := text(t, res)
	assert.Contains(t, out, "1. Apollo 11 [image]")
	assert.Contains(t, out, "id: as11-40-5874")
	assert.Contains(t, out, "by: Neil Armstrong")
	assert.Contains(t, out, "https://images-assets.nasa.gov/thumb.jpg")
	assert.Contains(t, out, "**Moon**")
}

func TestNasaSearchHandler_Defaults(t *testing.T) {
	s := &fakeSearcher{res: &nasa.SearchResult{}}
	res := call(t, s, map[string]any{"query": "mars"})
	assert.Equal(t, nasa.DefaultPage, s.page)
	assert.Equal(t, nasa.DefaultLimit, s.limit)
	assert.Equal(t, "No results.", text(t, res))
}

func TestNasaSearchHandler_Errors(t *testing.T) {
	res := call(t, &fakeSearcher{}, map[string]any{})
	assert.True(t, res.IsError)

	res = call(t, &fakeSearcher{err: nasa.ErrEmptyQuery}, map[string]any{"query": ""})
	assert.True(t, res.IsError)
	assert.Equal(t, "query must not be empty", text(t, res))

	res = call(t, &fakeSearcher{err: errors.Join(nasa.ErrUpstream, errors.New("boom"))}, map[string]any{"query": "x"})
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "boom")
}

func TestFormatItems_Cached(t *testing.T) {
	out := formatItems([]nasa.Item{{NasaID: "a", MediaType: "video"}, {NasaID: "b", Title: "B", MediaType: "image"}}, true)
	assert.Equal(t, "(cached)\n\n1. a [video]\n   id: a\n\n2. B [image]\n   id: b", out)
}
