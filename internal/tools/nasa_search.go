package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/leonardcser/nasa-proxy/internal/nasa"
)

// Searcher is the cached NASA search the tool is backed by.
type Searcher interface {
	Search(ctx context.Context, query string, page, limit int) (*nasa.SearchResult, error)
}

// NasaSearchHandler returns the MCP tool handler for the "nasa-search" tool.
func NasaSearchHandler(searcher Searcher) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if ctx.Err() != nil {
			return mcp.NewToolResultError(ctx.Err().Error()), nil
		}
		q, err := req.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		page := req.GetInt("page", nasa.DefaultPage)
		limit := req.GetInt("limit", nasa.DefaultLimit)

		res, err := searcher.Search(ctx, q, page, limit)
		if errors.Is(err, nasa.ErrEmptyQuery) {
			return mcp.NewToolResultError("query must not be empty"), nil
		}
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		items := make([]nasa.Item, 0, len(res.Items))
		for _, raw := range res.Items {
			items = append(items, nasa.Summarize(raw))
		}
		return mcp.NewToolResultText(formatItems(items, res.Cached)), nil
	}
}

// formatItems renders an ordered list, one block per item.
func formatItems(items []nasa.Item, cached bool) string {
	if len(items) == 0 {
		return "No results."
	}
	var sb strings.Builder
	if cached {
		sb.WriteString("(cached)\n\n")
	}
	for i, it := range items {
		title := it.Title
		if title == "" {
			title = it.NasaID
		}
		sb.WriteString(fmt.Sprintf("%d. %s [%s]\n   id: %s", i+1, title, it.MediaType, it.NasaID))
		if it.DateCreated != "" {
			sb.WriteString("\n   date: ")
			sb.WriteString(it.DateCreated)
		}
		if it.Photographer != "" {
			sb.WriteString("\n   by: ")
			sb.WriteString(it.Photographer)
		}
		if it.Preview != "" {
			sb.WriteString("\n   ")
			sb.WriteString(it.Preview)
		}
		if it.Description != "" {
			sb.WriteString("\n   ")
			sb.WriteString(strings.ReplaceAll(it.Description, "\n", "\n   "))
		}
		if i < len(items)-1 {
			sb.WriteString("\n\n")
		}
	}
	return sb.String()
}
