package main

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/leonardcser/nasa-proxy/internal/cache"
	"github.com/leonardcser/nasa-proxy/internal/config"
	"github.com/leonardcser/nasa-proxy/internal/logger"
	"github.com/leonardcser/nasa-proxy/internal/nasa"
	"github.com/leonardcser/nasa-proxy/internal/tools"
)

func main() {
	if err := logger.InitFromEnv(); err != nil {
		panic(err)
	}
	defer logger.Close()

	logger.Infof("Starting NASA MCP server")

	cfg, err := config.Load("")
	if err != nil {
		logger.Errorf("Failed to load config: %v", err)
		panic(err)
	}

	mem := cache.NewMemory(cache.Options{
		DefaultTTL:   cfg.NASA.CacheTTL,
		LegacyTimers: cfg.NASA.LegacyTimers,
	})
	if !cfg.NASA.LegacyTimers {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() { _ = mem.Run(ctx, cfg.NASA.SweepInterval, nil) }()
	}
	searcher := nasa.NewSearcher(mem, nasa.Options{
		BaseURL:         cfg.NASA.BaseURL,
		TTL:             cfg.NASA.CacheTTL,
		Timeout:         cfg.NASA.Timeout,
		SliceCachedHits: cfg.NASA.SliceCachedHits,
		// An empty query is never useful to a model.
		RequireQuery: true,
	})
	logger.Infof("Initialized NASA searcher with in-memory cache")

	s := server.NewMCPServer(
		"NASA Images MCP",
		"0.1.0",
		server.WithRecovery(),
		server.WithToolCapabilities(false),
	)

	toolSearch := mcp.NewTool("nasa-search",
		mcp.WithDescription(multiline(
			"Searches the NASA Image and Video Library",
			"\nFunctionality:",
			"- Takes a free-text query and optional page and limit",
			"- Returns images and videos with title, NASA ID, date, creator, preview link and description",
			"\nUsage notes:",
			"- limit is capped at 50 and defaults to 10",
			"- Responses are cached for an hour; repeated queries are answered from the cache",
			"- This tool is read-only",
		)),
		mcp.WithString("query", mcp.Required(), mcp.Description("The search query to use")),
		mcp.WithNumber("page", mcp.Description("1-based page number"), mcp.Min(1)),
		mcp.WithNumber("limit", mcp.Description("Results per page, at most 50"), mcp.Min(1), mcp.Max(nasa.MaxLimit)),
	)
	s.AddTool(toolSearch, tools.NasaSearchHandler(searcher))
	logger.Infof("Registered nasa-search tool")

	logger.Infof("Starting MCP server on stdio")
	if err := server.ServeStdio(s); err != nil {
		logger.Errorf("server error: %v", err)
	}
}

// multiline joins lines with newlines for tool descriptions.
func multiline(lines ...string) string { return strings.Join(lines, "\n") }
