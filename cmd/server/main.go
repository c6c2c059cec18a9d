package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/leonardcser/nasa-proxy/internal/auth"
	"github.com/leonardcser/nasa-proxy/internal/cache"
	"github.com/leonardcser/nasa-proxy/internal/config"
	"github.com/leonardcser/nasa-proxy/internal/httpapi"
	"github.com/leonardcser/nasa-proxy/internal/logger"
	"github.com/leonardcser/nasa-proxy/internal/metrics"
	"github.com/leonardcser/nasa-proxy/internal/nasa"
	"github.com/leonardcser/nasa-proxy/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := logger.InitFromEnv(); err != nil {
		panic(err)
	}
	defer logger.Close()

	cmd := &cli.Command{
		Name:   "nasa-proxy",
		Usage:  "REST API with a cached proxy to the NASA Images API",
		Flags:  flags(),
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logger.Errorf("server error: %v", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "path to nasa-proxy.yaml",
		},
		&cli.StringFlag{Name: "env", Usage: "development or production"},
		&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "listen port"},
		&cli.StringFlag{Name: "db", Usage: "bbolt database file"},
		&cli.StringFlag{Name: "nasa-base-url", Usage: "NASA Images API base URL"},
		&cli.DurationFlag{Name: "upstream-timeout", Usage: "timeout for each upstream request"},
		&cli.DurationFlag{Name: "cache-ttl", Usage: "lifetime of cached search responses"},
		&cli.DurationFlag{Name: "sweep-interval", Usage: "how often expired cache entries are reclaimed"},
		&cli.BoolFlag{Name: "slice-cached-hits", Usage: "paginate cache hits like misses"},
		&cli.BoolFlag{Name: "require-query", Usage: "reject searches without q"},
		&cli.BoolFlag{Name: "legacy-timers", Usage: "expire cache entries with one uncancelled timer per write"},
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}
	applyFlags(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Source != "" {
		logger.Infof("Loaded config from %s", cfg.Source)
	}
	tokenTTL, err := cfg.TokenTTL()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return err
	}
	st, err := store.Open(cfg.DBPath, store.Options{})
	if err != nil {
		return err
	}
	defer st.Close()
	logger.Infof("Opened store at %s", cfg.DBPath)

	m := metrics.New("nasa_proxy")
	mem := cache.NewMemory(cache.Options{
		DefaultTTL:   cfg.NASA.CacheTTL,
		LegacyTimers: cfg.NASA.LegacyTimers,
	})
	searcher := nasa.NewSearcher(mem, nasa.Options{
		BaseURL:         cfg.NASA.BaseURL,
		TTL:             cfg.NASA.CacheTTL,
		Timeout:         cfg.NASA.Timeout,
		SliceCachedHits: cfg.NASA.SliceCachedHits,
		RequireQuery:    cfg.NASA.RequireQuery,
		Metrics:         m,
	})
	api := httpapi.New(searcher, st, auth.NewIssuer(cfg.JWT.Secret, tokenTTL, nil), httpapi.Options{
		Production: cfg.Production(),
		CookieTTL:  cfg.CookieTTL(),
		RateLimit:  cfg.RateLimit.Requests,
		RateWindow: cfg.RateLimit.Window,
		Metrics:    m,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           api,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Infof("Server running in %s mode on port %d", cfg.Env, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	// Timers reclaim entries themselves in legacy mode.
	if !cfg.NASA.LegacyTimers {
		g.Go(func() error {
			return mem.Run(gctx, cfg.NASA.SweepInterval, func(removed int) {
				m.CacheSwept.Add(float64(removed))
				m.CacheEntries.Set(float64(mem.Len()))
				if removed > 0 {
					logger.Debugf("swept %d expired cache entries", removed)
				}
			})
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Infof("Shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	return g.Wait()
}

// applyFlags overrides cfg with every flag set on the command line.
func applyFlags(cmd *cli.Command, cfg *config.Config) {
	if cmd.IsSet("env") {
		cfg.Env = cmd.String("env")
	}
	if cmd.IsSet("port") {
		cfg.Port = cmd.Int("port")
	}
	if cmd.IsSet("db") {
		cfg.DBPath = cmd.String("db")
	}
	if cmd.IsSet("nasa-base-url") {
		cfg.NASA.BaseURL = cmd.String("nasa-base-url")
	}
	if cmd.IsSet("upstream-timeout") {
		cfg.NASA.Timeout = cmd.Duration("upstream-timeout")
	}
	if cmd.IsSet("cache-ttl") {
		cfg.NASA.CacheTTL = cmd.Duration("cache-ttl")
	}
	if cmd.IsSet("sweep-interval") {
		cfg.NASA.SweepInterval = cmd.Duration("sweep-interval")
	}
	if cmd.IsSet("slice-cached-hits") {
		cfg.NASA.SliceCachedHits = cmd.Bool("slice-cached-hits")
	}
	if cmd.IsSet("require-query") {
		cfg.NASA.RequireQuery = cmd.Bool("require-query")
	}
	if cmd.IsSet("legacy-timers") {
		cfg.NASA.LegacyTimers = cmd.Bool("legacy-timers")
	}
}
