package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/leonardcser/nasa-proxy/internal/logger"
)

const fileName = "nasa-proxy.yaml"

type Config struct {
	// Source is the file the config was read from, empty when none was found.
	Source string `yaml:"-"`

	Env    string `yaml:"env"`
	Port   int    `yaml:"port"`
	DBPath string `yaml:"db_path"`

	JWT       JWT       `yaml:"jwt"`
	NASA      NASA      `yaml:"nasa"`
	RateLimit RateLimit `yaml:"rate_limit"`
}

type JWT struct {
	Secret string `yaml:"secret"`
	// Expire accepts Go durations plus a "d" suffix for days ("30d").
	Expire string `yaml:"expire"`
	// CookieExpireDays is the session cookie lifetime in days.
	CookieExpireDays int `yaml:"cookie_expire_days"`
}

type NASA struct {
	BaseURL         string        `yaml:"base_url"`
	Timeout         time.Duration `yaml:"timeout"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`
	SliceCachedHits bool          `yaml:"slice_cached_hits"`
	RequireQuery    bool          `yaml:"require_query"`
	LegacyTimers    bool          `yaml:"legacy_timers"`
}

type RateLimit struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Env:    "development",
		Port:   5000,
		DBPath: defaultDBPath(),
		JWT: JWT{
			Expire:           "30d",
			CookieExpireDays: 30,
		},
		NASA: NASA{
			BaseURL:       "https://images-api.nasa.gov",
			Timeout:       15 * time.Second,
			CacheTTL:      time.Hour,
			SweepInterval: time.Minute,
		},
		RateLimit: RateLimit{
			Requests: 100,
			Window:   10 * time.Minute,
		},
	}
}

// Load builds the configuration from defaults, the YAML file and the
// environment, in increasing precedence. An explicit path must exist;
// otherwise the standard locations are searched and a missing file is fine.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = os.Getenv("NASA_PROXY_CONFIG")
		explicit = path != ""
	}
	if !explicit {
		path = findConfig()
	}
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			if explicit || !errors.Is(err, os.ErrNotExist) {
				return Config{}, err
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("config file not found: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("config path %s points to a directory", path)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	c.Source = path
	logger.Debugf("using config file: %s", path)
	return nil
}

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	integer := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("NODE_ENV", &c.Env)
	str("NASA_PROXY_ENV", &c.Env)
	integer("PORT", &c.Port)
	str("NASA_PROXY_DB", &c.DBPath)
	str("JWT_SECRET", &c.JWT.Secret)
	str("JWT_EXPIRE", &c.JWT.Expire)
	integer("JWT_COOKIE_EXPIRE", &c.JWT.CookieExpireDays)
	str("NASA_PROXY_BASE_URL", &c.NASA.BaseURL)
	duration("NASA_PROXY_UPSTREAM_TIMEOUT", &c.NASA.Timeout)
	duration("NASA_PROXY_CACHE_TTL", &c.NASA.CacheTTL)
	duration("NASA_PROXY_SWEEP_INTERVAL", &c.NASA.SweepInterval)
	boolean("NASA_PROXY_SLICE_CACHED_HITS", &c.NASA.SliceCachedHits)
	boolean("NASA_PROXY_REQUIRE_QUERY", &c.NASA.RequireQuery)
	boolean("NASA_PROXY_LEGACY_TIMERS", &c.NASA.LegacyTimers)
	integer("NASA_PROXY_RATE_LIMIT", &c.RateLimit.Requests)
	duration("NASA_PROXY_RATE_WINDOW", &c.RateLimit.Window)
	return errors.Join(errs...)
}

// Validate reports settings the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt secret is required (JWT_SECRET)"))
	}
	if _, err := c.TokenTTL(); err != nil {
		errs = append(errs, err)
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Port))
	}
	if c.NASA.SweepInterval <= 0 {
		errs = append(errs, errors.New("nasa.sweep_interval must be positive"))
	}
	if c.RateLimit.Requests < 0 || (c.RateLimit.Requests > 0 && c.RateLimit.Window <= 0) {
		errs = append(errs, errors.New("rate_limit needs a positive window"))
	}
	return errors.Join(errs...)
}

// Production reports whether the server runs in production mode.
func (c Config) Production() bool { return strings.EqualFold(c.Env, "production") }

// TokenTTL parses JWT.Expire.
func (c Config) TokenTTL() (time.Duration, error) {
	return ParseExpiry(c.JWT.Expire)
}

// CookieTTL is the session cookie lifetime.
func (c Config) CookieTTL() time.Duration {
	return time.Duration(c.JWT.CookieExpireDays) * 24 * time.Hour
}

// ParseExpiry parses a Go duration or a whole number of days such as "30d".
func ParseExpiry(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid jwt expiry %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid jwt expiry %q: %w", s, err)
	}
	return d, nil
}

func findConfig() string {
	candidates := []string{
		os.Getenv("XDG_CONFIG_HOME"),
		os.Getenv("HOME"),
		".",
	}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		file := filepath.Join(c, fileName)
		if info, err := os.Stat(file); err == nil && !info.IsDir() {
			return file
		}
	}
	return ""
}

func defaultDBPath() string {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "."
	}
	return filepath.Join(home, ".cache", "nasa-proxy", "nasa.bbolt")
}
