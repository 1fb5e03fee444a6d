package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/wardrobe-weather/internal/store"
	"github.com/kjstillabower/wardrobe-weather/internal/validation"
	"github.com/kjstillabower/wardrobe-weather/internal/warming"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string

	WeatherAPIKey     string
	WeatherAPIURL     string
	WeatherAPITimeout time.Duration
	DefaultUnitGroup  string

	RequestTimeout time.Duration

	StoreBackend          string // in_memory, sqlite, postgres or memcached
	SQLitePath            string
	PostgresDSN           string
	PostgresMaxConns      int32
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	BreakerEnabled          bool
	BreakerFailureThreshold uint32
	BreakerHalfOpenRequests uint32
	BreakerOpenTimeout      time.Duration

	RateLimitRPS   int
	RateLimitBurst int

	ShutdownTimeout time.Duration

	OverloadWindow       time.Duration
	OverloadThresholdPct int
	DegradedWindow       time.Duration
	DegradedErrorPct     int

	WarmingInterval  time.Duration
	WarmingTimeout   time.Duration
	WarmingTimeZone  string
	WarmingDaysBack  int
	WarmingLocations []warming.Location

	MCPEnabled bool
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	WeatherAPI struct {
		URL              string `yaml:"url"`
		Timeout          string `yaml:"timeout"`
		DefaultUnitGroup string `yaml:"default_unit_group"`
	} `yaml:"weather_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Store struct {
		Backend string `yaml:"backend"`
		SQLite  struct {
			Path string `yaml:"path"`
		} `yaml:"sqlite"`
		Postgres struct {
			DSN      string `yaml:"dsn"`
			MaxConns int32  `yaml:"max_conns"`
		} `yaml:"postgres"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"store"`

	Reliability struct {
		CircuitBreaker struct {
			Enabled          *bool  `yaml:"enabled"`
			FailureThreshold uint32 `yaml:"failure_threshold"`
			HalfOpenRequests uint32 `yaml:"half_open_requests"`
			OpenTimeout      string `yaml:"open_timeout"`
		} `yaml:"circuit_breaker"`
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Health struct {
		OverloadWindow       string `yaml:"overload_window"`
		OverloadThresholdPct int    `yaml:"overload_threshold_pct"`
		DegradedWindow       string `yaml:"degraded_window"`
		DegradedErrorPct     int    `yaml:"degraded_error_pct"`
	} `yaml:"health"`

	Warming struct {
		Interval  string             `yaml:"interval"`
		Timeout   string             `yaml:"timeout"`
		TimeZone  string             `yaml:"time_zone"`
		DaysBack  *int               `yaml:"days_back"`
		Locations []warming.Location `yaml:"locations"`
	} `yaml:"warming"`

	MCP struct {
		Enabled *bool `yaml:"enabled"`
	} `yaml:"mcp"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
	DatabaseURL   string `yaml:"database_url"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and config/secrets.yaml.
// A .env file in the working directory is loaded first when present; it never overrides
// variables already set. A missing API key is not an error: the service starts and reports
// it per request. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	if err := godotenv.Load(filepath.Join(cwd, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	sec, err := loadSecrets(filepath.Join(cwd, "config", "secrets.yaml"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	cfg.ServerPort = firstNonEmpty(os.Getenv("PORT"), fc.Server.Port, "8080")

	cfg.WeatherAPIKey = firstNonEmpty(os.Getenv("WEATHER_API_KEY"), sec.WeatherAPIKey)
	cfg.WeatherAPIURL = firstNonEmpty(os.Getenv("WEATHER_API_URL"), fc.WeatherAPI.URL)
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 10*time.Second)
	cfg.DefaultUnitGroup = strings.ToLower(firstNonEmpty(fc.WeatherAPI.DefaultUnitGroup, "us"))

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 15*time.Second)

	cfg.StoreBackend = strings.TrimSpace(strings.ToLower(firstNonEmpty(os.Getenv("STORE_BACKEND"), fc.Store.Backend, store.BackendMemory)))
	cfg.SQLitePath = firstNonEmpty(os.Getenv("SQLITE_PATH"), fc.Store.SQLite.Path, filepath.Join("data", "weather.db"))
	cfg.PostgresDSN = firstNonEmpty(os.Getenv("DATABASE_URL"), sec.DatabaseURL, fc.Store.Postgres.DSN)
	cfg.PostgresMaxConns = fc.Store.Postgres.MaxConns
	if cfg.PostgresMaxConns <= 0 {
		cfg.PostgresMaxConns = 10
	}
	cfg.MemcachedAddrs = strings.TrimSpace(firstNonEmpty(os.Getenv("MEMCACHED_ADDRS"), fc.Store.Memcached.Addrs, "localhost:11211"))
	cfg.MemcachedTimeout = parseDuration(fc.Store.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Store.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cb := fc.Reliability.CircuitBreaker
	cfg.BreakerEnabled = cb.Enabled == nil || *cb.Enabled
	cfg.BreakerFailureThreshold = cb.FailureThreshold
	if cfg.BreakerFailureThreshold == 0 {
		cfg.BreakerFailureThreshold = 5
	}
	cfg.BreakerHalfOpenRequests = cb.HalfOpenRequests
	if cfg.BreakerHalfOpenRequests == 0 {
		cfg.BreakerHalfOpenRequests = 1
	}
	cfg.BreakerOpenTimeout = parseDuration(cb.OpenTimeout, 30*time.Second)

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 100
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 250
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	cfg.OverloadWindow = parseDuration(fc.Health.OverloadWindow, 60*time.Second)
	cfg.OverloadThresholdPct = fc.Health.OverloadThresholdPct
	if cfg.OverloadThresholdPct <= 0 {
		cfg.OverloadThresholdPct = 80
	}
	cfg.DegradedWindow = parseDuration(fc.Health.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Health.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 5
	}

	cfg.WarmingInterval = parseDuration(fc.Warming.Interval, 15*time.Minute)
	cfg.WarmingTimeout = parseDuration(fc.Warming.Timeout, 30*time.Second)
	cfg.WarmingTimeZone = firstNonEmpty(fc.Warming.TimeZone, "UTC")
	cfg.WarmingDaysBack = 1
	if fc.Warming.DaysBack != nil {
		cfg.WarmingDaysBack = *fc.Warming.DaysBack
	}
	cfg.WarmingLocations = fc.Warming.Locations

	cfg.MCPEnabled = fc.MCP.Enabled == nil || *fc.MCP.Enabled

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// StoreOptions returns the store settings in the form store.New expects.
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		Backend:               c.StoreBackend,
		SQLitePath:            c.SQLitePath,
		PostgresDSN:           c.PostgresDSN,
		PostgresMaxConns:      c.PostgresMaxConns,
		MemcachedAddrs:        c.MemcachedAddrs,
		MemcachedTimeout:      c.MemcachedTimeout,
		MemcachedMaxIdleConns: c.MemcachedMaxIdleConns,
	}
}

// WarmingLocation resolves WarmingTimeZone. validate has already checked it.
func (c *Config) WarmingLocation() *time.Location {
	loc, err := time.LoadLocation(c.WarmingTimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func loadSecrets(path string) (secretsFile, error) {
	var sec secretsFile
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sec, nil
		}
		return sec, fmt.Errorf("read secrets file: %w", err)
	}
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return sec, fmt.Errorf("parse secrets file: %w", err)
	}
	return sec, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Zero or negative durations are returned as-is so validate can reject them.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation. RequestTimeout is raised above the
// upstream timeout so a slow provider surfaces as its own error.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		cfg.RequestTimeout = cfg.WeatherAPITimeout + time.Second
	}
	switch cfg.StoreBackend {
	case store.BackendMemory, store.BackendSQLite, store.BackendMemcached:
	case store.BackendPostgres:
		if cfg.PostgresDSN == "" {
			return fmt.Errorf("store.backend postgres requires DATABASE_URL or store.postgres.dsn")
		}
	default:
		return fmt.Errorf("store.backend must be in_memory, sqlite, postgres or memcached, got %q", cfg.StoreBackend)
	}
	if !validation.IsUnitGroup(cfg.DefaultUnitGroup) {
		return fmt.Errorf("weather_api.default_unit_group must be one of %s, got %q",
			strings.Join(validation.UnitGroups, ", "), cfg.DefaultUnitGroup)
	}
	if cfg.WarmingDaysBack < 0 {
		return fmt.Errorf("warming.days_back must not be negative, got %d", cfg.WarmingDaysBack)
	}
	if _, err := time.LoadLocation(cfg.WarmingTimeZone); err != nil {
		return fmt.Errorf("warming.time_zone: %w", err)
	}
	for i, l := range cfg.WarmingLocations {
		if err := validation.ValidateQuery(validation.Query{
			Latitude:  l.Latitude,
			Longitude: l.Longitude,
			Date:      "2000-01-01",
		}); err != nil {
			return fmt.Errorf("warming.locations[%d] (%s): %w", i, l.Name, err)
		}
	}
	return nil
}
