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
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/station-forecast-service/internal/models"
	"github.com/kjstillabower/station-forecast-service/internal/validation"
)

// Store backends accepted by store.backend / STORE_BACKEND.
const (
	BackendSQLite    = "sqlite"
	BackendPostgres  = "postgres"
	BackendMemcached = "memcached"
	BackendInMemory  = "in_memory"
)

// Config holds service configuration loaded from YAML, .env and the environment.
type Config struct {
	ServerPort string

	WeatherAPIURL     string
	WeatherAPITimeout time.Duration
	Timezone          string
	Location          *time.Location

	RequestTimeout time.Duration

	StoreBackend          string
	SQLitePath            string
	PostgresDSN           string
	PostgresMaxConns      int32
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int
	InMemoryMaxStations   int

	RetryAttempts           int
	RetryBaseDelay          time.Duration
	RetryMaxDelay           time.Duration
	BreakerFailureThreshold int
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenRequests int
	RefillLockTimeout       time.Duration
	RateLimitRPS            int
	RateLimitBurst          int

	ShutdownTimeout time.Duration

	HealthWindow      time.Duration
	HealthErrorPct    int
	HealthOverloadPct int
	RateLimitWindow   time.Duration
	WarmOnStartup     bool
	WarmConcurrency   int
	SchedulerEnabled  bool
	WarmSchedule      string
	ForecastSchedule  string
	Stations          []models.Station
	TrackedStations   []string
	StationNameMaxLen int
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	WeatherAPI struct {
		URL      string `yaml:"url"`
		Timeout  string `yaml:"timeout"`
		Timezone string `yaml:"timezone"`
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
		InMemory struct {
			MaxStations int `yaml:"max_stations"`
		} `yaml:"in_memory"`
	} `yaml:"store"`

	Reliability struct {
		RetryMaxAttempts        int    `yaml:"retry_max_attempts"`
		RetryBaseDelay          string `yaml:"retry_base_delay"`
		RetryMaxDelay           string `yaml:"retry_max_delay"`
		BreakerFailureThreshold int    `yaml:"breaker_failure_threshold"`
		BreakerOpenTimeout      string `yaml:"breaker_open_timeout"`
		BreakerHalfOpenRequests int    `yaml:"breaker_half_open_requests"`
		RefillLockTimeout       string `yaml:"refill_lock_timeout"`
		RateLimitRPS            int    `yaml:"rate_limit_rps"`
		RateLimitBurst          int    `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Health struct {
		Window      string `yaml:"window"`
		ErrorPct    int    `yaml:"error_pct"`
		OverloadPct int    `yaml:"overload_pct"`
	} `yaml:"health"`

	Stations []models.Station `yaml:"stations"`

	Scheduler struct {
		Enabled          bool   `yaml:"enabled"`
		WarmOnStartup    *bool  `yaml:"warm_on_startup"`
		WarmConcurrency  int    `yaml:"warm_concurrency"`
		WarmSchedule     string `yaml:"warm_schedule"`
		ForecastSchedule string `yaml:"forecast_schedule"`
	} `yaml:"scheduler"`

	Metrics struct {
		TrackedStations []string `yaml:"tracked_stations"`
		RateLimitWindow string   `yaml:"rate_limit_window"`
	} `yaml:"metrics"`
}

// DefaultStation is used when no stations are configured.
var DefaultStation = models.Station{Name: "stuttgart", Lat: 48.78, Lon: 9.18}

// Load reads configuration from the working directory. See LoadFrom.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadFrom(cwd)
}

// LoadFrom loads dir/.env when present (existing variables win), then reads
// dir/config/{ENV_NAME}.yaml (default dev). STORE_BACKEND, SQLITE_PATH,
// POSTGRES_DSN, MEMCACHED_ADDRS, WEATHER_API_URL and TIMEZONE override the file.
func LoadFrom(dir string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	configPath := filepath.Join(dir, "config", env+".yaml")
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

	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.WeatherAPIURL = envOr("WEATHER_API_URL", fc.WeatherAPI.URL)
	if cfg.WeatherAPIURL == "" {
		cfg.WeatherAPIURL = "https://api.open-meteo.com/v1/forecast"
	}
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 5*time.Second)
	cfg.Timezone = envOr("TIMEZONE", fc.WeatherAPI.Timezone)
	if cfg.Timezone == "" {
		cfg.Timezone = "Europe/Berlin"
	}

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 10*time.Second)

	cfg.StoreBackend = strings.ToLower(envOr("STORE_BACKEND", fc.Store.Backend))
	if cfg.StoreBackend == "" {
		cfg.StoreBackend = BackendSQLite
	}
	cfg.SQLitePath = envOr("SQLITE_PATH", fc.Store.SQLite.Path)
	if cfg.SQLitePath == "" {
		cfg.SQLitePath = "weather.db"
	}
	cfg.PostgresDSN = envOr("POSTGRES_DSN", fc.Store.Postgres.DSN)
	cfg.PostgresMaxConns = fc.Store.Postgres.MaxConns
	if cfg.PostgresMaxConns <= 0 {
		cfg.PostgresMaxConns = 4
	}
	cfg.MemcachedAddrs = envOr("MEMCACHED_ADDRS", fc.Store.Memcached.Addrs)
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Store.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Store.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}
	cfg.InMemoryMaxStations = fc.Store.InMemory.MaxStations
	if cfg.InMemoryMaxStations <= 0 {
		cfg.InMemoryMaxStations = 1000
	}

	cfg.RetryAttempts = fc.Reliability.RetryMaxAttempts
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 1
	}
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 100*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 2*time.Second)
	cfg.BreakerFailureThreshold = fc.Reliability.BreakerFailureThreshold
	if cfg.BreakerFailureThreshold <= 0 {
		cfg.BreakerFailureThreshold = 5
	}
	cfg.BreakerOpenTimeout = parseDuration(fc.Reliability.BreakerOpenTimeout, 30*time.Second)
	cfg.BreakerHalfOpenRequests = fc.Reliability.BreakerHalfOpenRequests
	if cfg.BreakerHalfOpenRequests <= 0 {
		cfg.BreakerHalfOpenRequests = 1
	}
	cfg.RefillLockTimeout = parseDurationOrZero(fc.Reliability.RefillLockTimeout, 0)
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 100
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 250
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	cfg.HealthWindow = parseDuration(fc.Health.Window, 60*time.Second)
	cfg.HealthErrorPct = fc.Health.ErrorPct
	if cfg.HealthErrorPct <= 0 {
		cfg.HealthErrorPct = 5
	}
	cfg.HealthOverloadPct = fc.Health.OverloadPct
	if cfg.HealthOverloadPct <= 0 {
		cfg.HealthOverloadPct = 80
	}
	cfg.RateLimitWindow = parseDuration(fc.Metrics.RateLimitWindow, 60*time.Second)

	cfg.Stations = make([]models.Station, 0, len(fc.Stations))
	for _, st := range fc.Stations {
		st.Name = validation.NormalizeStation(st.Name)
		cfg.Stations = append(cfg.Stations, st)
	}
	if len(cfg.Stations) == 0 {
		cfg.Stations = []models.Station{DefaultStation}
	}
	cfg.StationNameMaxLen = 100

	cfg.SchedulerEnabled = fc.Scheduler.Enabled
	cfg.WarmOnStartup = true
	if fc.Scheduler.WarmOnStartup != nil {
		cfg.WarmOnStartup = *fc.Scheduler.WarmOnStartup
	}
	cfg.WarmConcurrency = fc.Scheduler.WarmConcurrency
	if cfg.WarmConcurrency <= 0 {
		cfg.WarmConcurrency = 4
	}
	cfg.WarmSchedule = strings.TrimSpace(fc.Scheduler.WarmSchedule)
	if cfg.WarmSchedule == "" {
		cfg.WarmSchedule = "5 0 * * *"
	}
	cfg.ForecastSchedule = strings.TrimSpace(fc.Scheduler.ForecastSchedule)

	cfg.TrackedStations = fc.Metrics.TrackedStations
	for _, st := range cfg.Stations {
		cfg.TrackedStations = append(cfg.TrackedStations, st.Name)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Station returns the configured station with the given name, compared after normalization.
func (c *Config) Station(name string) (models.Station, bool) {
	key := validation.NormalizeStation(name)
	for _, st := range c.Stations {
		if st.Name == key {
			return st, true
		}
	}
	return models.Station{}, false
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return strings.TrimSpace(fallback)
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
// Returns zero or negative durations as-is (caller should handle fallback).
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

// validate performs post-load validation. Auto-adjusts RequestTimeout to exceed
// WeatherAPITimeout and resolves Location.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		cfg.RequestTimeout = cfg.WeatherAPITimeout + time.Second
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("weather_api.timezone %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc

	switch cfg.StoreBackend {
	case BackendSQLite, BackendMemcached, BackendInMemory:
	case BackendPostgres:
		if cfg.PostgresDSN == "" {
			return fmt.Errorf("store.postgres.dsn (or POSTGRES_DSN) required for postgres backend")
		}
	default:
		return fmt.Errorf("store.backend must be sqlite, postgres, memcached or in_memory, got %q", cfg.StoreBackend)
	}

	seen := make(map[string]struct{}, len(cfg.Stations))
	for _, st := range cfg.Stations {
		if _, err := validation.ValidateStation(st.Name, 1, cfg.StationNameMaxLen); err != nil {
			return fmt.Errorf("stations: %q: %w", st.Name, err)
		}
		if err := validation.ValidateCoordinates(st.Lat, st.Lon); err != nil {
			return fmt.Errorf("stations: %s: %w", st.Name, err)
		}
		if _, dup := seen[st.Name]; dup {
			return fmt.Errorf("stations: duplicate station %q", st.Name)
		}
		seen[st.Name] = struct{}{}
	}

	if cfg.SchedulerEnabled {
		if _, err := cron.ParseStandard(cfg.WarmSchedule); err != nil {
			return fmt.Errorf("scheduler.warm_schedule %q: %w", cfg.WarmSchedule, err)
		}
		if cfg.ForecastSchedule != "" {
			if _, err := cron.ParseStandard(cfg.ForecastSchedule); err != nil {
				return fmt.Errorf("scheduler.forecast_schedule %q: %w", cfg.ForecastSchedule, err)
			}
		}
	}
	return nil
}
