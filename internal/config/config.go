// Copyright 2025 James Ross
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store bounds the store's connection pool ("a bounded pool of
// store connections, default 5-20").
type Store struct {
	DatabaseURL     string        `mapstructure:"database_url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	CallTimeout     time.Duration `mapstructure:"call_timeout"`
}

// Populator controls the periodic job-generation loop.
type Populator struct {
	IntervalMS     int `mapstructure:"interval_ms"`
	BatchSize      int `mapstructure:"batch_size"`
	PendingCeiling int `mapstructure:"pending_ceiling"`
}

// Monitors controls the four periodic reconciliation loops.
type Monitors struct {
	ClaimedJobTimeout     time.Duration `mapstructure:"claimed_job_timeout"`
	ProcessingJobTimeout  time.Duration `mapstructure:"processing_job_timeout"`
	ClaimedCheckInterval  time.Duration `mapstructure:"claimed_check_interval"`
	ProcessingCheckInterval time.Duration `mapstructure:"processing_check_interval"`
	BotDownThreshold      time.Duration `mapstructure:"bot_down_threshold"`
	BotRetention          time.Duration `mapstructure:"bot_retention"`
	CleanupInterval       time.Duration `mapstructure:"cleanup_interval"`
	MaxRecoveriesPerCycle int           `mapstructure:"max_recoveries_per_cycle"`
	HistorySize           int           `mapstructure:"history_size"`
}

// Registry controls how operations are loaded at startup.
type Registry struct {
	Dir          string   `mapstructure:"dir"`
	IncludeGlobs []string `mapstructure:"include_globs"`
	ExcludeGlobs []string `mapstructure:"exclude_globs"`
}

// CircuitBreaker holds breaker settings for the datalake sink. They are
// loaded but not passed on: datalake.New builds its breaker with fixed
// values (1m window, 30s cooldown, 0.5 threshold, 5 samples), which equal
// the defaults below.
type CircuitBreaker struct {
	FailureThreshold float64       `mapstructure:"failure_threshold"`
	Window           time.Duration `mapstructure:"window"`
	CooldownPeriod   time.Duration `mapstructure:"cooldown_period"`
	MinSamples       int           `mapstructure:"min_samples"`
}

// API controls the HTTP surface: port, admin auth, and rate limiting.
type API struct {
	HTTPPort          int           `mapstructure:"http_port"`
	AdminToken        string        `mapstructure:"admin_token"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	RateLimitPerSec   float64       `mapstructure:"rate_limit_per_sec"`
	RateLimitBurst    int           `mapstructure:"rate_limit_burst"`
}

// Observability controls logging and metrics.
type Observability struct {
	LogLevel    string `mapstructure:"log_level"`
	LogEncoding string `mapstructure:"log_encoding"` // "json" or "console"
	ServiceName string `mapstructure:"service_name"` // stamped on every log line
	MetricsPort int    `mapstructure:"metrics_port"`
}

// Datalake controls the result-append sink.
type Datalake struct {
	Dir string `mapstructure:"dir"`
}

// Audit controls the admin-action audit trail.
type Audit struct {
	Dir string `mapstructure:"dir"`
}

type Config struct {
	Store          Store          `mapstructure:"store"`
	Populator      Populator      `mapstructure:"populator"`
	Monitors       Monitors       `mapstructure:"monitors"`
	Registry       Registry       `mapstructure:"registry"`
	CircuitBreaker CircuitBreaker `mapstructure:"circuit_breaker"`
	API            API            `mapstructure:"api"`
	Observability  Observability  `mapstructure:"observability"`
	Datalake       Datalake       `mapstructure:"datalake"`
	Audit          Audit          `mapstructure:"audit"`
}

func defaultConfig() *Config {
	return &Config{
		Store: Store{
			DatabaseURL:  "postgres://localhost:5432/jobcoordinator?sslmode=disable",
			MaxOpenConns: 20,
			MaxIdleConns: 5,
			CallTimeout:  5 * time.Second,
		},
		Populator: Populator{
			IntervalMS:     600_000,
			BatchSize:      5,
			PendingCeiling: 10_000,
		},
		Monitors: Monitors{
			ClaimedJobTimeout:       300 * time.Second,
			ProcessingJobTimeout:    600 * time.Second,
			ClaimedCheckInterval:    60 * time.Second,
			ProcessingCheckInterval: 60 * time.Second,
			BotDownThreshold:        120 * time.Second,
			BotRetention:            7 * 24 * time.Hour,
			CleanupInterval:         6 * time.Hour,
			MaxRecoveriesPerCycle:   100,
			HistorySize:             10,
		},
		Registry: Registry{
			Dir:          "",
			IncludeGlobs: []string{"**/*"},
			ExcludeGlobs: []string{"**/*.tmp", "**/.DS_Store"},
		},
		CircuitBreaker: CircuitBreaker{
			FailureThreshold: 0.5,
			Window:           1 * time.Minute,
			CooldownPeriod:   30 * time.Second,
			MinSamples:       5,
		},
		API: API{
			HTTPPort:        8080,
			AdminToken:      "",
			RequestTimeout:  30 * time.Second,
			RateLimitPerSec: 50,
			RateLimitBurst:  100,
		},
		Observability: Observability{
			LogLevel:    "info",
			LogEncoding: "json",
			ServiceName: "jobcoordinator",
			MetricsPort: 9090,
		},
		Datalake: Datalake{
			Dir: "./datalake",
		},
		Audit: Audit{
			Dir: "./audit",
		},
	}
}

// Load reads configuration from an optional YAML file plus environment
// overrides. Every env var maps onto a dotted viper key via
// SetEnvKeyReplacer, e.g. HTTP_PORT -> api.http_port is NOT automatic --
// we bind the exact spec names explicitly below so operators can set them
// directly without knowing the internal key layout.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := defaultConfig()
	v.SetDefault("store.database_url", def.Store.DatabaseURL)
	v.SetDefault("store.max_open_conns", def.Store.MaxOpenConns)
	v.SetDefault("store.max_idle_conns", def.Store.MaxIdleConns)
	v.SetDefault("store.call_timeout", def.Store.CallTimeout)

	v.SetDefault("populator.interval_ms", def.Populator.IntervalMS)
	v.SetDefault("populator.batch_size", def.Populator.BatchSize)
	v.SetDefault("populator.pending_ceiling", def.Populator.PendingCeiling)

	v.SetDefault("monitors.claimed_job_timeout", def.Monitors.ClaimedJobTimeout)
	v.SetDefault("monitors.processing_job_timeout", def.Monitors.ProcessingJobTimeout)
	v.SetDefault("monitors.claimed_check_interval", def.Monitors.ClaimedCheckInterval)
	v.SetDefault("monitors.processing_check_interval", def.Monitors.ProcessingCheckInterval)
	v.SetDefault("monitors.bot_down_threshold", def.Monitors.BotDownThreshold)
	v.SetDefault("monitors.bot_retention", def.Monitors.BotRetention)
	v.SetDefault("monitors.cleanup_interval", def.Monitors.CleanupInterval)
	v.SetDefault("monitors.max_recoveries_per_cycle", def.Monitors.MaxRecoveriesPerCycle)
	v.SetDefault("monitors.history_size", def.Monitors.HistorySize)

	v.SetDefault("registry.dir", def.Registry.Dir)
	v.SetDefault("registry.include_globs", def.Registry.IncludeGlobs)
	v.SetDefault("registry.exclude_globs", def.Registry.ExcludeGlobs)

	v.SetDefault("circuit_breaker.failure_threshold", def.CircuitBreaker.FailureThreshold)
	v.SetDefault("circuit_breaker.window", def.CircuitBreaker.Window)
	v.SetDefault("circuit_breaker.cooldown_period", def.CircuitBreaker.CooldownPeriod)
	v.SetDefault("circuit_breaker.min_samples", def.CircuitBreaker.MinSamples)

	v.SetDefault("api.http_port", def.API.HTTPPort)
	v.SetDefault("api.admin_token", def.API.AdminToken)
	v.SetDefault("api.request_timeout", def.API.RequestTimeout)
	v.SetDefault("api.rate_limit_per_sec", def.API.RateLimitPerSec)
	v.SetDefault("api.rate_limit_burst", def.API.RateLimitBurst)

	v.SetDefault("observability.log_level", def.Observability.LogLevel)
	v.SetDefault("observability.log_encoding", def.Observability.LogEncoding)
	v.SetDefault("observability.service_name", def.Observability.ServiceName)
	v.SetDefault("observability.metrics_port", def.Observability.MetricsPort)

	v.SetDefault("datalake.dir", def.Datalake.Dir)

	v.SetDefault("audit.dir", def.Audit.Dir)

	// These are the flat, ops-facing env var names; bind them directly
	// onto their dotted keys so operators don't need to know the layout.
	bindings := map[string]string{
		"POPULATE_INTERVAL_MS":           "populator.interval_ms",
		"BATCH_SIZE":                     "populator.batch_size",
		"CLAIMED_JOB_TIMEOUT_SECONDS":    "monitors.claimed_job_timeout_seconds_raw",
		"PROCESSING_JOB_TIMEOUT_SECONDS": "monitors.processing_job_timeout_seconds_raw",
		"BOT_DOWN_THRESHOLD_SECONDS":     "monitors.bot_down_threshold_seconds_raw",
		"BOT_RETENTION_DAYS":             "monitors.bot_retention_days_raw",
		"CLEANUP_INTERVAL_HOURS":         "monitors.cleanup_interval_hours_raw",
		"ADMIN_TOKEN":                    "api.admin_token",
		"DATABASE_URL":                   "store.database_url",
		"DATALAKE_DIR":                   "datalake.dir",
		"AUDIT_DIR":                      "audit.dir",
		"HTTP_PORT":                      "api.http_port",
		"LOG_ENCODING":                   "observability.log_encoding",
		"SERVICE_NAME":                   "observability.service_name",
	}
	for env, key := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if _, err := os.Stat(path); err == nil {
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// The *_raw env vars carry bare integers (seconds/days/hours); convert
	// them onto the typed duration fields.
	if s := v.GetInt("monitors.claimed_job_timeout_seconds_raw"); s > 0 {
		cfg.Monitors.ClaimedJobTimeout = time.Duration(s) * time.Second
	}
	if s := v.GetInt("monitors.processing_job_timeout_seconds_raw"); s > 0 {
		cfg.Monitors.ProcessingJobTimeout = time.Duration(s) * time.Second
	}
	if s := v.GetInt("monitors.bot_down_threshold_seconds_raw"); s > 0 {
		cfg.Monitors.BotDownThreshold = time.Duration(s) * time.Second
	}
	if d := v.GetInt("monitors.bot_retention_days_raw"); d > 0 {
		cfg.Monitors.BotRetention = time.Duration(d) * 24 * time.Hour
	}
	if h := v.GetInt("monitors.cleanup_interval_hours_raw"); h > 0 {
		cfg.Monitors.CleanupInterval = time.Duration(h) * time.Hour
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks config constraints and returns an error on invalid settings.
func Validate(cfg *Config) error {
	if cfg.Store.DatabaseURL == "" {
		return fmt.Errorf("store.database_url must be set")
	}
	if cfg.Store.MaxOpenConns < 1 {
		return fmt.Errorf("store.max_open_conns must be >= 1")
	}
	if cfg.Populator.BatchSize < 1 {
		return fmt.Errorf("populator.batch_size must be >= 1")
	}
	if cfg.Populator.PendingCeiling < 1 {
		return fmt.Errorf("populator.pending_ceiling must be >= 1")
	}
	if cfg.Monitors.ClaimedJobTimeout <= 0 || cfg.Monitors.ProcessingJobTimeout <= 0 {
		return fmt.Errorf("monitors.claimed_job_timeout and processing_job_timeout must be > 0")
	}
	if cfg.API.HTTPPort <= 0 || cfg.API.HTTPPort > 65535 {
		return fmt.Errorf("api.http_port must be 1..65535")
	}
	if cfg.Observability.MetricsPort <= 0 || cfg.Observability.MetricsPort > 65535 {
		return fmt.Errorf("observability.metrics_port must be 1..65535")
	}
	if cfg.Observability.LogEncoding != "json" && cfg.Observability.LogEncoding != "console" {
		return fmt.Errorf("observability.log_encoding must be \"json\" or \"console\"")
	}
	if cfg.Observability.ServiceName == "" {
		return fmt.Errorf("observability.service_name must be set")
	}
	if cfg.Datalake.Dir == "" {
		return fmt.Errorf("datalake.dir must be set")
	}
	if cfg.Audit.Dir == "" {
		return fmt.Errorf("audit.dir must be set")
	}
	return nil
}
