package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendHTTP       = "http"
	BackendPostgres   = "postgres"
	BackendClickHouse = "clickhouse"
)

// Config captures the settings required to boot the utilization service.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Store      StoreConfig      `yaml:"store"`
	Clients    ClientsConfig    `yaml:"clients"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Engine     EngineConfig     `yaml:"engine"`
	Logging    LoggingConfig    `yaml:"logging"`
	Cache      CacheConfig      `yaml:"cache"`
	Sentry     SentryConfig     `yaml:"sentry"`
}

// ServerConfig controls gRPC listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// StoreConfig selects where events and reference data are read from. Directory
// covers both machines and alarms.
type StoreConfig struct {
	Events    string `yaml:"events"`
	Directory string `yaml:"directory"`
}

// ClientsConfig groups HTTP integrations.
type ClientsConfig struct {
	Core CoreClientConfig `yaml:"core"`
}

// CoreClientConfig configures access to the mirador-core machine APIs.
type CoreClientConfig struct {
	BaseURL           string        `yaml:"baseURL"`
	StatesPath        string        `yaml:"statesPath"`
	MachineStatesPath string        `yaml:"machineStatesPath"`
	MachinesPath      string        `yaml:"machinesPath"`
	AlarmsPath        string        `yaml:"alarmsPath"`
	Timeout           time.Duration `yaml:"timeout"`
}

// PostgresConfig configures the PostgreSQL pool.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"maxConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
	ConnectTimeout  time.Duration `yaml:"connectTimeout"`
}

// ClickHouseConfig configures the ClickHouse event store.
type ClickHouseConfig struct {
	Addr        string        `yaml:"addr"`
	Database    string        `yaml:"database"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	Secure      bool          `yaml:"secure"`
	DialTimeout time.Duration `yaml:"dialTimeout"`
}

// EngineConfig tunes the computation itself.
type EngineConfig struct {
	ReportingOffset time.Duration `yaml:"reportingOffset"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	StatesPath      string        `yaml:"statesPath"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// CacheConfig controls in-process caching of the machine directory.
type CacheConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MachinesTTL time.Duration `yaml:"machinesTTL"`
}

// SentryConfig enables error reporting when DSN is set.
type SentryConfig struct {
	DSN         string  `yaml:"dsn"`
	Environment string  `yaml:"environment"`
	SampleRate  float64 `yaml:"sampleRate"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("MIRADOR_UTIL_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects combinations the service cannot boot with.
func (c *Config) Validate() error {
	switch c.Store.Events {
	case BackendHTTP, BackendPostgres, BackendClickHouse:
	default:
		return fmt.Errorf("unsupported events store %q", c.Store.Events)
	}
	switch c.Store.Directory {
	case BackendHTTP, BackendPostgres:
	default:
		return fmt.Errorf("unsupported directory store %q", c.Store.Directory)
	}
	if c.uses(BackendHTTP) && c.Clients.Core.BaseURL == "" {
		return errors.New("clients.core.baseURL is required for the http store")
	}
	if c.uses(BackendPostgres) && c.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required for the postgres store")
	}
	if c.Store.Events == BackendClickHouse && c.ClickHouse.Addr == "" {
		return errors.New("clickhouse.addr is required for the clickhouse store")
	}
	if c.Engine.ReportingOffset < 0 || c.Engine.ReportingOffset >= 24*time.Hour {
		return fmt.Errorf("engine.reportingOffset %s out of range", c.Engine.ReportingOffset)
	}
	if c.Engine.RequestTimeout <= 0 {
		return errors.New("engine.requestTimeout must be positive")
	}
	return nil
}

func (c *Config) uses(backend string) bool {
	return c.Store.Events == backend || c.Store.Directory == backend
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50051",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Store: StoreConfig{Events: BackendHTTP, Directory: BackendHTTP},
		Clients: ClientsConfig{
			Core: CoreClientConfig{
				BaseURL:           "http://localhost:8080",
				StatesPath:        "/api/v1/machines/states/search",
				MachineStatesPath: "/api/v1/machines/states/by-machine",
				MachinesPath:      "/api/v1/machines",
				AlarmsPath:        "/api/v1/machines/alarms/search",
				Timeout:           5 * time.Second,
			},
		},
		Postgres: PostgresConfig{
			MaxConns:        10,
			ConnMaxLifetime: time.Hour,
			ConnectTimeout:  5 * time.Second,
		},
		ClickHouse: ClickHouseConfig{Database: "default", DialTimeout: 5 * time.Second},
		Engine: EngineConfig{
			ReportingOffset: 4 * time.Hour,
			RequestTimeout:  30 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Cache:   CacheConfig{Enabled: false, MachinesTTL: 5 * time.Minute},
		Sentry:  SentryConfig{Environment: "development", SampleRate: 1.0},
	}
}

func applyEnvOverrides(cfg *Config) {
	envString("MIRADOR_UTIL_SERVER_ADDRESS", &cfg.Server.Address)
	envString("MIRADOR_UTIL_METRICS_ADDRESS", &cfg.Server.MetricsAddress)
	envDuration("MIRADOR_UTIL_GRACEFUL_TIMEOUT", &cfg.Server.GracefulTimeout)

	envString("MIRADOR_UTIL_EVENTS_STORE", &cfg.Store.Events)
	envString("MIRADOR_UTIL_DIRECTORY_STORE", &cfg.Store.Directory)

	envString("MIRADOR_CORE_BASE_URL", &cfg.Clients.Core.BaseURL)
	envString("MIRADOR_CORE_STATES_PATH", &cfg.Clients.Core.StatesPath)
	envString("MIRADOR_CORE_MACHINE_STATES_PATH", &cfg.Clients.Core.MachineStatesPath)
	envString("MIRADOR_CORE_MACHINES_PATH", &cfg.Clients.Core.MachinesPath)
	envString("MIRADOR_CORE_ALARMS_PATH", &cfg.Clients.Core.AlarmsPath)
	envDuration("MIRADOR_CORE_TIMEOUT", &cfg.Clients.Core.Timeout)

	envString("MIRADOR_UTIL_POSTGRES_DSN", &cfg.Postgres.DSN)
	if v := os.Getenv("MIRADOR_UTIL_POSTGRES_MAX_CONNS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			cfg.Postgres.MaxConns = int32(n)
		}
	}

	envString("MIRADOR_UTIL_CLICKHOUSE_ADDR", &cfg.ClickHouse.Addr)
	envString("MIRADOR_UTIL_CLICKHOUSE_DATABASE", &cfg.ClickHouse.Database)
	envString("MIRADOR_UTIL_CLICKHOUSE_USERNAME", &cfg.ClickHouse.Username)
	envString("MIRADOR_UTIL_CLICKHOUSE_PASSWORD", &cfg.ClickHouse.Password)
	envBool("MIRADOR_UTIL_CLICKHOUSE_SECURE", &cfg.ClickHouse.Secure)

	envDuration("MIRADOR_UTIL_REPORTING_OFFSET", &cfg.Engine.ReportingOffset)
	envDuration("MIRADOR_UTIL_REQUEST_TIMEOUT", &cfg.Engine.RequestTimeout)
	envString("MIRADOR_UTIL_STATES_PATH", &cfg.Engine.StatesPath)

	envString("MIRADOR_UTIL_LOG_LEVEL", &cfg.Logging.Level)
	if v := os.Getenv("MIRADOR_UTIL_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}

	envBool("MIRADOR_UTIL_CACHE_ENABLED", &cfg.Cache.Enabled)
	envDuration("MIRADOR_UTIL_CACHE_MACHINES_TTL", &cfg.Cache.MachinesTTL)

	envString("SENTRY_DSN", &cfg.Sentry.DSN)
	envString("MIRADOR_UTIL_SENTRY_DSN", &cfg.Sentry.DSN)
	envString("MIRADOR_UTIL_SENTRY_ENVIRONMENT", &cfg.Sentry.Environment)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		*dst = strings.EqualFold(v, "true") || v == "1"
	}
}
