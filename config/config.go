/*
Package config loads the server configuration.

PRECEDENCE (lowest to highest):
  1. Built-in defaults (Default)
  2. YAML file (-config flag or WORKLOAD_CONFIG)
  3. .env file in the working directory, if present
  4. WORKLOAD_* environment variables
  5. Command-line flags, applied by cmd/server after Load

ENVIRONMENT:
  WORKLOAD_PORT                 server.port
  WORKLOAD_DB                   database.path
  WORKLOAD_SCHEDULER_ENABLED    scheduler.enabled (true/false)
  WORKLOAD_SCHEDULER_INTERVAL   scheduler.interval (Go duration, e.g. 6m)
  WORKLOAD_CHARGE_POLICY        charge.policy (hours/weights)
  WORKLOAD_REQUIRE_CAPACITY     charge.require_capacity (true/false)
  WORKLOAD_JWT_SECRET           auth.secret
  WORKLOAD_TOKEN_TTL            auth.token_ttl (Go duration)
  WORKLOAD_SCORING_ENDPOINT     scoring.endpoint (empty: heuristic only)
  WORKLOAD_SCORING_TIMEOUT      scoring.timeout (Go duration)
  WORKLOAD_LOG_LEVEL            log.level
  WORKLOAD_LOG_FORMAT           log.format
  WORKLOAD_LOG_FILE             log.file

EXAMPLE (workload.yaml):
  server:
    port: 8080
  database:
    path: ./data/workload.db
  scheduler:
    enabled: true
    interval: 6m
  charge:
    policy: weights
    weights: {light: 15, medium: 40, heavy: 60}
  auth:
    secret: change-me
    token_ttl: 6h
  log:
    level: debug
    format: json
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/warp/workload-engine/factory"
	"github.com/warp/workload-engine/logging"
	"gopkg.in/yaml.v3"
)

const envPrefix = "WORKLOAD_"

type Config struct {
	Server    ServerConfig               `yaml:"server"`
	Database  DatabaseConfig             `yaml:"database"`
	Scheduler SchedulerConfig            `yaml:"scheduler"`
	Charge    factory.ChargePolicyConfig `yaml:"charge"`
	Auth      AuthConfig                 `yaml:"auth"`
	Scoring   ScoringConfig              `yaml:"scoring"`
	Log       logging.Config             `yaml:"log"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type SchedulerConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

type AuthConfig struct {
	Secret   string        `yaml:"secret"`
	TokenTTL time.Duration `yaml:"token_ttl"`
}

// ScoringConfig selects the resource scorer. An empty endpoint keeps the
// built-in heuristic.
type ScoringConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Database:  DatabaseConfig{Path: "workload.db"},
		Scheduler: SchedulerConfig{Enabled: true, Interval: 6 * time.Minute},
		Charge:    factory.ChargePolicyConfig{Policy: "hours"},
		Auth:      AuthConfig{Secret: "dev-secret-change-me", TokenTTL: 6 * time.Hour},
		Scoring:   ScoringConfig{Timeout: 3 * time.Second},
		Log:       logging.DefaultConfig(),
	}
}

// Load builds the configuration from path (may be empty), the .env file and
// the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("config: load .env: %w", err)
	}

	if path == "" {
		path = os.Getenv(envPrefix + "CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := Parse(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Parse decodes YAML over cfg, keeping values the document does not set.
func Parse(data []byte, cfg *Config) error {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("decode yaml: %w", err)
	}
	return nil
}

// Validate rejects values the server cannot run with.
func (c Config) Validate() error {
	switch {
	case c.Server.Port <= 0 || c.Server.Port > 65535:
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	case strings.TrimSpace(c.Database.Path) == "":
		return fmt.Errorf("config: database.path is required")
	case c.Scheduler.Enabled && c.Scheduler.Interval <= 0:
		return fmt.Errorf("config: scheduler.interval must be positive")
	case strings.TrimSpace(c.Auth.Secret) == "":
		return fmt.Errorf("config: auth.secret is required")
	case c.Auth.TokenTTL <= 0:
		return fmt.Errorf("config: auth.token_ttl must be positive")
	}
	if _, err := factory.NewChargePolicy(c.Charge); err != nil {
		return fmt.Errorf("config: charge: %w", err)
	}
	return nil
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(envPrefix + key); ok {
			*dst = v
		}
	}
	var firstErr error
	fail := func(key string, err error) {
		if firstErr == nil {
			firstErr = fmt.Errorf("config: %s%s: %w", envPrefix, key, err)
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(envPrefix + key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				fail(key, err)
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(envPrefix + key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				fail(key, err)
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(envPrefix + key); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				fail(key, err)
				return
			}
			*dst = d
		}
	}

	integer("PORT", &cfg.Server.Port)
	str("DB", &cfg.Database.Path)
	boolean("SCHEDULER_ENABLED", &cfg.Scheduler.Enabled)
	duration("SCHEDULER_INTERVAL", &cfg.Scheduler.Interval)
	str("CHARGE_POLICY", &cfg.Charge.Policy)
	boolean("REQUIRE_CAPACITY", &cfg.Charge.RequireCapacity)
	str("JWT_SECRET", &cfg.Auth.Secret)
	duration("TOKEN_TTL", &cfg.Auth.TokenTTL)
	str("SCORING_ENDPOINT", &cfg.Scoring.Endpoint)
	duration("SCORING_TIMEOUT", &cfg.Scoring.Timeout)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	str("LOG_FILE", &cfg.Log.File)
	return firstErr
}
