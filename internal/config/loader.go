package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "runlens.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "RUNLENS_PORT")
	setString(&cfg.Server.CORSOrigin, "RUNLENS_CORS_ORIGIN")
	setFloat(&cfg.Server.IngestRPS, "RUNLENS_INGEST_RPS")
	setInt(&cfg.Server.IngestBurst, "RUNLENS_INGEST_BURST")
	setString(&cfg.Storage.Driver, "RUNLENS_STORAGE_DRIVER")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "RUNLENS_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "RUNLENS_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "RUNLENS_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "RUNLENS_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "RUNLENS_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setDuration(&cfg.Cache.SummaryTTL, "RUNLENS_CACHE_SUMMARY_TTL")
	setInt64(&cfg.Cache.MaxSizeMB, "RUNLENS_CACHE_SIZE_MB")
	setInt(&cfg.Hierarchy.MaxDepth, "RUNLENS_HIERARCHY_MAX_DEPTH")
	setInt(&cfg.Hierarchy.MaxNodes, "RUNLENS_HIERARCHY_MAX_NODES")
	setInt(&cfg.Bus.Buffer, "RUNLENS_BUS_BUFFER")
	setString(&cfg.Logging.Level, "RUNLENS_LOG_LEVEL")
	setString(&cfg.Logging.Service, "RUNLENS_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "RUNLENS_LOG_ASYNC")
	setBool(&cfg.OTel.Enabled, "RUNLENS_OTEL_ENABLED")
	setString(&cfg.OTel.Endpoint, "RUNLENS_OTEL_ENDPOINT")
}

// validate checks configuration invariants that would otherwise surface as
// confusing runtime failures.
func validate(cfg *Config) error {
	switch cfg.Storage.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("storage.driver must be postgres or memory, got %q", cfg.Storage.Driver)
	}
	if cfg.Storage.Driver == "postgres" && cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required with the postgres driver")
	}
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Hierarchy.MaxDepth <= 0 {
		return errors.New("hierarchy.max_depth must be positive")
	}
	if cfg.Hierarchy.MaxNodes <= 0 {
		return errors.New("hierarchy.max_nodes must be positive")
	}
	if cfg.Bus.Buffer <= 0 {
		return errors.New("bus.buffer must be positive")
	}
	if cfg.Server.IngestRPS > 0 && cfg.Server.IngestBurst <= 0 {
		return errors.New("server.ingest_burst must be positive when server.ingest_rps is set")
	}
	if cfg.OTel.Enabled && cfg.OTel.Endpoint == "" {
		return errors.New("otel.endpoint is required when otel is enabled")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
