package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML file at path, applies defaults and environment
// overrides, then validates. An empty path starts from Default.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
		ApplyDefaults(cfg)
	}

	applyEnvOverrides(cfg, os.Getenv)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies RECON_SECTION_FIELD variables. The unprefixed
// DATABASE_URL and PORT are honoured when their RECON_ forms are unset.
func applyEnvOverrides(cfg *Config, getenv func(string) string) {
	if val := getenv("PORT"); val != "" {
		cfg.Server.Address = ":" + val
	}
	if val := getenv("DATABASE_URL"); val != "" {
		cfg.Database.URL = val
	}

	str := func(key string, dst *string) {
		if val := getenv(key); val != "" {
			*dst = val
		}
	}
	num := func(key string, dst *int) {
		if i, err := strconv.Atoi(getenv(key)); err == nil {
			*dst = i
		}
	}
	flag := func(key string, dst *bool) {
		if b, err := strconv.ParseBool(getenv(key)); err == nil {
			*dst = b
		}
	}
	dur := func(key string, dst *time.Duration) {
		if d, err := time.ParseDuration(getenv(key)); err == nil {
			*dst = d
		}
	}

	str("RECON_SERVER_ADDRESS", &cfg.Server.Address)
	dur("RECON_SERVER_REQUEST_TIMEOUT", &cfg.Server.RequestTimeout)
	dur("RECON_SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	str("RECON_DATABASE_URL", &cfg.Database.URL)
	num("RECON_DATABASE_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns)

	num("RECON_ENGINE_WORKERS", &cfg.Engine.Workers)
	dur("RECON_ENGINE_CACHE_TTL", &cfg.Engine.CacheTTL)

	str("RECON_CATALOG_DIR", &cfg.Catalog.Dir)
	flag("RECON_CATALOG_WATCH", &cfg.Catalog.Watch)

	str("RECON_AUDIT_BACKEND", &cfg.Audit.Backend)
	str("RECON_AUDIT_SQLITE_PATH", &cfg.Audit.SQLitePath)
	num("RECON_AUDIT_BUFFER", &cfg.Audit.Buffer)

	flag("RECON_CONNECTORS_SCHEDULER", &cfg.Connectors.Scheduler)

	str("LOG_LEVEL", &cfg.Logging.Level)
	str("RECON_LOG_LEVEL", &cfg.Logging.Level)
	num("ERROR_SAMPLE_RATE", &cfg.Logging.ErrorSampleRate)
	flag("OTEL_ENABLED", &cfg.Logging.OTELEnabled)
	str("OTEL_SERVICE_NAME", &cfg.Logging.ServiceName)

	flag("RECON_METRICS_ENABLED", &cfg.Metrics.Enabled)
	flag("RECON_SEED_DEMO", &cfg.Seed.Demo)
}
