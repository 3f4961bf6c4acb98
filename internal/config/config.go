// Package config loads the service configuration from an optional YAML file
// with RECON_* environment overrides.
package config

import "time"

// Config is the complete service configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Engine     EngineConfig     `yaml:"engine"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Audit      AuditConfig      `yaml:"audit"`
	Connectors ConnectorsConfig `yaml:"connectors"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Seed       SeedConfig       `yaml:"seed"`
}

type ServerConfig struct {
	Address         string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// SlowRequest is the latency above which a request is counted as slow.
	SlowRequest time.Duration `yaml:"slow_request"`
}

// DatabaseConfig selects the rule store. An empty URL keeps rules in memory.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type EngineConfig struct {
	// Workers bounds concurrent record evaluations per run. 0 means GOMAXPROCS.
	Workers  int           `yaml:"workers"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// CatalogConfig points at a directory of YAML rule and template files.
type CatalogConfig struct {
	Dir      string        `yaml:"dir"`
	Watch    bool          `yaml:"watch"`
	Debounce time.Duration `yaml:"debounce"`
}

type AuditConfig struct {
	Backend      string        `yaml:"backend"` // memory or sqlite
	SQLitePath   string        `yaml:"sqlite_path"`
	Buffer       int           `yaml:"buffer"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type ConnectorsConfig struct {
	Scheduler bool `yaml:"scheduler"`
}

type LoggingConfig struct {
	Level           string `yaml:"level"`
	ErrorSampleRate int    `yaml:"error_sample_rate"`
	OTELEnabled     bool   `yaml:"otel_enabled"`
	ServiceName     string `yaml:"service_name"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// SeedConfig controls the demo data loaded at startup.
type SeedConfig struct {
	Demo bool `yaml:"demo"`
}
