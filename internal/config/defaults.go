package config

import "time"

const (
	DefaultAddress         = ":8080"
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultRequestTimeout  = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultSlowRequest     = 2 * time.Second

	DefaultMaxOpenConns = 10
	DefaultMaxIdleConns = 5

	DefaultCatalogDebounce = 200 * time.Millisecond

	DefaultAuditBackend      = "memory"
	DefaultAuditSQLitePath   = "data/audit.db"
	DefaultAuditBuffer       = 256
	DefaultAuditWriteTimeout = 5 * time.Second

	DefaultLogLevel    = "info"
	DefaultServiceName = "recon"
	DefaultMetricsPath = "/metrics"
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{
		Metrics: MetricsConfig{Enabled: true},
		Seed:    SeedConfig{Demo: true},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields. Booleans are left untouched.
func ApplyDefaults(cfg *Config) {
	s := &cfg.Server
	setDefault(&s.Address, DefaultAddress)
	setDefault(&s.ReadTimeout, DefaultReadTimeout)
	setDefault(&s.WriteTimeout, DefaultWriteTimeout)
	setDefault(&s.IdleTimeout, DefaultIdleTimeout)
	setDefault(&s.RequestTimeout, DefaultRequestTimeout)
	setDefault(&s.ShutdownTimeout, DefaultShutdownTimeout)
	setDefault(&s.SlowRequest, DefaultSlowRequest)

	setDefault(&cfg.Database.MaxOpenConns, DefaultMaxOpenConns)
	setDefault(&cfg.Database.MaxIdleConns, DefaultMaxIdleConns)

	setDefault(&cfg.Catalog.Debounce, DefaultCatalogDebounce)

	a := &cfg.Audit
	setDefault(&a.Backend, DefaultAuditBackend)
	setDefault(&a.SQLitePath, DefaultAuditSQLitePath)
	setDefault(&a.Buffer, DefaultAuditBuffer)
	setDefault(&a.WriteTimeout, DefaultAuditWriteTimeout)

	setDefault(&cfg.Logging.Level, DefaultLogLevel)
	setDefault(&cfg.Logging.ErrorSampleRate, 1)
	setDefault(&cfg.Logging.ServiceName, DefaultServiceName)
	setDefault(&cfg.Metrics.Path, DefaultMetricsPath)
}

func setDefault[T comparable](field *T, value T) {
	var zero T
	if *field == zero {
		*field = value
	}
}
