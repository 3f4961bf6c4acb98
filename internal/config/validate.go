package config

import (
	"fmt"
	"strings"

	"github.com/liamcoop/recon/internal/logger"
)

// FieldError is a validation failure for one dotted configuration path.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError collects every FieldError found by Validate.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return "configuration validation failed: " + e.Errors[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d errors:", len(e.Errors))
	for _, fe := range e.Errors {
		sb.WriteString("\n  - ")
		sb.WriteString(fe.Error())
	}
	return sb.String()
}

// Validate checks cfg and returns a *ValidationError listing every problem.
func Validate(cfg *Config) error {
	var errs []FieldError
	add := func(field, format string, args ...any) {
		errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if cfg.Server.Address == "" {
		add("server.address", "must not be empty")
	}
	if cfg.Server.RequestTimeout < 0 {
		add("server.request_timeout", "must not be negative")
	}
	if cfg.Engine.Workers < 0 {
		add("engine.workers", "must not be negative, got %d", cfg.Engine.Workers)
	}
	if cfg.Engine.CacheTTL < 0 {
		add("engine.cache_ttl", "must not be negative")
	}
	if cfg.Catalog.Watch && cfg.Catalog.Dir == "" {
		add("catalog.watch", "requires catalog.dir")
	}

	switch cfg.Audit.Backend {
	case "memory":
	case "sqlite":
		if cfg.Audit.SQLitePath == "" {
			add("audit.sqlite_path", "required for the sqlite backend")
		}
	default:
		add("audit.backend", "%q must be memory or sqlite", cfg.Audit.Backend)
	}
	if cfg.Audit.Buffer < 1 {
		add("audit.buffer", "must be positive, got %d", cfg.Audit.Buffer)
	}

	if _, err := logger.ParseLevel(cfg.Logging.Level); err != nil {
		add("logging.level", "%v", err)
	}
	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		add("metrics.path", "%q must start with /", cfg.Metrics.Path)
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// LoggerOptions maps the logging section onto logger.Options.
func (c *Config) LoggerOptions() logger.Options {
	return logger.Options{
		Level:           c.Logging.Level,
		ErrorSampleRate: c.Logging.ErrorSampleRate,
		OTELEnabled:     c.Logging.OTELEnabled,
		ServiceName:     c.Logging.ServiceName,
	}
}
