package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

type Level = slog.Level

const (
	LevelTrace   = slog.Level(-8)
	LevelDebug   = slog.LevelDebug
	LevelInfo    = slog.LevelInfo
	LevelWarning = slog.LevelWarn
	LevelError   = slog.LevelError
	LevelFatal   = slog.Level(12)
)

// Options configures the process logger.
type Options struct {
	Level string
	// ErrorSampleRate logs 1 of every N warnings and errors. Values <= 1
	// log everything.
	ErrorSampleRate int
	OTELEnabled     bool
	ServiceName     string
	// Output defaults to stdout. Ignored when OTEL is enabled.
	Output io.Writer
}

// OptionsFromEnv reads LOG_LEVEL, ERROR_SAMPLE_RATE, OTEL_ENABLED and
// OTEL_SERVICE_NAME.
func OptionsFromEnv() Options {
	opts := Options{
		Level:           os.Getenv("LOG_LEVEL"),
		ErrorSampleRate: 1,
		OTELEnabled:     strings.EqualFold(os.Getenv("OTEL_ENABLED"), "true"),
		ServiceName:     os.Getenv("OTEL_SERVICE_NAME"),
	}
	if rate, err := strconv.Atoi(os.Getenv("ERROR_SAMPLE_RATE")); err == nil && rate > 0 {
		opts.ErrorSampleRate = rate
	}
	return opts
}

var (
	programLevel = new(slog.LevelVar)
	shutdownFunc func(context.Context) error
)

var sampleRate atomic.Int32

// Logger is the process logger. It writes JSON to stdout until Setup runs.
var Logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: programLevel}))

// Counters are incremented whether or not the log line is sampled, so the
// metrics endpoint sees every occurrence.
var (
	TotalErrors       atomic.Int64
	TotalWarnings     atomic.Int64
	Total5xxErrors    atomic.Int64
	Total4xxErrors    atomic.Int64
	Total404Errors    atomic.Int64
	SlowRequests      atomic.Int64
	RunFailures       atomic.Int64
	AdvisoryMismatch  atomic.Int64
	DroppedAuditEvent atomic.Int64
)

func init() {
	sampleRate.Store(1)
}

// Setup installs the process logger and makes it the slog default.
func Setup(ctx context.Context, opts Options) error {
	level := LevelInfo
	if opts.Level != "" {
		parsed, err := ParseLevel(opts.Level)
		if err != nil {
			return err
		}
		level = parsed
	}
	programLevel.Set(level)

	if opts.ErrorSampleRate < 1 {
		opts.ErrorSampleRate = 1
	}
	sampleRate.Store(int32(opts.ErrorSampleRate))

	if opts.OTELEnabled {
		name := opts.ServiceName
		if name == "" {
			name = "recon"
		}
		err := setupOTEL(ctx, name)
		if err == nil {
			return nil
		}
		fmt.Fprintf(os.Stderr, "OTEL logging unavailable, falling back to JSON: %v\n", err)
	}

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	install(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: programLevel}))
	return nil
}

func install(h slog.Handler) {
	Logger = slog.New(h)
	slog.SetDefault(Logger)
}

func setupOTEL(ctx context.Context, serviceName string) error {
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := otlploggrpc.New(ctx)
	if err != nil {
		return fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)

	install(&levelHandler{
		level:   programLevel,
		handler: otelslog.NewHandler(serviceName, otelslog.WithLoggerProvider(provider)),
	})
	shutdownFunc = provider.Shutdown
	return nil
}

// levelHandler applies the program level to a handler that has none.
type levelHandler struct {
	level   slog.Leveler
	handler slog.Handler
}

func (h *levelHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *levelHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.handler.Handle(ctx, r)
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithAttrs(attrs)}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithGroup(name)}
}

// Shutdown flushes the OTEL pipeline, if one is installed.
func Shutdown(ctx context.Context) error {
	if shutdownFunc != nil {
		return shutdownFunc(ctx)
	}
	return nil
}

func SetLevel(level slog.Level) { programLevel.Set(level) }

func GetLevel() slog.Level { return programLevel.Level() }

// ParseLevel converts a level name such as "debug" or "WARNING".
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace, nil
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarning, nil
	case "ERROR":
		return LevelError, nil
	case "FATAL":
		return LevelFatal, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s", s)
	}
}

func shouldSample() bool {
	rate := sampleRate.Load()
	if rate <= 1 {
		return true
	}
	return rand.Intn(int(rate)) == 0
}

// Component returns a child logger tagged with the component name.
func Component(name string) *slog.Logger {
	return Logger.With("component", name)
}

func Debug(msg string, args ...any) { Logger.Debug(msg, args...) }

func Info(msg string, args ...any) { Logger.Info(msg, args...) }

// Warn is sampled; TotalWarnings is always incremented.
func Warn(msg string, args ...any) {
	TotalWarnings.Add(1)
	if shouldSample() {
		Logger.Warn(msg, args...)
	}
}

// Error is sampled; TotalErrors is always incremented.
func Error(msg string, args ...any) {
	TotalErrors.Add(1)
	if shouldSample() {
		Logger.Error(msg, args...)
	}
}

// Fatal logs and exits after flushing OTEL.
func Fatal(msg string, args ...any) {
	Logger.Log(context.Background(), LevelFatal, msg, args...)
	_ = Shutdown(context.Background())
	os.Exit(1)
}

// HTTPStatus counts a response status.
func HTTPStatus(status int) {
	switch {
	case status >= 500:
		Total5xxErrors.Add(1)
		TotalErrors.Add(1)
	case status >= 400:
		Total4xxErrors.Add(1)
		TotalWarnings.Add(1)
		if status == 404 {
			Total404Errors.Add(1)
		}
	}
}

func WarnSlowRequest() {
	SlowRequests.Add(1)
	TotalWarnings.Add(1)
}

// Snapshot returns the current counter values keyed by name.
func Snapshot() map[string]int64 {
	return map[string]int64{
		"errors":               TotalErrors.Load(),
		"warnings":             TotalWarnings.Load(),
		"http_5xx":             Total5xxErrors.Load(),
		"http_4xx":             Total4xxErrors.Load(),
		"http_404":             Total404Errors.Load(),
		"slow_requests":        SlowRequests.Load(),
		"run_failures":         RunFailures.Load(),
		"advisory_mismatches":  AdvisoryMismatch.Load(),
		"dropped_audit_events": DroppedAuditEvent.Load(),
	}
}
