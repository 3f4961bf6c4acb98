// Package metrics exposes rule run and HTTP metrics in the Prometheus format.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/liamcoop/recon/internal/logger"
	"github.com/liamcoop/recon/rules"
)

const namespace = "recon"

// Collector owns a private registry so tests and multiple servers in one
// process do not collide on the global one.
type Collector struct {
	registry *prometheus.Registry

	runs             *prometheus.CounterVec
	records          *prometheus.CounterVec
	exceptions       *prometheus.CounterVec
	runDuration      prometheus.Histogram
	advisoryMismatch prometheus.Counter
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// NewCollector registers every metric on a fresh registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_runs_total",
			Help:      "Completed rule runs by rule and outcome.",
		}, []string{"rule_id", "outcome"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_evaluated_total",
			Help:      "Record pairs evaluated by result.",
		}, []string{"result"}),
		exceptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exceptions_total",
			Help:      "Failed records by exception type.",
		}, []string{"type"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rule_run_duration_seconds",
			Help:      "Wall time of a rule run.",
			Buckets:   []float64{0.001, 0.005, 0.025, 0.1, 0.5, 1, 5, 30},
		}),
		advisoryMismatch: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "advisory_mismatches_total",
			Help:      "Records where the advisory logic disagreed with the verdict.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status code.",
		}, []string{"method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}

	reg.MustRegister(
		c.runs, c.records, c.exceptions, c.runDuration, c.advisoryMismatch,
		c.httpRequests, c.httpDuration,
		collectors.NewGoCollector(),
	)
	for name, counter := range map[string]func() int64{
		"log_errors":           logger.TotalErrors.Load,
		"log_warnings":         logger.TotalWarnings.Load,
		"slow_requests":        logger.SlowRequests.Load,
		"dropped_audit_events": logger.DroppedAuditEvent.Load,
	} {
		load := counter
		reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name + "_total",
			Help:      "Process counter " + name + ".",
		}, func() float64 { return float64(load()) }))
	}
	return c
}

// RuleRunCompleted implements rules.RunObserver.
func (c *Collector) RuleRunCompleted(_ context.Context, rule *rules.RuleDefinition, result *rules.BatchRunResult) {
	outcome := "clean"
	if result.FailedRecords > 0 {
		outcome = "exceptions"
	}
	c.runs.WithLabelValues(rule.ID, outcome).Inc()
	c.records.WithLabelValues("passed").Add(float64(result.PassedRecords))
	c.records.WithLabelValues("failed").Add(float64(result.FailedRecords))
	c.runDuration.Observe(result.Duration.Seconds())

	for _, r := range result.Results {
		if !r.Passed {
			c.exceptions.WithLabelValues(string(r.ExceptionType)).Inc()
		}
		if r.AdvisoryMismatch {
			c.advisoryMismatch.Inc()
		}
	}
}

// Middleware records status and latency for every request.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		c.httpRequests.WithLabelValues(r.Method, strconv.Itoa(status)).Inc()
		c.httpDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	})
}

// Registry exposes the underlying registry for tests.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
