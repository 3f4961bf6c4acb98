package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/lib/pq"

	"github.com/liamcoop/recon/internal/access"
	"github.com/liamcoop/recon/internal/accounts"
	"github.com/liamcoop/recon/internal/audit"
	"github.com/liamcoop/recon/internal/config"
	"github.com/liamcoop/recon/internal/connectors"
	"github.com/liamcoop/recon/internal/dashboard"
	"github.com/liamcoop/recon/internal/exceptions"
	"github.com/liamcoop/recon/internal/metrics"
	"github.com/liamcoop/recon/internal/templates"
	"github.com/liamcoop/recon/rules"
)

// app owns every long-lived component of the server.
type app struct {
	cfg      *config.Config
	svc      Services
	db       *sql.DB
	recorder *audit.Recorder
	logger   *slog.Logger
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, logger: slog.Default().With("component", "app")}

	store, err := a.openRuleStore(ctx)
	if err != nil {
		return nil, err
	}

	auditStore, err := openAuditStore(cfg.Audit)
	if err != nil {
		a.closeDB()
		return nil, err
	}
	a.recorder = audit.NewRecorder(auditStore, audit.RecorderConfig{
		Buffer:       cfg.Audit.Buffer,
		WriteTimeout: cfg.Audit.WriteTimeout,
	})

	registry := connectors.NewRegistry()
	queue := exceptions.NewQueue(exceptions.NewInMemoryStore())
	dash := dashboard.NewService(queue, store, registry)

	opts := []rules.EngineOption{
		rules.WithWorkers(cfg.Engine.Workers),
		rules.WithCache(rules.NewInMemoryRulesCache(rules.CacheConfig{TTL: cfg.Engine.CacheTTL})),
		rules.WithObserver(queue),
		rules.WithObserver(dash),
		rules.WithObserver(a.recorder),
	}
	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector()
		opts = append(opts, rules.WithObserver(collector))
	}

	engine, err := rules.NewEngine(store, opts...)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to start rule engine: %w", err)
	}

	users := accounts.NewService(
		accounts.NewInMemoryUserRepository(),
		accounts.NewInMemoryInvitationRepository(),
		accounts.NewTokenIssuer(0),
	)

	a.svc = Services{
		Engine:     engine,
		Exceptions: queue,
		Templates:  templates.NewLibrary(engine),
		Connectors: registry,
		Dashboard:  dash,
		Accounts:   users,
		Gate:       access.NewGate(access.DefaultPolicy()),
		Audit:      auditStore,
		Metrics:    collector,
		StoreName:  "memory",
	}
	if a.db != nil {
		a.svc.StoreName = "postgres"
		a.svc.Ping = a.db.PingContext
	}
	if cfg.Connectors.Scheduler {
		a.svc.Scheduler = connectors.NewScheduler(registry)
	}

	if _, err := a.svc.Templates.Load(templates.Builtin()); err != nil {
		a.logger.Warn("some builtin templates were rejected", "error", err)
	}
	if cfg.Catalog.Dir != "" {
		catalog, err := rules.LoadCatalogDir(cfg.Catalog.Dir)
		if err != nil {
			a.Close()
			return nil, err
		}
		if err := a.applyCatalog(catalog); err != nil {
			a.Close()
			return nil, err
		}
	}
	if cfg.Seed.Demo {
		if err := a.seedDemo(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to seed demo data: %w", err)
		}
	}
	return a, nil
}

// openRuleStore connects to Postgres when a database URL is configured and
// falls back to memory otherwise.
func (a *app) openRuleStore(ctx context.Context) (rules.RuleStore, error) {
	dbCfg := a.cfg.Database
	if dbCfg.URL == "" {
		a.logger.Info("no database configured, keeping rules in memory")
		return rules.NewInMemoryRuleStore(), nil
	}

	db, err := sql.Open("postgres", dbCfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(dbCfg.MaxOpenConns)
	db.SetMaxIdleConns(dbCfg.MaxIdleConns)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	a.db = db
	return rules.NewPostgresRuleStore(db), nil
}

func openAuditStore(cfg config.AuditConfig) (audit.Store, error) {
	if cfg.Backend != "sqlite" {
		return audit.NewMemoryStore(), nil
	}
	if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create audit directory: %w", err)
		}
	}
	return audit.OpenSQLite(cfg.SQLitePath)
}

// applyCatalog imports catalog rules and templates. Existing rule versions
// are left alone.
func (a *app) applyCatalog(c *rules.Catalog) error {
	stats, err := a.svc.Engine.Import(c.Rules)
	if err != nil {
		return fmt.Errorf("failed to import catalog rules: %w", err)
	}
	loaded, terr := a.svc.Templates.Load(c.Templates)
	a.logger.Info("catalog applied",
		"rules_added", stats.Added,
		"rules_skipped", stats.Skipped,
		"rules_failed", stats.Failed,
		"templates", loaded,
	)
	if terr != nil {
		a.logger.Warn("some catalog templates were rejected", "error", terr)
	}
	return nil
}

func (a *app) seedDemo(ctx context.Context) error {
	if err := a.svc.Accounts.SeedDemo(); err != nil {
		return err
	}
	if _, err := a.svc.Engine.Import(demoRules()); err != nil {
		return err
	}
	if err := a.svc.Connectors.SeedDemo(ctx); err != nil {
		return err
	}
	if err := a.svc.Exceptions.SeedDemo(); err != nil {
		return err
	}
	a.svc.Dashboard.SeedDemo()
	a.logger.Info("demo data seeded")
	return nil
}

func (a *app) closeDB() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close database", "error", err)
		}
		a.db = nil
	}
}

// Close drains the audit recorder and releases the database.
func (a *app) Close() error {
	var errs []error
	if a.recorder != nil {
		errs = append(errs, a.recorder.Close())
		a.recorder = nil
	}
	a.closeDB()
	return errors.Join(errs...)
}
