package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/liamcoop/recon/internal/config"
	"github.com/liamcoop/recon/internal/logger"
	"github.com/liamcoop/recon/rules"
)

func main() {
	configPath := flag.String("config", os.Getenv("RECON_CONFIG"), "Path to a YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := logger.Setup(ctx, cfg.LoggerOptions()); err != nil {
		logger.Fatal("failed to set up logging", "error", err)
	}

	if err := run(ctx, cfg); err != nil {
		logger.Fatal("server failed", "error", err)
	}
	logger.Info("server stopped")
	_ = logger.Shutdown(context.Background())
}

func run(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	}()

	server := NewServer(a.svc, ServerOptions{
		RequestTimeout: cfg.Server.RequestTimeout,
		SlowRequest:    cfg.Server.SlowRequest,
		MetricsPath:    cfg.Metrics.Path,
	})
	httpServer := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	if s := a.svc.Scheduler; s != nil {
		if err := s.Start(gctx); err != nil {
			return err
		}
		defer s.Stop()
	}

	if cfg.Catalog.Dir != "" && cfg.Catalog.Watch {
		watcher, err := rules.NewCatalogWatcher(cfg.Catalog.Dir, cfg.Catalog.Debounce)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return watcher.Watch(gctx, a.applyCatalog)
		})
	}

	g.Go(func() error {
		logger.Info("server starting", "address", cfg.Server.Address)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
