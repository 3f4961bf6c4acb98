package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/liamcoop/recon/internal/config"
	"github.com/liamcoop/recon/internal/logger"
)

func main() {
	var (
		configPath     string
		databaseURL    string
		migrationsPath string
		command        string
	)

	flag.StringVar(&configPath, "config", os.Getenv("RECON_CONFIG"), "Path to a YAML config file (optional)")
	flag.StringVar(&databaseURL, "database", "", "Database URL (overrides config and RECON_DATABASE_URL)")
	flag.StringVar(&migrationsPath, "path", "migrations", "Path to migrations directory")
	flag.StringVar(&command, "command", "up", "Migration command: up, down, version, force")
	flag.Parse()

	if databaseURL == "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			logger.Fatal("failed to load configuration", "error", err)
		}
		databaseURL = cfg.Database.URL
	}
	if databaseURL == "" {
		logger.Fatal("database URL is required: use -database, database.url in the config file, or RECON_DATABASE_URL")
	}

	if err := migrateDatabase(databaseURL, migrationsPath, command, flag.Args()); err != nil {
		logger.Fatal("migration failed", "command", command, "error", err)
	}
}

func migrateDatabase(databaseURL, migrationsPath, command string, args []string) error {
	logger.Info("connecting to rule store", "migrations", migrationsPath)

	m, err := migrate.New(fmt.Sprintf("file://%s", migrationsPath), databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	defer m.Close()

	switch command {
	case "up":
		err = m.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("rule store schema is up to date")
			return nil
		}
		if err != nil {
			return err
		}
		logger.Info("migrations applied")

	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
		logger.Info("migrations rolled back")

	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			return err
		}
		logger.Info("current schema version", "version", version, "dirty", dirty)

	case "force":
		if len(args) < 1 {
			return errors.New("force requires a version number: -command force <version>")
		}
		version, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version number %q: %w", args[0], err)
		}
		if err := m.Force(version); err != nil {
			return err
		}
		logger.Info("schema version forced", "version", version)

	default:
		return fmt.Errorf("unknown command %q (use: up, down, version, force)", command)
	}
	return nil
}
