// Package main runs the treatment compliance HTTP API.
//
// Usage:
//
//	server                      serve the API
//	server import-guidelines    copy guideline documents from knowledge.data_dir into PostgreSQL
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/treatment-compliance-server/internal/api"
	"github.com/treatment-compliance-server/internal/audit"
	"github.com/treatment-compliance-server/internal/config"
	"github.com/treatment-compliance-server/internal/database"
	"github.com/treatment-compliance-server/internal/domain"
	"github.com/treatment-compliance-server/internal/drugs"
	"github.com/treatment-compliance-server/internal/protocol"
	"github.com/treatment-compliance-server/internal/service"
	"github.com/treatment-compliance-server/pkg/advisory"
)

func main() {
	configManager, err := config.NewManager()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	if err := configManager.Validate(); err != nil {
		logrus.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger := newLogger(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(os.Args) > 1 && os.Args[1] == "import-guidelines" {
		if err := importGuidelines(ctx, cfg, logger); err != nil {
			logger.WithError(err).Fatal("Guideline import failed")
		}
		return
	}

	if err := run(ctx, configManager, logger); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}
	logger.Info("Server stopped")
}

func run(ctx context.Context, configManager *config.Manager, logger *logrus.Logger) error {
	cfg := configManager.GetConfig()
	healthChecks := map[string]api.HealthCheck{}

	var db *database.DB
	if cfg.Database.Enabled {
		dbCfg := database.ConfigFromDomain(cfg.Database)
		if cfg.Database.RunMigrations {
			if err := migrate(ctx, dbCfg.URL(), logger); err != nil {
				return err
			}
		}

		var err error
		db, err = database.NewConnection(ctx, dbCfg, logger)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer db.Close()
		healthChecks["database"] = db.Health
	}

	resolver := drugs.NewResolver(nil)
	index, err := buildIndex(ctx, cfg.Knowledge, db, resolver, logger)
	if err != nil {
		return err
	}

	cache, err := newAdvisoryCache(cfg.Cache, logger)
	if err != nil {
		return err
	}
	if rc, ok := cache.(*advisory.RedisCache); ok {
		healthChecks["redis"] = rc.Ping
	}

	adv, err := advisory.NewFromConfig(logger, cfg.Advisory, cache, cfg.Cache.DefaultTTL)
	if err != nil {
		cache.Close()
		return fmt.Errorf("creating advisory service: %w", err)
	}
	deps := api.Dependencies{
		Logger:       logger,
		Catalog:      index,
		Drugs:        resolver,
		HealthChecks: healthChecks,
	}
	var fallback domain.AdvisoryFallback
	if adv != nil {
		fallback = adv
		deps.Advisor = adv
		defer adv.Close()
	} else {
		defer cache.Close()
	}

	deps.Scorer = service.NewScorerFromConfig(logger, index, resolver, fallback, cfg.Scoring, cfg.Advisory.Concurrency)

	store, err := newAuditStore(cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
		deps.Audit = store
	}

	server, err := api.NewServer(configManager, deps)
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"host":         cfg.Server.Host,
		"port":         cfg.Server.Port,
		"cancer_types": len(index.CancerTypes()),
		"advisory":     adv != nil,
		"audit":        cfg.Audit.Driver,
	}).Info("Starting treatment compliance server")

	return server.Start(ctx)
}

func migrate(ctx context.Context, databaseURL string, logger *logrus.Logger) error {
	runner, err := database.NewMigrationRunner(databaseURL, logger)
	if err != nil {
		return fmt.Errorf("preparing migrations: %w", err)
	}
	defer runner.Close()

	if err := runner.Up(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

func buildIndex(ctx context.Context, cfg domain.KnowledgeConfig, db *database.DB, resolver *drugs.Resolver, logger *logrus.Logger) (*protocol.Index, error) {
	var source protocol.Source
	switch cfg.Source {
	case "postgres":
		if db == nil {
			return nil, errors.New("knowledge source postgres requires a database connection")
		}
		source = db.GuidelineSource()
	default:
		dir := protocol.NewDirectorySource(cfg.DataDir)
		if cfg.Pattern != "" {
			dir.Pattern = cfg.Pattern
		}
		source = dir
	}

	index, err := protocol.Build(ctx, source, protocol.BuildOptions{Resolver: resolver, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("building protocol index: %w", err)
	}
	return index, nil
}

func newAdvisoryCache(cfg domain.CacheConfig, logger *logrus.Logger) (advisory.Cache, error) {
	if cfg.RedisURL != "" {
		rc, err := advisory.NewRedisCache(cfg)
		if err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		logger.Info("Advisory opinions cached in Redis")
		return rc, nil
	}
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return advisory.NewMemoryCache(cfg.MemoryItems, ttl), nil
}

// newAuditStore returns nil when auditing is disabled.
func newAuditStore(cfg *domain.Config) (audit.Store, error) {
	switch cfg.Audit.Driver {
	case "", "none":
		return nil, nil
	case "sqlite":
		store, err := audit.NewSQLiteStore(cfg.Audit.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite audit store: %w", err)
		}
		return store, nil
	case "postgres":
		url := database.ConfigFromDomain(cfg.Database).URL()
		store, err := audit.NewPostgresStoreFromURL(url, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("opening postgres audit store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown audit driver %q", cfg.Audit.Driver)
	}
}

func importGuidelines(ctx context.Context, cfg *domain.Config, logger *logrus.Logger) error {
	if !cfg.Database.Enabled {
		return errors.New("import-guidelines requires database.enabled")
	}
	dbCfg := database.ConfigFromDomain(cfg.Database)
	if err := migrate(ctx, dbCfg.URL(), logger); err != nil {
		return err
	}

	db, err := database.NewConnection(ctx, dbCfg, logger)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	dir := protocol.NewDirectorySource(cfg.Knowledge.DataDir)
	if cfg.Knowledge.Pattern != "" {
		dir.Pattern = cfg.Knowledge.Pattern
	}
	_, _, err = db.ImportGuidelines(ctx, dir)
	return err
}

func newLogger(cfg domain.LoggingConfig) *logrus.Logger {
	logger := logrus.New()
	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	if cfg.Output == "stderr" {
		logger.SetOutput(os.Stderr)
	} else {
		logger.SetOutput(os.Stdout)
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}
