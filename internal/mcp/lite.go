package mcp

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/treatment-compliance-server/internal/audit"
	litecfg "github.com/treatment-compliance-server/internal/config"
	"github.com/treatment-compliance-server/internal/domain"
	"github.com/treatment-compliance-server/internal/drugs"
	"github.com/treatment-compliance-server/internal/protocol"
	"github.com/treatment-compliance-server/internal/service"
	"github.com/treatment-compliance-server/pkg/advisory"
)

// liteAdvisoryConcurrency bounds parallel advisory calls per line in the lite server.
const liteAdvisoryConcurrency = 4

// LiteServerOption is a functional option for NewLiteServer.
type LiteServerOption func(*liteOptions)

type liteOptions struct {
	logger     *logrus.Logger
	auditStore audit.Store
	advisory   domain.AdvisoryFallback
}

// WithLogger sets a custom logger.
func WithLogger(logger *logrus.Logger) LiteServerOption {
	return func(o *liteOptions) {
		o.logger = logger
	}
}

// WithAuditStore sets a custom audit store instead of the SQLite file in the data directory.
func WithAuditStore(store audit.Store) LiteServerOption {
	return func(o *liteOptions) {
		o.auditStore = store
	}
}

// WithAdvisory replaces the advisory service built from the provider settings.
func WithAdvisory(fallback domain.AdvisoryFallback) LiteServerOption {
	return func(o *liteOptions) {
		o.advisory = fallback
	}
}

// NewLiteServer builds a server that needs no external databases: guidelines are
// read from a directory, advisory opinions are cached in memory and assessments
// are recorded in SQLite.
func NewLiteServer(ctx context.Context, cfg *litecfg.LiteConfig, opts ...LiteServerOption) (*Server, error) {
	o := &liteOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = newLiteLogger(cfg)
	}
	logger := o.logger

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	resolver := drugs.NewResolver(nil)
	index, err := protocol.Build(ctx, protocol.NewDirectorySource(cfg.GuidelinesDir), protocol.BuildOptions{
		Resolver: resolver,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build protocol index: %w", err)
	}

	var closers []func() error

	fallback := o.advisory
	if fallback == nil {
		cache := advisory.NewMemoryCache(cfg.CacheMaxItems, cfg.CacheTTL)
		adv, err := advisory.NewFromConfig(logger, cfg.AdvisoryConfig(), cache, cfg.CacheTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to create advisory service: %w", err)
		}
		if adv != nil {
			fallback = adv
			closers = append(closers, adv.Close)
		}
	}

	store := o.auditStore
	if store == nil {
		sqliteStore, err := audit.NewSQLiteStore(cfg.AuditDBPath())
		if err != nil {
			return nil, fmt.Errorf("failed to create audit store: %w", err)
		}
		store = sqliteStore
	}

	scorer := service.NewScorerFromConfig(logger, index, resolver, fallback, domain.ScoringConfig{}, liteAdvisoryConcurrency)

	server, err := NewServer(logger, Dependencies{
		Scorer:    scorer,
		Catalog:   index,
		Drugs:     resolver,
		Audit:     store,
		ExportDir: cfg.ExportDir(),
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	server.closers = closers

	logger.WithFields(logrus.Fields{
		"guidelines_dir": cfg.GuidelinesDir,
		"cancer_types":   len(index.CancerTypes()),
		"advisory":       fallback != nil,
	}).Info("Lite server initialized successfully")
	return server, nil
}

// newLiteLogger logs to stderr; stdout carries the MCP protocol.
func newLiteLogger(cfg *litecfg.LiteConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if cfg.LogFormat == "text" {
		logger.SetFormatter(&logrus.TextFormatter{})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}
