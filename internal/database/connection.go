package database

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/treatment-compliance-server/internal/domain"
	"github.com/treatment-compliance-server/internal/protocol"
)

// Config holds database configuration
type Config struct {
	Host        string
	Port        int
	Database    string
	Username    string
	Password    string
	MaxConns    int32
	MinConns    int32
	MaxConnLife time.Duration
	MaxConnIdle time.Duration
	SSLMode     string
}

// ConfigFromDomain converts the application database settings into pool settings.
func ConfigFromDomain(cfg domain.DatabaseConfig) Config {
	maxConns := int32(cfg.MaxOpenConns)
	if maxConns <= 0 {
		maxConns = 10
	}
	minConns := int32(cfg.MaxIdleConns)
	if minConns > maxConns {
		minConns = maxConns
	}
	life := cfg.ConnMaxLifetime
	if life == 0 {
		life = time.Hour
	}
	return Config{
		Host:        cfg.Host,
		Port:        cfg.Port,
		Database:    cfg.Database,
		Username:    cfg.Username,
		Password:    cfg.Password,
		MaxConns:    maxConns,
		MinConns:    minConns,
		MaxConnLife: life,
		MaxConnIdle: 30 * time.Minute,
		SSLMode:     cfg.SSLMode,
	}
}

// URL returns the connection string in URL form, as expected by migrations and lib/pq.
func (c Config) URL() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.Username, c.Password),
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Database,
	}
	if c.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {c.SSLMode}}.Encode()
	}
	return u.String()
}

// DB wraps the pgxpool.Pool with additional functionality
type DB struct {
	Pool *pgxpool.Pool
	log  *logrus.Logger
}

// NewConnection creates a new database connection pool
func NewConnection(ctx context.Context, config Config, logger *logrus.Logger) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		config.Host, config.Port, config.Database, config.Username, config.Password, config.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	poolConfig.MaxConns = config.MaxConns
	poolConfig.MinConns = config.MinConns
	poolConfig.MaxConnLifetime = config.MaxConnLife
	poolConfig.MaxConnIdleTime = config.MaxConnIdle

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"host":      config.Host,
		"port":      config.Port,
		"database":  config.Database,
		"max_conns": config.MaxConns,
		"min_conns": config.MinConns,
	}).Info("Database connection pool established")

	return &DB{
		Pool: pool,
		log:  logger,
	}, nil
}

// Close closes the database connection pool
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.log.Info("Database connection pool closed")
	}
}

// Health checks the database connection health
func (db *DB) Health(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// Stats returns connection pool statistics
func (db *DB) Stats() *pgxpool.Stat {
	return db.Pool.Stat()
}

// GuidelineSource returns a protocol source reading the guideline_documents table.
func (db *DB) GuidelineSource() *protocol.PostgresSource {
	return protocol.NewPostgresSource(db.Pool)
}

const upsertGuidelineDocument = `
	INSERT INTO guideline_documents (file_name, body, cancer_type, imported_at)
	VALUES ($1, $2, $3, NOW())
	ON CONFLICT (file_name) DO UPDATE SET
		body = EXCLUDED.body,
		cancer_type = EXCLUDED.cancer_type,
		imported_at = EXCLUDED.imported_at
`

// ImportGuidelines copies every readable JSON document from source into the
// guideline_documents table. Unreadable or invalid documents are skipped with a warning.
func (db *DB) ImportGuidelines(ctx context.Context, source protocol.Source) (imported, skipped int, err error) {
	docs, err := source.Documents(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("reading guideline source: %w", err)
	}

	for _, doc := range docs {
		if doc.Err != nil || !json.Valid(doc.Body) {
			db.log.WithFields(logrus.Fields{
				"file":  doc.Name,
				"error": doc.Err,
			}).Warn("Skipping guideline document on import")
			skipped++
			continue
		}

		if _, err := db.Pool.Exec(ctx, upsertGuidelineDocument, doc.Name, string(doc.Body), protocol.MapCancerType(doc.Name)); err != nil {
			return imported, skipped, fmt.Errorf("importing %s: %w", doc.Name, err)
		}
		imported++
	}

	db.log.WithFields(logrus.Fields{
		"imported": imported,
		"skipped":  skipped,
	}).Info("Guideline documents imported")
	return imported, skipped, nil
}
