package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Knowledge KnowledgeConfig `mapstructure:"knowledge"`
	Advisory  AdvisoryConfig  `mapstructure:"advisory"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RateLimit      float64       `mapstructure:"rate_limit"` // requests per second, 0 disables
	RateBurst      int           `mapstructure:"rate_burst"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	RunMigrations   bool          `mapstructure:"run_migrations"`
}

// KnowledgeConfig controls where guideline documents are read from.
type KnowledgeConfig struct {
	Source  string `mapstructure:"source"` // "directory" or "postgres"
	DataDir string `mapstructure:"data_dir"`
	Pattern string `mapstructure:"pattern"`
}

// AdvisoryConfig configures the advisory-opinion service used when no protocol matches.
type AdvisoryConfig struct {
	Provider    string               `mapstructure:"provider"` // "deepseek", "anthropic", "none"
	BaseURL     string               `mapstructure:"base_url"`
	APIKey      string               `mapstructure:"api_key"`
	Model       string               `mapstructure:"model"`
	Timeout     time.Duration        `mapstructure:"timeout"`
	RateLimit   int                  `mapstructure:"rate_limit"`
	MaxTokens   int                  `mapstructure:"max_tokens"`
	Temperature float64              `mapstructure:"temperature"`
	Concurrency int                  `mapstructure:"concurrency"`
	Breaker     CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

// CircuitBreakerConfig represents circuit breaker configuration
type CircuitBreakerConfig struct {
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MinRequests  uint32        `mapstructure:"min_requests"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
}

// CacheConfig represents cache configuration
type CacheConfig struct {
	RedisURL    string        `mapstructure:"redis_url"`
	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
	MemoryItems int           `mapstructure:"memory_items"`
	MaxRetries  int           `mapstructure:"max_retries"`
	PoolSize    int           `mapstructure:"pool_size"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
}

// ScoringConfig holds the tunable constants of the matcher, evaluator and aggregator.
type ScoringConfig struct {
	ContraindicationPenalty int                `mapstructure:"contraindication_penalty"`
	OverlapBonus            int                `mapstructure:"overlap_bonus"`
	StageBonus              int                `mapstructure:"stage_bonus"`
	FamilyMatchFactor       float64            `mapstructure:"family_match_factor"`
	OutsideProtocolPoints   int                `mapstructure:"outside_protocol_points"`
	StageWeights            map[string]float64 `mapstructure:"stage_weights"`
	// Contraindications maps a biomarker to the drug families it excludes.
	// When empty the built-in rules apply.
	Contraindications map[string][]string `mapstructure:"contraindications"`
}

// AuditConfig selects where assessments are recorded.
type AuditConfig struct {
	Driver     string `mapstructure:"driver"` // "sqlite", "postgres", "none"
	SQLitePath string `mapstructure:"sqlite_path"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
