package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/treatment-compliance-server/internal/domain"
)

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v      *viper.Viper
	config *domain.Config
}

// NewManager creates a new configuration manager
func NewManager() (*Manager, error) {
	m := &Manager{v: viper.New()}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// NewManagerFromFile loads configuration from an explicit file path.
func NewManagerFromFile(path string) (*Manager, error) {
	m := &Manager{v: viper.New()}
	m.v.SetConfigFile(path)
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration from %s: %w", path, err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	v := m.v

	if v.ConfigFileUsed() == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/treatment-compliance/")
	}

	v.SetEnvPrefix("COMPLIANCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("deepseek_api_key", "DEEPSEEK_API_KEY")
	_ = v.BindEnv("anthropic_api_key", "ANTHROPIC_API_KEY")

	m.setDefaults()

	// Config file is optional; defaults and environment variables are enough to run.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Provider keys are conventionally supplied without the prefix.
	if config.Advisory.APIKey == "" {
		switch strings.ToLower(config.Advisory.Provider) {
		case "deepseek":
			config.Advisory.APIKey = v.GetString("deepseek_api_key")
		case "anthropic":
			config.Advisory.APIKey = v.GetString("anthropic_api_key")
		}
	}

	m.config = config
	return nil
}

// setDefaults sets default configuration values
func (m *Manager) setDefaults() {
	v := m.v

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.request_timeout", "55s")
	v.SetDefault("server.rate_limit", 50)
	v.SetDefault("server.rate_burst", 100)

	// Database defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "treatment_compliance")
	v.SetDefault("database.username", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("database.run_migrations", true)

	// Knowledge base defaults
	v.SetDefault("knowledge.source", "directory")
	v.SetDefault("knowledge.data_dir", "./data")
	v.SetDefault("knowledge.pattern", "*.json")

	// Advisory defaults
	v.SetDefault("advisory.provider", "deepseek")
	v.SetDefault("advisory.base_url", "https://api.deepseek.com/v1")
	v.SetDefault("advisory.model", "deepseek-chat")
	v.SetDefault("advisory.timeout", "30s")
	v.SetDefault("advisory.rate_limit", 5)
	v.SetDefault("advisory.max_tokens", 500)
	v.SetDefault("advisory.temperature", 0.1)
	v.SetDefault("advisory.concurrency", 4)
	v.SetDefault("advisory.circuit_breaker.max_requests", 3)
	v.SetDefault("advisory.circuit_breaker.interval", "60s")
	v.SetDefault("advisory.circuit_breaker.timeout", "30s")
	v.SetDefault("advisory.circuit_breaker.min_requests", 5)
	v.SetDefault("advisory.circuit_breaker.failure_ratio", 0.6)

	// Cache defaults
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.default_ttl", "24h")
	v.SetDefault("cache.memory_items", 1000)
	v.SetDefault("cache.max_retries", 3)
	v.SetDefault("cache.pool_size", 10)
	v.SetDefault("cache.pool_timeout", "4s")

	// Scoring defaults
	v.SetDefault("scoring.contraindication_penalty", 100)
	v.SetDefault("scoring.overlap_bonus", 10)
	v.SetDefault("scoring.stage_bonus", 30)
	v.SetDefault("scoring.family_match_factor", 0.9)
	v.SetDefault("scoring.outside_protocol_points", 5)

	// Audit defaults
	v.SetDefault("audit.driver", "sqlite")
	v.SetDefault("audit.sqlite_path", "./data/audit.db")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetDatabaseConfig returns database configuration
func (m *Manager) GetDatabaseConfig() *domain.DatabaseConfig {
	return &m.config.Database
}

// GetAdvisoryConfig returns advisory service configuration
func (m *Manager) GetAdvisoryConfig() *domain.AdvisoryConfig {
	return &m.config.Advisory
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	switch config.Knowledge.Source {
	case "directory":
		if config.Knowledge.DataDir == "" {
			return fmt.Errorf("knowledge data_dir is required for directory source")
		}
	case "postgres":
		if !config.Database.Enabled {
			return fmt.Errorf("knowledge source postgres requires database.enabled")
		}
	default:
		return fmt.Errorf("invalid knowledge source: %s", config.Knowledge.Source)
	}

	if config.Database.Enabled {
		if config.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if config.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if config.Database.Username == "" {
			return fmt.Errorf("database username is required")
		}
	}

	switch strings.ToLower(config.Advisory.Provider) {
	case "deepseek", "anthropic", "none":
	default:
		return fmt.Errorf("invalid advisory provider: %s", config.Advisory.Provider)
	}
	if config.Advisory.RateLimit < 0 {
		return fmt.Errorf("advisory rate_limit must not be negative")
	}

	switch config.Audit.Driver {
	case "sqlite":
		if config.Audit.SQLitePath == "" {
			return fmt.Errorf("audit sqlite_path is required for sqlite driver")
		}
	case "postgres":
		if !config.Database.Enabled {
			return fmt.Errorf("audit driver postgres requires database.enabled")
		}
	case "none":
	default:
		return fmt.Errorf("invalid audit driver: %s", config.Audit.Driver)
	}

	if config.Scoring.FamilyMatchFactor < 0 || config.Scoring.FamilyMatchFactor > 1 {
		return fmt.Errorf("family_match_factor must be within [0,1]: %v", config.Scoring.FamilyMatchFactor)
	}
	if config.Scoring.OutsideProtocolPoints < 0 || config.Scoring.OutsideProtocolPoints > domain.PerDrugMaxPoints {
		return fmt.Errorf("outside_protocol_points must be within [0,%d]", domain.PerDrugMaxPoints)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// GetDatabaseConnectionString returns a formatted database connection string
func (m *Manager) GetDatabaseConnectionString() string {
	db := m.config.Database
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host, db.Port, db.Username, db.Password, db.Database, db.SSLMode)
}

// GetRedisConnectionString returns the Redis connection string
func (m *Manager) GetRedisConnectionString() string {
	return m.config.Cache.RedisURL
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.v.GetString("environment")) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(m.v.GetString("environment"))
	return env == "development" || env == "dev" || env == ""
}
