// Package config provides configuration management for the compliance servers.
// This file contains the lightweight configuration for standalone operation.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/treatment-compliance-server/internal/domain"
)

// LiteConfig is a simplified configuration for standalone operation.
// It requires no external databases and uses sensible defaults.
type LiteConfig struct {
	// Data storage
	DataDir       string // Base directory for audit data and exports
	GuidelinesDir string // Directory holding guideline JSON documents

	// Cache settings
	CacheMaxItems int           // Maximum items in the advisory memory cache
	CacheTTL      time.Duration // Advisory opinion TTL

	// Advisory settings
	AdvisoryProvider    string  // deepseek, anthropic or none
	AdvisoryTemperature float64 // sampling temperature sent with each advisory prompt
	DeepSeekAPIKey      string
	AnthropicAPIKey     string

	// Logging
	LogLevel  string // Log level: debug, info, warn, error
	LogFormat string // Log format: json, text
}

// DefaultLiteConfig returns a configuration with sensible defaults.
func DefaultLiteConfig() *LiteConfig {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".treatment-compliance")

	return &LiteConfig{
		DataDir:             dataDir,
		GuidelinesDir:       "./data",
		CacheMaxItems:       1000,
		CacheTTL:            24 * time.Hour,
		AdvisoryProvider:    "deepseek",
		AdvisoryTemperature: 0.1,
		LogLevel:            "info",
		LogFormat:           "json",
	}
}

// LoadLiteConfig loads configuration from environment variables.
// Falls back to defaults if not set.
func LoadLiteConfig() *LiteConfig {
	cfg := DefaultLiteConfig()

	if v := os.Getenv("COMPLIANCE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("COMPLIANCE_GUIDELINES_DIR"); v != "" {
		cfg.GuidelinesDir = v
	}

	// Cache settings
	if v := os.Getenv("COMPLIANCE_CACHE_MAX_ITEMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheMaxItems = n
		}
	}
	if v := os.Getenv("COMPLIANCE_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CacheTTL = d
		}
	}

	// Advisory
	if v := os.Getenv("COMPLIANCE_ADVISORY_PROVIDER"); v != "" {
		cfg.AdvisoryProvider = strings.ToLower(v)
	}
	if v := os.Getenv("COMPLIANCE_ADVISORY_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 2 {
			cfg.AdvisoryTemperature = f
		}
	}
	cfg.DeepSeekAPIKey = os.Getenv("DEEPSEEK_API_KEY")
	cfg.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")

	// Logging
	if v := os.Getenv("COMPLIANCE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("COMPLIANCE_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

// AdvisoryAPIKey returns the key for the selected advisory provider.
// An empty result means the advisory service is unavailable and every
// fallback assessment will use the default opinion.
func (c *LiteConfig) AdvisoryAPIKey() string {
	switch c.AdvisoryProvider {
	case "deepseek":
		return c.DeepSeekAPIKey
	case "anthropic":
		return c.AnthropicAPIKey
	default:
		return ""
	}
}

// AdvisoryConfig returns the advisory settings for the selected provider.
func (c *LiteConfig) AdvisoryConfig() domain.AdvisoryConfig {
	return domain.AdvisoryConfig{
		Provider:    c.AdvisoryProvider,
		APIKey:      c.AdvisoryAPIKey(),
		Temperature: c.AdvisoryTemperature,
	}
}

// AuditDBPath returns the path to the assessment audit SQLite database.
func (c *LiteConfig) AuditDBPath() string {
	return filepath.Join(c.DataDir, "audit.db")
}

// ExportDir returns the directory for JSON exports.
func (c *LiteConfig) ExportDir() string {
	return filepath.Join(c.DataDir, "exports")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *LiteConfig) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(c.ExportDir(), 0755)
}
