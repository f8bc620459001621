// ABOUTME: Configuration loading and parsing for telegram-mcp
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete telegram-mcp configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Cache    CacheConfig    `yaml:"cache"`
	Logging  LoggingConfig  `yaml:"logging"`
	Telegram TelegramConfig `yaml:"telegram"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds MCP endpoint authentication configuration.
// When RequireAuth is false the endpoint is open, which is the Stage 1
// default for local development.
type AuthConfig struct {
	JWTSecret   string `yaml:"jwt_secret"`
	RequireAuth bool   `yaml:"require_auth"`
}

// CacheConfig holds cache TTL and maintenance configuration
type CacheConfig struct {
	DefaultTTL          time.Duration `yaml:"-"`
	MaintenanceInterval time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	DefaultTTLRaw          string `yaml:"default_ttl"`
	MaintenanceIntervalRaw string `yaml:"maintenance_interval"`
}

// LoggingConfig holds process logging and log store configuration
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	MaxEntries int    `yaml:"max_entries"`
}

// TelegramConfig holds mock provider configuration
type TelegramConfig struct {
	Latency time.Duration `yaml:"-"`

	// FixturePath optionally points at a TOML fixture file; empty uses the
	// built-in demo data.
	FixturePath string `yaml:"fixture_path"`
	LatencyRaw  string `yaml:"latency"`
}

// Defaults applied by Load when fields are absent.
const (
	DefaultHTTPAddr            = "localhost:8090"
	DefaultCacheTTL            = 5 * time.Minute
	DefaultMaintenanceInterval = time.Minute
	DefaultMaxLogEntries       = 10000
	DefaultMockLatency         = 150 * time.Millisecond
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills unset fields with their defaults.
func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Cache.DefaultTTL == 0 {
		c.Cache.DefaultTTL = DefaultCacheTTL
	}
	if c.Cache.MaintenanceInterval == 0 {
		c.Cache.MaintenanceInterval = DefaultMaintenanceInterval
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.MaxEntries == 0 {
		c.Logging.MaxEntries = DefaultMaxLogEntries
	}
	if c.Telegram.Latency == 0 && c.Telegram.LatencyRaw == "" {
		c.Telegram.Latency = DefaultMockLatency
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", c.Logging.Level)
	}

	if c.Auth.RequireAuth && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required when auth.require_auth is enabled")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Cache.DefaultTTLRaw != "" {
		cfg.Cache.DefaultTTL, err = time.ParseDuration(cfg.Cache.DefaultTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing cache.default_ttl %q: %w", cfg.Cache.DefaultTTLRaw, err)
		}
	}

	if cfg.Cache.MaintenanceIntervalRaw != "" {
		cfg.Cache.MaintenanceInterval, err = time.ParseDuration(cfg.Cache.MaintenanceIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing cache.maintenance_interval %q: %w", cfg.Cache.MaintenanceIntervalRaw, err)
		}
	}

	if cfg.Telegram.LatencyRaw != "" {
		cfg.Telegram.Latency, err = time.ParseDuration(cfg.Telegram.LatencyRaw)
		if err != nil {
			return fmt.Errorf("parsing telegram.latency %q: %w", cfg.Telegram.LatencyRaw, err)
		}
	}

	return nil
}
