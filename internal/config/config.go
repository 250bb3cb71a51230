// ABOUTME: Configuration loading and parsing for sanctum
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Database drivers.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Config represents the complete sanctum configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Database DatabaseConfig `yaml:"database" toml:"database"`
	Auth     AuthConfig     `yaml:"auth" toml:"auth"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics" toml:"metrics"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver string `yaml:"driver" toml:"driver"`
	Path   string `yaml:"path" toml:"path"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	AllowedOrigins  []string `yaml:"allowed_origins" toml:"allowed_origins"`
	AllowSubdomains bool     `yaml:"allow_subdomains" toml:"allow_subdomains"`
	SessionCookie   string   `yaml:"session_cookie" toml:"session_cookie"`
	CSRFHeader      string   `yaml:"csrf_header" toml:"csrf_header"`
	CSRFField       string   `yaml:"csrf_field" toml:"csrf_field"`
	SecureCookies   bool     `yaml:"secure_cookies" toml:"secure_cookies"`

	SessionIdleTimeout time.Duration `yaml:"-" toml:"-"`
	TokenTTL           time.Duration `yaml:"-" toml:"-"`
	StoreTimeout       time.Duration `yaml:"-" toml:"-"`
	SweepInterval      time.Duration `yaml:"-" toml:"-"`

	// Raw string values for YAML/TOML unmarshaling
	SessionIdleTimeoutRaw string `yaml:"session_idle_timeout" toml:"session_idle_timeout"`
	TokenTTLRaw           string `yaml:"token_ttl" toml:"token_ttl"`
	StoreTimeoutRaw       string `yaml:"store_timeout" toml:"store_timeout"`
	SweepIntervalRaw      string `yaml:"sweep_interval" toml:"sweep_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// Defaults for unset fields.
const (
	DefaultHTTPAddr           = "127.0.0.1:8080"
	DefaultSessionIdleTimeout = 2 * time.Hour
	DefaultStoreTimeout       = 2 * time.Second
	DefaultSweepInterval      = 10 * time.Minute
	DefaultMetricsPath        = "/metrics"
)

// SweepDisabled is the SweepInterval set by sweep_interval: "off".
const SweepDisabled time.Duration = math.MinInt64

// Default returns a configuration usable without a file: in-memory storage
// and a localhost frontend origin.
func Default() *Config {
	cfg := &Config{
		Database: DatabaseConfig{Driver: DriverMemory},
		Auth: AuthConfig{
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Metrics: MetricsConfig{Enabled: true},
	}
	cfg.applyDefaults()
	return cfg
}

// Path returns the path to the sanctum config file.
// Priority: SANCTUM_CONFIG env var > XDG_CONFIG_HOME/sanctum/config.yaml > ~/.config/sanctum/config.yaml
func Path() string {
	if envPath := os.Getenv("SANCTUM_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "sanctum", "config.yaml")
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expandedData, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
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

func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverSQLite
	}
	if c.Auth.SessionIdleTimeout == 0 {
		c.Auth.SessionIdleTimeout = DefaultSessionIdleTimeout
	}
	if c.Auth.StoreTimeout == 0 {
		c.Auth.StoreTimeout = DefaultStoreTimeout
	}
	if c.Auth.SweepInterval == 0 {
		c.Auth.SweepInterval = DefaultSweepInterval
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverSQLite, DriverMemory, c.Database.Driver)
	}

	if len(c.Auth.AllowedOrigins) == 0 {
		return fmt.Errorf("auth.allowed_origins must list at least one origin")
	}
	for _, origin := range c.Auth.AllowedOrigins {
		if strings.Contains(origin, "*") && !c.Auth.AllowSubdomains {
			return fmt.Errorf("auth.allowed_origins entry %q needs auth.allow_subdomains", origin)
		}
		if !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return fmt.Errorf("auth.allowed_origins entry %q must start with http:// or https://", origin)
		}
	}

	if c.Auth.SessionIdleTimeout < 0 {
		return fmt.Errorf("auth.session_idle_timeout must be positive")
	}
	if c.Auth.TokenTTL < 0 {
		return fmt.Errorf("auth.token_ttl must not be negative")
	}
	if c.Auth.StoreTimeout < 0 {
		return fmt.Errorf("auth.store_timeout must be positive")
	}
	if c.Auth.SweepInterval < 0 && c.Auth.SweepInterval != SweepDisabled {
		return fmt.Errorf("auth.sweep_interval must be positive or \"off\"")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be text or json")
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name     string
		raw      string
		dst      *time.Duration
		allowOff bool
	}{
		{"session_idle_timeout", cfg.Auth.SessionIdleTimeoutRaw, &cfg.Auth.SessionIdleTimeout, false},
		{"token_ttl", cfg.Auth.TokenTTLRaw, &cfg.Auth.TokenTTL, false},
		{"store_timeout", cfg.Auth.StoreTimeoutRaw, &cfg.Auth.StoreTimeout, false},
		{"sweep_interval", cfg.Auth.SweepIntervalRaw, &cfg.Auth.SweepInterval, true},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		if f.allowOff && strings.EqualFold(f.raw, "off") {
			*f.dst = SweepDisabled
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
