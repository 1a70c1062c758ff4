// Package config provides configuration management for the storefront
// session service.
//
// Values are resolved in order: built-in defaults, an optional config file,
// APP_* environment variables, then command-line flags.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Default configuration values.
const (
	DefaultServerPort           = 8080
	DefaultLogLevel             = "info"
	DefaultShutdownTimeout      = 30 * time.Second
	DefaultMetricsEnabled       = true
	DefaultBackendURL           = "http://localhost:8000"
	DefaultCatalogTimeout       = time.Duration(0) // transport timeouts only
	DefaultDebounceInterval     = 300 * time.Millisecond
	DefaultSessionIdleTTL       = 30 * time.Minute
	DefaultSessionSweepInterval = time.Minute
	DefaultMaxSessions          = 10000
)

// Environment variable names.
const (
	EnvConfigFile           = "APP_CONFIG_FILE"
	EnvServerPort           = "APP_SERVER_PORT"
	EnvLogLevel             = "APP_LOG_LEVEL"
	EnvShutdownTimeout      = "APP_SHUTDOWN_TIMEOUT"
	EnvMetricsEnabled       = "APP_METRICS_ENABLED"
	EnvBackendURL           = "APP_BACKEND_URL"
	EnvCatalogTimeout       = "APP_CATALOG_TIMEOUT"
	EnvDebounceInterval     = "APP_DEBOUNCE_INTERVAL"
	EnvSessionIdleTTL       = "APP_SESSION_IDLE_TTL"
	EnvSessionSweepInterval = "APP_SESSION_SWEEP_INTERVAL"
	EnvMaxSessions          = "APP_MAX_SESSIONS"
	EnvAllowedOrigins       = "APP_ALLOWED_ORIGINS"
)

// Config holds the application configuration.
type Config struct {
	// Server settings.
	ServerPort      int           `mapstructure:"server_port"`
	LogLevel        string        `mapstructure:"log_level"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MetricsEnabled  bool          `mapstructure:"metrics_enabled"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`

	// Catalog service settings.
	BackendURL     string        `mapstructure:"backend_url"`
	CatalogTimeout time.Duration `mapstructure:"catalog_timeout"` // 0 = no client timeout.

	// Session settings.
	DebounceInterval     time.Duration `mapstructure:"debounce_interval"`
	SessionIdleTTL       time.Duration `mapstructure:"session_idle_ttl"` // 0 = never evict.
	SessionSweepInterval time.Duration `mapstructure:"session_sweep_interval"`
	MaxSessions          int           `mapstructure:"max_sessions"` // 0 = unlimited.
}

// Validation errors.
var (
	ErrInvalidServerPort       = errors.New("server port must be between 1 and 65535")
	ErrInvalidLogLevel         = errors.New("log level must be one of: debug, info, warn, error")
	ErrInvalidShutdownTimeout  = errors.New("shutdown timeout must be positive")
	ErrInvalidBackendURL       = errors.New("backend URL must be an absolute http or https URL")
	ErrInvalidCatalogTimeout   = errors.New("catalog timeout cannot be negative")
	ErrInvalidDebounceInterval = errors.New("debounce interval must be positive")
	ErrInvalidSessionIdleTTL   = errors.New("session idle TTL cannot be negative")
	ErrInvalidSweepInterval    = errors.New(
		"session sweep interval must be positive when session idle TTL is set",
	)
	ErrInvalidMaxSessions = errors.New("max sessions cannot be negative")
)

// Load reads configuration from the process arguments and environment.
func Load() (*Config, error) {
	return LoadArgs(os.Args[1:])
}

// LoadArgs reads configuration using args as the command line.
func LoadArgs(args []string) (*Config, error) {
	cfg := &Config{
		ServerPort:           DefaultServerPort,
		LogLevel:             DefaultLogLevel,
		ShutdownTimeout:      DefaultShutdownTimeout,
		MetricsEnabled:       DefaultMetricsEnabled,
		AllowedOrigins:       []string{"*"},
		BackendURL:           DefaultBackendURL,
		CatalogTimeout:       DefaultCatalogTimeout,
		DebounceInterval:     DefaultDebounceInterval,
		SessionIdleTTL:       DefaultSessionIdleTTL,
		SessionSweepInterval: DefaultSessionSweepInterval,
		MaxSessions:          DefaultMaxSessions,
	}

	flags, err := parseFlags(args)
	if err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	if path := configFilePath(flags); path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("loading config from environment: %w", err)
	}

	if err := cfg.loadFromFlags(flags); err != nil {
		return nil, fmt.Errorf("loading config from flags: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// parseFlags declares and parses the command-line flags.
func parseFlags(args []string) (*pflag.FlagSet, error) {
	fs := pflag.NewFlagSet("storefront", pflag.ContinueOnError)
	fs.String("config", "", "config file (yaml, json or toml)")
	fs.Int("port", DefaultServerPort, "HTTP server port")
	fs.String("log-level", DefaultLogLevel, "log level: debug, info, warn, error")
	fs.String("backend-url", DefaultBackendURL, "catalog service base URL")
	fs.Duration("debounce", DefaultDebounceInterval, "quiet period before a filter change is fetched")
	fs.Bool("metrics", DefaultMetricsEnabled, "expose Prometheus metrics on /metrics")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return fs, nil
}

// configFilePath returns the config file named by the environment, or by the
// --config flag when the environment is silent.
func configFilePath(fs *pflag.FlagSet) string {
	if env, ok := os.LookupEnv(EnvConfigFile); ok && env != "" {
		return env
	}
	path, _ := fs.GetString("config")
	return path
}

// loadFromFile overlays keys present in the file onto c.
func (c *Config) loadFromFile(path string) error {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	if err := v.UnmarshalExact(c); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}

	return nil
}

// loadFromEnv loads configuration values from environment variables.
func (c *Config) loadFromEnv() error {
	if err := c.loadServerEnv(); err != nil {
		return err
	}

	if err := c.loadCatalogEnv(); err != nil {
		return err
	}

	if err := c.loadSessionEnv(); err != nil {
		return err
	}

	return nil
}

// loadServerEnv loads server-related environment variables.
func (c *Config) loadServerEnv() error {
	if val := os.Getenv(EnvServerPort); val != "" {
		port, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvServerPort, err)
		}
		c.ServerPort = port
	}

	if val := os.Getenv(EnvLogLevel); val != "" {
		c.LogLevel = val
	}

	if val := os.Getenv(EnvShutdownTimeout); val != "" {
		timeout, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvShutdownTimeout, err)
		}
		c.ShutdownTimeout = timeout
	}

	if val := os.Getenv(EnvMetricsEnabled); val != "" {
		enabled, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvMetricsEnabled, err)
		}
		c.MetricsEnabled = enabled
	}

	if val := os.Getenv(EnvAllowedOrigins); val != "" {
		c.AllowedOrigins = splitList(val)
	}

	return nil
}

// loadCatalogEnv loads catalog service environment variables.
func (c *Config) loadCatalogEnv() error {
	if val := os.Getenv(EnvBackendURL); val != "" {
		c.BackendURL = val
	}

	if val := os.Getenv(EnvCatalogTimeout); val != "" {
		timeout, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvCatalogTimeout, err)
		}
		c.CatalogTimeout = timeout
	}

	return nil
}

// loadSessionEnv loads session environment variables.
func (c *Config) loadSessionEnv() error {
	durations := []struct {
		env  string
		dest *time.Duration
	}{
		{EnvDebounceInterval, &c.DebounceInterval},
		{EnvSessionIdleTTL, &c.SessionIdleTTL},
		{EnvSessionSweepInterval, &c.SessionSweepInterval},
	}
	for _, d := range durations {
		val := os.Getenv(d.env)
		if val == "" {
			continue
		}
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", d.env, err)
		}
		*d.dest = parsed
	}

	if val := os.Getenv(EnvMaxSessions); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvMaxSessions, err)
		}
		c.MaxSessions = n
	}

	return nil
}

// loadFromFlags applies flags that were set explicitly.
func (c *Config) loadFromFlags(fs *pflag.FlagSet) error {
	var err error

	if fs.Changed("port") {
		if c.ServerPort, err = fs.GetInt("port"); err != nil {
			return err
		}
	}
	if fs.Changed("log-level") {
		if c.LogLevel, err = fs.GetString("log-level"); err != nil {
			return err
		}
	}
	if fs.Changed("backend-url") {
		if c.BackendURL, err = fs.GetString("backend-url"); err != nil {
			return err
		}
	}
	if fs.Changed("debounce") {
		if c.DebounceInterval, err = fs.GetDuration("debounce"); err != nil {
			return err
		}
	}
	if fs.Changed("metrics") {
		if c.MetricsEnabled, err = fs.GetBool("metrics"); err != nil {
			return err
		}
	}

	return nil
}

// Validate checks if the configuration values are valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateCatalog(); err != nil {
		return err
	}

	if err := c.validateSession(); err != nil {
		return err
	}

	return nil
}

// validateServer validates server-related configuration.
func (c *Config) validateServer() error {
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return ErrInvalidServerPort
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return ErrInvalidLogLevel
	}

	if c.ShutdownTimeout <= 0 {
		return ErrInvalidShutdownTimeout
	}

	return nil
}

// validateCatalog validates the catalog service settings.
func (c *Config) validateCatalog() error {
	u, err := url.Parse(c.BackendURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidBackendURL
	}

	if c.CatalogTimeout < 0 {
		return ErrInvalidCatalogTimeout
	}

	return nil
}

// validateSession validates session settings.
func (c *Config) validateSession() error {
	if c.DebounceInterval <= 0 {
		return ErrInvalidDebounceInterval
	}

	if c.SessionIdleTTL < 0 {
		return ErrInvalidSessionIdleTTL
	}

	if c.SessionIdleTTL > 0 && c.SessionSweepInterval <= 0 {
		return ErrInvalidSweepInterval
	}

	if c.MaxSessions < 0 {
		return ErrInvalidMaxSessions
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *Config) Address() string {
	return fmt.Sprintf(":%d", c.ServerPort)
}

// splitList splits a comma-separated list, dropping blanks.
func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
