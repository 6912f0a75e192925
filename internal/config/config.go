// Copyright 2025 Joseph Cumines
//
// Configuration package for the UI automation MCP server.
//
// Settings are resolved in order: built-in defaults, an optional TOML file,
// environment variables, then command-line flags. Each later source only
// overrides the keys it actually sets.

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joeycumines/uiautomation-mcp/internal/logging"
)

// EnvConfigFile names the TOML file to load when --config is not given.
const EnvConfigFile = "UIA_MCP_CONFIG"

// Config holds the configuration for the server.
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type Config struct {
	// Automation provider connection
	ProviderAddr     string `toml:"provider_addr"`
	ProviderCertFile string `toml:"provider_cert_file"`
	ProviderTLS      bool   `toml:"provider_tls"`

	// Timeouts and polling
	RequestTimeout time.Duration `toml:"request_timeout"`
	FindTimeout    time.Duration `toml:"find_timeout"`
	ExistsTimeout  time.Duration `toml:"exists_timeout"`
	WaitTimeout    time.Duration `toml:"wait_timeout"`
	PollInterval   time.Duration `toml:"poll_interval"`
	LaunchTimeout  time.Duration `toml:"launch_timeout"`

	ScreenshotMaxDimension int `toml:"screenshot_max_dimension"`

	// Audit and operations
	AuditLog         string `toml:"audit_log"`
	AuditRedactInput bool   `toml:"audit_redact_input"`
	MetricsAddr      string `toml:"metrics_addr"`

	LogLevel string `toml:"log_level"`
	Debug    bool   `toml:"debug"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ProviderAddr:   "localhost:50051",
		RequestTimeout: 30 * time.Second,
		FindTimeout:    5 * time.Second,
		ExistsTimeout:  1 * time.Second,
		WaitTimeout:    10 * time.Second,
		PollInterval:   100 * time.Millisecond,
		LaunchTimeout:  30 * time.Second,
		LogLevel:       "info",
	}
}

// Load resolves the configuration from defaults, the TOML file at path (if
// non-empty, otherwise the file named by UIA_MCP_CONFIG, if set), and the
// environment. The result is not yet validated; flag overrides are applied
// by the caller before calling Validate.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadEnv() error {
	c.ProviderAddr = getEnv("UIA_PROVIDER_ADDR", c.ProviderAddr)
	c.ProviderTLS = getEnvAsBool("UIA_PROVIDER_TLS", c.ProviderTLS)
	c.ProviderCertFile = getEnv("UIA_PROVIDER_CERT_FILE", c.ProviderCertFile)
	c.AuditLog = getEnv("UIA_MCP_AUDIT_LOG", c.AuditLog)
	c.AuditRedactInput = getEnvAsBool("UIA_MCP_AUDIT_REDACT_INPUT", c.AuditRedactInput)
	c.MetricsAddr = getEnv("UIA_MCP_METRICS_ADDR", c.MetricsAddr)
	c.LogLevel = getEnv("UIA_MCP_LOG_LEVEL", c.LogLevel)
	c.Debug = getEnvAsBool("UIA_MCP_DEBUG", c.Debug)

	var err error
	if c.ScreenshotMaxDimension, err = getEnvAsInt("UIA_MCP_SCREENSHOT_MAX_DIMENSION", c.ScreenshotMaxDimension); err != nil {
		return err
	}

	durations := []struct {
		dst *time.Duration
		key string
	}{
		{&c.RequestTimeout, "UIA_MCP_REQUEST_TIMEOUT"},
		{&c.FindTimeout, "UIA_MCP_FIND_TIMEOUT"},
		{&c.ExistsTimeout, "UIA_MCP_EXISTS_TIMEOUT"},
		{&c.WaitTimeout, "UIA_MCP_WAIT_TIMEOUT"},
		{&c.PollInterval, "UIA_MCP_POLL_INTERVAL"},
		{&c.LaunchTimeout, "UIA_MCP_LAUNCH_TIMEOUT"},
	}
	for _, d := range durations {
		if *d.dst, err = getEnvAsDuration(d.key, *d.dst); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	var errs []error

	if c.ProviderAddr == "" {
		errs = append(errs, errors.New("provider address cannot be empty"))
	}

	positive := []struct {
		name  string
		value time.Duration
	}{
		{"request timeout", c.RequestTimeout},
		{"find timeout", c.FindTimeout},
		{"exists timeout", c.ExistsTimeout},
		{"wait timeout", c.WaitTimeout},
		{"poll interval", c.PollInterval},
		{"launch timeout", c.LaunchTimeout},
	}
	for _, p := range positive {
		if p.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", p.name, p.value))
		}
	}
	if c.PollInterval > 0 && c.FindTimeout > 0 && c.PollInterval > c.FindTimeout {
		errs = append(errs, fmt.Errorf("poll interval %v exceeds find timeout %v", c.PollInterval, c.FindTimeout))
	}

	if c.ScreenshotMaxDimension < 0 {
		errs = append(errs, fmt.Errorf("screenshot max dimension cannot be negative, got %d", c.ScreenshotMaxDimension))
	}

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	var result int
	_, err := fmt.Sscanf(value, "%d", &result)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q (expected integer)", key, value)
	}
	return result, nil
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q (expected duration, e.g., '30s', '5m')", key, value)
	}
	return d, nil
}
