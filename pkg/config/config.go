package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/pulse/internal/device"
	"gopkg.in/yaml.v3"
)

// OutputFormats lists the supported session summary formats
var OutputFormats = []string{"table", "json", "yaml"}

// Config holds application configuration
type Config struct {
	LogLevel       string        `yaml:"log_level" json:"log_level" default:"info"`
	ScanTimeout    time.Duration `yaml:"scan_timeout" json:"scan_timeout" default:"10s"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout" default:"30s"`
	OutputFormat   string        `yaml:"output_format" json:"output_format" default:"table"`

	// Address connects to a known peripheral directly, without scanning
	Address string `yaml:"address,omitempty" json:"address,omitempty"`

	// Filter selects the peripheral during scanning. Empty means the
	// built-in heart-rate filter.
	Filter device.DeviceFilter `yaml:"filter,omitempty" json:"filter,omitempty"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML config file over the defaults. An empty path returns
// the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %q: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field values
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.ScanTimeout <= 0 {
		return fmt.Errorf("scan_timeout must be positive, got %s", c.ScanTimeout)
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect_timeout must be positive, got %s", c.ConnectTimeout)
	}
	if !slices.Contains(OutputFormats, strings.ToLower(c.OutputFormat)) {
		return fmt.Errorf("unsupported output format %q (supported: %s)", c.OutputFormat, strings.Join(OutputFormats, ", "))
	}
	if len(c.Filter.ServiceIDs) > 0 {
		if _, err := device.ValidateUUID(c.Filter.ServiceIDs...); err != nil {
			return fmt.Errorf("filter services: %w", err)
		}
	}
	return nil
}

// DeviceFilter returns the configured filter, or the default heart-rate
// filter when none is configured
func (c *Config) DeviceFilter() device.DeviceFilter {
	if c.Filter.IsEmpty() {
		return device.DefaultFilter()
	}
	return c.Filter
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
