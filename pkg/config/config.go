package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/gattq/internal/gatt"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	LogLevel     string `yaml:"log_level" json:"log_level" default:"info"`
	OutputFormat string `yaml:"output_format" json:"output_format" default:"table"`

	ConnectTimeout   time.Duration `yaml:"connect_timeout" json:"connect_timeout" default:"30s"`
	OperationTimeout time.Duration `yaml:"operation_timeout" json:"operation_timeout" default:"10s"`

	// WriteChunkDelay paces unacknowledged fragmented writes
	WriteChunkDelay time.Duration `yaml:"write_chunk_delay" json:"write_chunk_delay" default:"10ms"`
	// MaxFrameSize bounds one write; 0 derives it from the MTU
	MaxFrameSize int `yaml:"max_frame_size" json:"max_frame_size" default:"0"`

	NotificationBacklog int `yaml:"notification_backlog" json:"notification_backlog" default:"128"`
	ProfileCacheSize    int `yaml:"profile_cache_size" json:"profile_cache_size" default:"16"`

	AutoReconnect bool   `yaml:"auto_reconnect" json:"auto_reconnect" default:"false"`
	PreferredPHY  string `yaml:"preferred_phy" json:"preferred_phy" default:"1m"`
}

var outputFormats = []string{"table", "json"}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML file over the defaults. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges and enumerations
func (c *Config) Validate() error {
	var errs []error

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if !contains(outputFormats, c.OutputFormat) {
		errs = append(errs, fmt.Errorf("output_format: must be one of %s, got %q", strings.Join(outputFormats, ", "), c.OutputFormat))
	}
	if c.ConnectTimeout <= 0 {
		errs = append(errs, fmt.Errorf("connect_timeout: must be > 0, got %s", c.ConnectTimeout))
	}
	if c.OperationTimeout <= 0 {
		errs = append(errs, fmt.Errorf("operation_timeout: must be > 0, got %s", c.OperationTimeout))
	}
	if c.WriteChunkDelay < 0 {
		errs = append(errs, fmt.Errorf("write_chunk_delay: must be >= 0, got %s", c.WriteChunkDelay))
	}
	if c.MaxFrameSize < 0 {
		errs = append(errs, fmt.Errorf("max_frame_size: must be >= 0, got %d", c.MaxFrameSize))
	}
	if c.NotificationBacklog <= 0 {
		errs = append(errs, fmt.Errorf("notification_backlog: must be > 0, got %d", c.NotificationBacklog))
	}
	if c.ProfileCacheSize <= 0 {
		errs = append(errs, fmt.Errorf("profile_cache_size: must be > 0, got %d", c.ProfileCacheSize))
	}
	if _, ok := gatt.ParsePHY(c.PreferredPHY); !ok {
		errs = append(errs, fmt.Errorf("preferred_phy: must be one of 1m, 2m, coded, got %q", c.PreferredPHY))
	}

	return errors.Join(errs...)
}

// Level returns the parsed log level, InfoLevel when unparsable
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}

// ConnectOptions derives link parameters
func (c *Config) ConnectOptions() gatt.ConnectOptions {
	phy, _ := gatt.ParsePHY(c.PreferredPHY)
	return gatt.ConnectOptions{AutoReconnect: c.AutoReconnect, PHY: phy}
}

// WriteOptions derives write framing for the given acknowledgment mode
func (c *Config) WriteOptions(withResponse bool) gatt.WriteOptions {
	return gatt.WriteOptions{
		MaxFrameSize:    c.MaxFrameSize,
		InterChunkDelay: c.WriteChunkDelay,
		WithResponse:    withResponse,
	}
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
