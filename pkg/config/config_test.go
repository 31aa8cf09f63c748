package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/gattq/internal/gatt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "table", cfg.OutputFormat)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 10*time.Second, cfg.OperationTimeout)
	assert.Equal(t, 10*time.Millisecond, cfg.WriteChunkDelay)
	assert.Equal(t, 0, cfg.MaxFrameSize)
	assert.Equal(t, 128, cfg.NotificationBacklog)
	assert.Equal(t, 16, cfg.ProfileCacheSize)
	assert.False(t, cfg.AutoReconnect)
	assert.Equal(t, "1m", cfg.PreferredPHY)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		want     logrus.Level
	}{
		{name: "creates logger with debug level", logLevel: "debug", want: logrus.DebugLevel},
		{name: "creates logger with info level", logLevel: "info", want: logrus.InfoLevel},
		{name: "creates logger with warn level", logLevel: "warn", want: logrus.WarnLevel},
		{name: "creates logger with error level", logLevel: "error", want: logrus.ErrorLevel},
		{name: "falls back to info on garbage", logLevel: "loud", want: logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.logLevel}

			logger := cfg.NewLogger()

			assert.NotNil(t, logger)
			assert.Equal(t, tt.want, logger.GetLevel())

			// Verify formatter is set correctly
			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			assert.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gattq.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
operation_timeout: 2s
write_chunk_delay: 25ms
max_frame_size: 244
auto_reconnect: true
preferred_phy: 2m
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 2*time.Second, cfg.OperationTimeout)
	assert.Equal(t, 25*time.Millisecond, cfg.WriteChunkDelay)
	assert.Equal(t, 244, cfg.MaxFrameSize)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout, "unset keys MUST keep their defaults")
	assert.Equal(t, 128, cfg.NotificationBacklog)

	assert.Equal(t, gatt.ConnectOptions{AutoReconnect: true, PHY: gatt.PHY2M}, cfg.ConnectOptions())
	assert.Equal(t, gatt.WriteOptions{MaxFrameSize: 244, InterChunkDelay: 25 * time.Millisecond, WithResponse: true}, cfg.WriteOptions(true))
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config")

	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("log_level: [unterminated"), 0o600))
	_, err = Load(broken)
	assert.ErrorContains(t, err, "failed to parse config")

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("preferred_phy: 4m\nprofile_cache_size: -1\n"), 0o600))
	_, err = Load(invalid)
	assert.ErrorContains(t, err, "preferred_phy")
	assert.ErrorContains(t, err, "profile_cache_size")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestConfig_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{name: "unknown log level", mutate: func(c *Config) { c.LogLevel = "chatty" }, field: "log_level"},
		{name: "unknown output format", mutate: func(c *Config) { c.OutputFormat = "xml" }, field: "output_format"},
		{name: "zero connect timeout", mutate: func(c *Config) { c.ConnectTimeout = 0 }, field: "connect_timeout"},
		{name: "zero operation timeout", mutate: func(c *Config) { c.OperationTimeout = 0 }, field: "operation_timeout"},
		{name: "negative chunk delay", mutate: func(c *Config) { c.WriteChunkDelay = -time.Millisecond }, field: "write_chunk_delay"},
		{name: "negative frame size", mutate: func(c *Config) { c.MaxFrameSize = -1 }, field: "max_frame_size"},
		{name: "zero backlog", mutate: func(c *Config) { c.NotificationBacklog = 0 }, field: "notification_backlog"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.field)
		})
	}
}

func BenchmarkDefaultConfig(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = DefaultConfig()
	}
}
