package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, logrus.InfoLevel, cfg.LogLevel)
	assert.Equal(t, 10*time.Second, cfg.ScanTimeout)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 5*time.Second, cfg.GracePeriod)
	assert.Equal(t, 200*time.Millisecond, cfg.WriteInterval)
	assert.Equal(t, 5, cfg.MaxWriteAttempts)
	assert.Equal(t, "table", cfg.OutputFormat)
	assert.Equal(t, "hci0", cfg.Adapter)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name     string
		logLevel logrus.Level
	}{
		{
			name:     "creates logger with debug level",
			logLevel: logrus.DebugLevel,
		},
		{
			name:     "creates logger with info level",
			logLevel: logrus.InfoLevel,
		},
		{
			name:     "creates logger with error level",
			logLevel: logrus.ErrorLevel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				LogLevel: tt.logLevel,
			}

			logger := cfg.NewLogger()

			assert.NotNil(t, logger)
			assert.Equal(t, tt.logLevel, logger.GetLevel())

			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			assert.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}

func TestConfig_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		valid  bool
	}{
		{name: "defaults are valid", mutate: func(*Config) {}, valid: true},
		{name: "json format is valid", mutate: func(c *Config) { c.OutputFormat = "json" }, valid: true},
		{name: "zero grace is valid", mutate: func(c *Config) { c.GracePeriod = 0 }, valid: true},
		{name: "unknown format", mutate: func(c *Config) { c.OutputFormat = "xml" }, valid: false},
		{name: "zero ack timeout", mutate: func(c *Config) { c.AckTimeout = 0 }, valid: false},
		{name: "no write attempts", mutate: func(c *Config) { c.MaxWriteAttempts = 0 }, valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if tt.valid {
				assert.NoError(t, cfg.Validate())
			} else {
				assert.Error(t, cfg.Validate())
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boks.yaml")
	require.NoError(t, os.WriteFile(path, []byte("grace_period: 1m\nack_timeout: 300ms\nadapter: hci1\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, cfg.GracePeriod, "file values MUST override defaults")
	assert.Equal(t, 300*time.Millisecond, cfg.AckTimeout)
	assert.Equal(t, "hci1", cfg.Adapter)
	assert.Equal(t, 5, cfg.MaxWriteAttempts, "absent values MUST keep defaults")

	missing, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), missing, "missing file MUST yield defaults")
}

func TestConfig_Options(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GracePeriod = time.Minute
	cfg.AckTimeout = 250 * time.Millisecond

	ro := cfg.RemoteOptions()
	assert.Equal(t, time.Minute, ro.Pool.GracePeriod)
	assert.Equal(t, 250*time.Millisecond, ro.Session.AckTimeout)
	assert.Equal(t, 30*time.Second, cfg.DiscoveryOptions().ProbeTimeout)
	assert.Equal(t, "hci0", cfg.BluezOptions().Adapter)
}

func BenchmarkConfig_NewLogger(b *testing.B) {
	cfg := DefaultConfig()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = cfg.NewLogger()
	}
}
