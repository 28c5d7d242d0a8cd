package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/srg/boks/internal/configsync"
	goble "github.com/srg/boks/internal/device/go-ble"
	"github.com/srg/boks/internal/discovery"
	"github.com/srg/boks/internal/platform/bluez"
	"github.com/srg/boks/internal/pool"
	"github.com/srg/boks/internal/remote"
	"github.com/srg/boks/internal/session"
)

// Config holds application configuration
type Config struct {
	LogLevel     logrus.Level  `json:"log_level" yaml:"log_level"`
	ScanTimeout  time.Duration `json:"scan_timeout" yaml:"scan_timeout"`
	OutputFormat string        `json:"output_format" yaml:"output_format"`

	// ConnectTimeout bounds the wait for a session to become ready, both for
	// discovery probes and for one-shot commands.
	ConnectTimeout   time.Duration `json:"connect_timeout" yaml:"connect_timeout"`
	GracePeriod      time.Duration `json:"grace_period" yaml:"grace_period"`
	WriteInterval    time.Duration `json:"write_interval" yaml:"write_interval"`
	AckTimeout       time.Duration `json:"ack_timeout" yaml:"ack_timeout"`
	MaxWriteAttempts int           `json:"max_write_attempts" yaml:"max_write_attempts"`
	KnownDevices     int           `json:"known_devices" yaml:"known_devices"`

	PrefsPath   string `json:"prefs_path" yaml:"prefs_path"`
	MetricsAddr string `json:"metrics_addr" yaml:"metrics_addr"`
	Adapter     string `json:"adapter" yaml:"adapter"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	return &Config{
		LogLevel:         logrus.InfoLevel,
		ScanTimeout:      10 * time.Second,
		OutputFormat:     "table", // table, json
		ConnectTimeout:   30 * time.Second,
		GracePeriod:      5 * time.Second,
		WriteInterval:    200 * time.Millisecond,
		AckTimeout:       200 * time.Millisecond,
		MaxWriteAttempts: 5,
		KnownDevices:     32,
		PrefsPath:        DefaultPrefsPath(),
		Adapter:          "hci0",
	}
}

// DefaultPrefsPath is prefs.yaml under the user config directory.
func DefaultPrefsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "boks", "prefs.yaml")
}

// Load overlays the YAML file at path onto the defaults. A missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	switch c.OutputFormat {
	case "table", "json":
	default:
		return fmt.Errorf("unsupported output format %q (must be table or json)", c.OutputFormat)
	}
	if c.ConnectTimeout < 0 || c.GracePeriod < 0 || c.WriteInterval < 0 {
		return errors.New("durations must not be negative")
	}
	if c.AckTimeout <= 0 {
		return errors.New("ack_timeout must be positive")
	}
	if c.MaxWriteAttempts < 1 {
		return errors.New("max_write_attempts must be at least 1")
	}
	return nil
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.LogLevel)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}

func (c *Config) SessionOptions() session.Options {
	o := session.DefaultOptions()
	o.WriteInterval = c.WriteInterval
	o.AckTimeout = c.AckTimeout
	o.MaxWriteAttempts = c.MaxWriteAttempts
	return o
}

func (c *Config) RemoteOptions() remote.Options {
	return remote.Options{
		Pool:    pool.Options{GracePeriod: c.GracePeriod},
		Session: c.SessionOptions(),
	}
}

func (c *Config) DiscoveryOptions() discovery.Options {
	o := discovery.DefaultOptions()
	o.ProbeTimeout = c.ConnectTimeout
	return o
}

func (c *Config) SyncOptions() configsync.Options {
	o := configsync.DefaultOptions()
	o.ConnectTimeout = c.ConnectTimeout
	return o
}

func (c *Config) BLEOptions() goble.Options {
	return goble.DefaultOptions()
}

func (c *Config) BluezOptions() bluez.Options {
	return bluez.Options{Adapter: c.Adapter}
}
