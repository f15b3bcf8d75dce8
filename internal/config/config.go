// Package config handles configuration loading, validation, and management for razerkbd.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"razerkbd/internal/logging"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete daemon configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Devices lists the keyboards to manage.
	Devices []DeviceConfig `toml:"devices" json:"devices" yaml:"devices"`

	// Keyboard tunes key event processing.
	Keyboard KeyboardConfig `toml:"keyboard" json:"keyboard" yaml:"keyboard"`

	// Storage configuration for binding persistence.
	Storage StorageConfig `toml:"storage" json:"storage" yaml:"storage"`

	// DBus configuration for the session bus service.
	DBus DBusConfig `toml:"dbus" json:"dbus" yaml:"dbus"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// Metrics configuration for the HTTP scrape endpoint.
	Metrics MetricsConfig `toml:"metrics" json:"metrics" yaml:"metrics"`

	mu sync.RWMutex `toml:"-" json:"-" yaml:"-"`
}

// DeviceConfig describes one keyboard.
type DeviceConfig struct {
	// Serial identifies the device on D-Bus.
	Serial string `toml:"serial" json:"serial" yaml:"serial"`

	// Name is used for the virtual keyboard, "<name> (mapped)".
	Name string `toml:"name" json:"name" yaml:"name"`

	// EventFiles are the /dev/input event files to grab.
	EventFiles []string `toml:"event_files" json:"event_files" yaml:"event_files"`

	// SysfsPath is the driver's device directory holding game_led_state
	// and matrix_brightness. Empty keeps that state in memory.
	SysfsPath string `toml:"sysfs_path" json:"sysfs_path" yaml:"sysfs_path"`
}

// KeyboardConfig tunes the key manager.
type KeyboardConfig struct {
	// KeyTTLMs is how long a pressed key stays in the ripple buffer.
	KeyTTLMs int `toml:"key_ttl_ms" json:"key_ttl_ms" yaml:"key_ttl_ms"`

	// StopTimeoutMs bounds how long shutdown waits for the key watcher.
	StopTimeoutMs int `toml:"stop_timeout_ms" json:"stop_timeout_ms" yaml:"stop_timeout_ms"`

	// DispatchWorkers is the number of playback goroutines per device.
	DispatchWorkers int `toml:"dispatch_workers" json:"dispatch_workers" yaml:"dispatch_workers"`

	// DispatchQueue is the playback queue length per device.
	DispatchQueue int `toml:"dispatch_queue" json:"dispatch_queue" yaml:"dispatch_queue"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	// Path is the SQLite database file.
	Path string `toml:"path" json:"path" yaml:"path"`
}

// DBusConfig holds session bus configuration.
type DBusConfig struct {
	Enabled     bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	ServiceName string `toml:"service_name" json:"service_name" yaml:"service_name"`
}

// MetricsConfig holds the Prometheus endpoint configuration.
type MetricsConfig struct {
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// Address is the listen address, such as 127.0.0.1:9464.
	Address string `toml:"address" json:"address" yaml:"address"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is text or json.
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is stdout, stderr, file or both.
	Output string `toml:"output" json:"output" yaml:"output"`

	FilePath   string `toml:"file_path" json:"file_path" yaml:"file_path"`
	MaxSizeMB  int    `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	dir := DataDir()
	return &Config{
		Version: Version,
		Keyboard: KeyboardConfig{
			KeyTTLMs:        2000,
			StopTimeoutMs:   2000,
			DispatchWorkers: 4,
			DispatchQueue:   128,
		},
		Storage: StorageConfig{
			Path: filepath.Join(dir, "bindings.db"),
		},
		DBus: DBusConfig{
			Enabled:     true,
			ServiceName: "org.razer",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(StateDir(), "razerkbd.log"),
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Metrics: MetricsConfig{
			Address: "127.0.0.1:9464",
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// Load reads configuration from the specified path.
// If the file doesn't exist, returns default configuration.
// Supports TOML, JSON, and YAML formats based on file extension.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg, err := readFile(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables are prefixed with RAZERKBD_ and use underscores.
func (c *Config) ApplyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v := os.Getenv("RAZERKBD_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}

	if v := os.Getenv("RAZERKBD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("RAZERKBD_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("RAZERKBD_LOG_OUTPUT"); v != "" {
		c.Logging.Output = v
	}
	if v := os.Getenv("RAZERKBD_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}

	if v := os.Getenv("RAZERKBD_DBUS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.DBus.Enabled = b
		}
	}

	if v := os.Getenv("RAZERKBD_METRICS_ADDR"); v != "" {
		c.Metrics.Enabled = true
		c.Metrics.Address = v
	}

	// A single device can be configured entirely from the environment.
	if v := os.Getenv("RAZERKBD_EVENT_FILES"); v != "" {
		if len(c.Devices) == 0 {
			c.Devices = append(c.Devices, DeviceConfig{Serial: "XX0000000000", Name: "Razer Keyboard"})
		}
		c.Devices[0].EventFiles = splitList(v)
	}
	if v := os.Getenv("RAZERKBD_SYSFS_PATH"); v != "" && len(c.Devices) > 0 {
		c.Devices[0].SysfsPath = v
	}
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	clone := &Config{
		Version:  c.Version,
		Keyboard: c.Keyboard,
		Storage:  c.Storage,
		DBus:     c.DBus,
		Logging:  c.Logging,
		Metrics:  c.Metrics,
	}
	for _, d := range c.Devices {
		d.EventFiles = append([]string{}, d.EventFiles...)
		clone.Devices = append(clone.Devices, d)
	}
	return clone
}

// KeyTTL returns the ripple buffer TTL.
func (c *Config) KeyTTL() time.Duration {
	return time.Duration(c.Keyboard.KeyTTLMs) * time.Millisecond
}

// StopTimeout returns the key watcher stop timeout.
func (c *Config) StopTimeout() time.Duration {
	return time.Duration(c.Keyboard.StopTimeoutMs) * time.Millisecond
}

// EnsureDirectories creates the directories the daemon writes to.
func (c *Config) EnsureDirectories() error {
	dirs := []string{filepath.Dir(c.Storage.Path)}
	if c.Logging.Output == "file" || c.Logging.Output == "both" {
		dirs = append(dirs, filepath.Dir(c.Logging.FilePath))
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// SaveConfig writes the configuration in the format implied by the path's
// extension, TOML by default.
func SaveConfig(cfg *Config, path string) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	c, _ := codecFor(path)
	data, err := c.encode(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// LoggerConfig converts the logging section for logging.New.
func (l LoggingConfig) LoggerConfig() (*logging.Config, error) {
	level, err := logging.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(l.Format)
	if err != nil {
		return nil, err
	}
	cfg := logging.DefaultConfig()
	cfg.Level = level
	cfg.Format = format
	cfg.Output = l.Output
	cfg.FilePath = l.FilePath
	cfg.MaxSize = int64(l.MaxSizeMB)
	cfg.MaxBackups = l.MaxBackups
	return cfg, nil
}
