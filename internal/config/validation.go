package config

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// IsWarning returns true if this is a non-fatal validation issue.
func (e *ValidationError) IsWarning() bool {
	// A device without event files still serves D-Bus and bindings.
	return strings.HasSuffix(e.Field, ".event_files")
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Unwrap lets errors.Is match ErrInvalidConfig.
func (e ValidationErrors) Unwrap() error {
	return ErrInvalidConfig
}

// Warnings returns only warning-level validation errors.
func (e ValidationErrors) Warnings() ValidationErrors {
	var warnings ValidationErrors
	for _, err := range e {
		if err.IsWarning() {
			warnings = append(warnings, err)
		}
	}
	return warnings
}

// Errors returns only error-level validation errors.
func (e ValidationErrors) Errors() ValidationErrors {
	var errs ValidationErrors
	for _, err := range e {
		if !err.IsWarning() {
			errs = append(errs, err)
		}
	}
	return errs
}

// HasErrors returns true if there are any non-warning errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e.Errors()) > 0
}

// ErrInvalidConfig is returned when validation fails.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidateConfig checks every section. Warnings alone do not fail
// validation; use CheckConfig to see them.
func ValidateConfig(c *Config) error {
	errs := CheckConfig(c)
	if errs.HasErrors() {
		return errs.Errors()
	}
	return nil
}

// CheckConfig returns every validation issue, warnings included.
func CheckConfig(c *Config) ValidationErrors {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateDevices(c.Devices)...)
	errs = append(errs, validateKeyboard(&c.Keyboard)...)
	errs = append(errs, validateStorage(&c.Storage)...)
	errs = append(errs, validateDBus(&c.DBus)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	errs = append(errs, validateMetrics(&c.Metrics)...)
	return errs
}

func validateDevices(devices []DeviceConfig) ValidationErrors {
	var errs ValidationErrors
	seen := make(map[string]bool)

	for i, d := range devices {
		field := fmt.Sprintf("devices[%d]", i)
		if d.Serial == "" {
			errs = append(errs, ValidationError{Field: field + ".serial", Message: "required field is missing"})
		} else if seen[d.Serial] {
			errs = append(errs, ValidationError{Field: field + ".serial", Message: fmt.Sprintf("duplicate serial %s", d.Serial)})
		}
		seen[d.Serial] = true

		if strings.ContainsAny(d.Serial, "/.- ") {
			errs = append(errs, ValidationError{Field: field + ".serial", Message: "serial must be usable in a D-Bus object path"})
		}
		if len(d.EventFiles) == 0 {
			errs = append(errs, ValidationError{Field: field + ".event_files", Message: "no event files, keys will not be watched"})
		}
		for _, f := range d.EventFiles {
			if !filepath.IsAbs(f) {
				errs = append(errs, ValidationError{Field: field + ".event_files", Message: fmt.Sprintf("event file must be absolute: %s", f)})
			}
		}
	}
	return errs
}

func validateKeyboard(k *KeyboardConfig) ValidationErrors {
	var errs ValidationErrors
	if k.KeyTTLMs < 1 || k.KeyTTLMs > 60000 {
		errs = append(errs, ValidationError{Field: "keyboard.key_ttl_ms", Message: "value must be between 1 and 60000"})
	}
	if k.StopTimeoutMs < 1 {
		errs = append(errs, ValidationError{Field: "keyboard.stop_timeout_ms", Message: "must be positive"})
	}
	if k.DispatchWorkers < 1 || k.DispatchWorkers > 64 {
		errs = append(errs, ValidationError{Field: "keyboard.dispatch_workers", Message: "value must be between 1 and 64"})
	}
	if k.DispatchQueue < 1 {
		errs = append(errs, ValidationError{Field: "keyboard.dispatch_queue", Message: "must be positive"})
	}
	return errs
}

func validateStorage(s *StorageConfig) ValidationErrors {
	if s.Path == "" {
		return ValidationErrors{{Field: "storage.path", Message: "required field is missing"}}
	}
	return nil
}

func validateDBus(d *DBusConfig) ValidationErrors {
	if d.Enabled && d.ServiceName == "" {
		return ValidationErrors{{Field: "dbus.service_name", Message: "required when dbus is enabled"}}
	}
	return nil
}

func validateMetrics(m *MetricsConfig) ValidationErrors {
	if !m.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(m.Address); err != nil {
		return ValidationErrors{{Field: "metrics.address", Message: fmt.Sprintf("invalid listen address: %v", err)}}
	}
	return nil
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: "file path is required when output writes a file",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid log output: %s (valid: stdout, stderr, file, both)", l.Output),
		})
	}

	if l.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Message: "max size must be at least 1 MB",
		})
	}
	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Message: "max backups cannot be negative",
		})
	}

	return errs
}
