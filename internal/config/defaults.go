package config

import (
	"os"
	"path/filepath"
)

// DataDir returns the data directory, ~/.local/share/razerkbd by default.
// RAZERKBD_DATA_DIR overrides it.
func DataDir() string {
	if dir := os.Getenv("RAZERKBD_DATA_DIR"); dir != "" {
		return dir
	}
	return xdgDir("XDG_DATA_HOME", ".local", "share")
}

// ConfigDir returns ~/.config/razerkbd or its XDG equivalent.
func ConfigDir() string {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// StateDir returns ~/.local/state/razerkbd or its XDG equivalent.
func StateDir() string {
	return xdgDir("XDG_STATE_HOME", ".local", "state")
}

func xdgDir(env string, fallback ...string) string {
	if base := os.Getenv(env); base != "" {
		return filepath.Join(base, "razerkbd")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "razerkbd")
	}
	return filepath.Join(append(append([]string{home}, fallback...), "razerkbd")...)
}

// SupportedConfigFormats returns the list of supported config file formats.
func SupportedConfigFormats() []string {
	return []string{
		"toml",
		"json",
		"yaml",
		"yml",
	}
}

// FindConfigFile searches the current directory and then the config
// directory for config.<ext>. It returns "" if none exists.
func FindConfigFile() string {
	for _, dir := range []string{".", ConfigDir()} {
		for _, ext := range SupportedConfigFormats() {
			path := filepath.Join(dir, "config."+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}
