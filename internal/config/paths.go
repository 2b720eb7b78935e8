package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Platform identifiers.
const (
	platformLinux  = "linux"
	platformDarwin = "darwin"
)

// Application directory name used across all platforms.
const appName = "edgeledger"

// File names inside the config and data directories.
const (
	configFileName = "config.toml"
	dbFileName     = "edgeledger.db"
	pidFileName    = "edgeledger.pid"
)

// DefaultConfigDir returns the platform-specific directory for config files.
// On Linux, respects XDG_CONFIG_HOME (defaults to ~/.config/edgeledger).
// On macOS, uses ~/Library/Application Support/edgeledger.
// Other platforms fall back to ~/.config/edgeledger.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, appName)
		}

		return filepath.Join(home, ".config", appName)
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".config", appName)
	}
}

// DefaultDataDir returns the platform-specific directory for application data
// (the record database and the daemon PID file).
// On Linux, respects XDG_DATA_HOME (defaults to ~/.local/share/edgeledger).
// On macOS, config and data share one directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, appName)
		}

		return filepath.Join(home, ".local", "share", appName)
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".local", "share", appName)
	}
}

// DefaultConfigPath returns the full path to the default config file.
// This is used as the fallback when neither EDGELEDGER_CONFIG nor
// --config is specified.
func DefaultConfigPath() string {
	return joinIfDir(DefaultConfigDir(), configFileName)
}

// DefaultDBPath returns the full path to the default record database.
func DefaultDBPath() string {
	return joinIfDir(DefaultDataDir(), dbFileName)
}

// PIDPath returns the daemon PID file path that lives next to the database.
// Keying it on the database directory lets two daemons serve two databases.
func PIDPath(dbPath string) string {
	if dbPath == "" {
		return ""
	}

	return filepath.Join(filepath.Dir(dbPath), pidFileName)
}

func joinIfDir(dir, name string) string {
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, name)
}
