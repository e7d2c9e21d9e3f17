package config

import (
	"os"
	"path/filepath"
)

// HomeEnv overrides the application directory (used by tests and portable installs).
const HomeEnv = "TIDAL_HOME"

// GetTidalDir returns the application directory, e.g. ~/.config/tidal.
func GetTidalDir() string {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir
	}
	base, err := os.UserConfigDir()
	if err != nil || base == "" {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".tidal")
	}
	return filepath.Join(base, "tidal")
}

// GetStateDir holds the history database.
func GetStateDir() string {
	return filepath.Join(GetTidalDir(), "state")
}

// GetLogsDir holds debug logs.
func GetLogsDir() string {
	return filepath.Join(GetTidalDir(), "logs")
}

// GetRuntimeDir holds the lock, PID, port and token files.
func GetRuntimeDir() string {
	return filepath.Join(GetTidalDir(), "run")
}

// EnsureDirs creates every application directory.
func EnsureDirs() error {
	for _, dir := range []string{GetTidalDir(), GetStateDir(), GetLogsDir(), GetRuntimeDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
