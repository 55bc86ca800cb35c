package config

import (
	"os"
	"path/filepath"
)

// GetPledoDir returns the configuration root. PLEDO_CONFIG_DIR wins, then
// $XDG_CONFIG_HOME/pledo, then ~/.config/pledo.
func GetPledoDir() string {
	if dir := os.Getenv("PLEDO_CONFIG_DIR"); dir != "" {
		return dir
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "pledo")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "pledo")
	}
	return filepath.Join(home, ".config", "pledo")
}

// GetStateDir holds the catalog database.
func GetStateDir() string {
	return filepath.Join(GetPledoDir(), "state")
}

// GetLogsDir holds debug logs.
func GetLogsDir() string {
	return filepath.Join(GetPledoDir(), "logs")
}

// GetRuntimeDir holds the pid, port and lock files of a running daemon.
func GetRuntimeDir() string {
	return filepath.Join(GetPledoDir(), "run")
}

// GetCatalogPath returns the sqlite database path.
func GetCatalogPath() string {
	return filepath.Join(GetStateDir(), "pledo.db")
}

// EnsureDirs creates every directory pledo writes to.
func EnsureDirs() error {
	for _, dir := range []string{GetPledoDir(), GetStateDir(), GetLogsDir(), GetRuntimeDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
