//go:build prod

package database

import (
	"log/slog"
	"os"
	"path/filepath"
)

const dbFile = "inkpilot.db"

// GetDefaultDBPath places the database under the user's config directory,
// falling back to the working directory.
func GetDefaultDBPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		slog.Warn("user config dir unavailable, using working directory", "error", err)
		return dbFile
	}
	dir := filepath.Join(base, "inkpilot")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Warn("create data dir", "dir", dir, "error", err)
		return dbFile
	}
	return filepath.Join(dir, dbFile)
}

func IsDevelopment() bool {
	return false
}
