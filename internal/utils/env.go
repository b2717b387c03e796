package utils

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// ProjectMarkers identify the directory that holds .env and inkpilot.toml.
var ProjectMarkers = []string{"inkpilot.toml", "go.mod"}

// FindProjectRoot walks up from the working directory to the first directory
// containing one of ProjectMarkers.
func FindProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		for _, marker := range ProjectMarkers {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", os.ErrNotExist
}

// LoadEnv loads <project root>/.env without overriding variables that are
// already set.
func LoadEnv() error {
	root, err := FindProjectRoot()
	if err != nil {
		return err
	}
	return godotenv.Load(filepath.Join(root, ".env"))
}

// DefaultConfigPath returns <project root>/inkpilot.toml, or "" outside a project.
func DefaultConfigPath() string {
	root, err := FindProjectRoot()
	if err != nil {
		return ""
	}
	p := filepath.Join(root, "inkpilot.toml")
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}
