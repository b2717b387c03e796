package utils

import (
	"os"
	"path/filepath"
)

func DirectoryExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// HasGitRepo reports whether path is the root of a non-bare git repository.
func HasGitRepo(path string) bool {
	return DirectoryExists(filepath.Join(path, ".git"))
}
