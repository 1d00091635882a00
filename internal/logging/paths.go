package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns ~/.amanrag/logs, or a temp dir without a home.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".amanrag", "logs")
	}
	return filepath.Join(home, ".amanrag", "logs")
}

// DefaultLogPath returns the default server log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "server.log")
}
