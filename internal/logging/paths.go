package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default log directory (~/.obsidx/logs/).
// Falls back to the temp directory if the home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".obsidx", "logs")
	}
	return filepath.Join(home, ".obsidx", "logs")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "obsidx.log")
}

// EnsureLogDir creates the default log directory if needed.
func EnsureLogDir() error {
	return os.MkdirAll(DefaultLogDir(), 0o755)
}
