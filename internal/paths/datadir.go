package paths

import (
	"os"
	"path/filepath"
	"strings"
)

// DataDirEnv overrides the default data directory when set.
const DataDirEnv = "P2PCHAT_DATA_DIR"

// DefaultDataDir returns a per-user directory appropriate for persisting node state.
// Precedence: $P2PCHAT_DATA_DIR, then os.UserConfigDir, then ./.p2pchat.
func DefaultDataDir() string {
	if v := strings.TrimSpace(os.Getenv(DataDirEnv)); v != "" {
		return filepath.Clean(v)
	}
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return filepath.Join(dir, "p2pchat")
	}
	return ".p2pchat"
}

// EnsureDir makes sure dir exists and returns the cleaned path.
func EnsureDir(dir string) (string, error) {
	dir = filepath.Clean(dir)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}
