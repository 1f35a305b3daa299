package config

import (
	"os"
	"path/filepath"
	"strings"
)

// DatabasePath resolves the SQLite file location. An empty value selects
// boq.db under $XDG_DATA_HOME/boq, or ~/.local/share/boq when that is unset.
func DatabasePath(configured string) string {
	if configured != "" {
		return ExpandPath(configured)
	}
	if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
		return filepath.Join(dataHome, "boq", "boq.db")
	}
	return ExpandPath("~/.local/share/boq/boq.db")
}

// ExpandPath expands a leading ~ and $VAR references.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = home + path[1:]
		}
	}
	return os.ExpandEnv(path)
}
