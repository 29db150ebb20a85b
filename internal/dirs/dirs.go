// Package dirs provides XDG Base Directory Specification compliant paths
// for all prdloop directories.
package dirs

import (
	"os"
	"path/filepath"
)

// LocalDirName is the per-project configuration directory.
const LocalDirName = ".prdloop"

// ConfigDir returns the prdloop configuration directory.
// Resolution order: PRDLOOP_CONFIG_DIR > XDG_CONFIG_HOME/prdloop > ~/.config/prdloop.
func ConfigDir() string {
	if dir := os.Getenv("PRDLOOP_CONFIG_DIR"); dir != "" {
		return dir
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "prdloop")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "prdloop")
	}
	return filepath.Join(home, ".config", "prdloop")
}

// StateDir returns the prdloop state directory.
// Resolution order: PRDLOOP_STATE_DIR > XDG_STATE_HOME/prdloop > ~/.local/state/prdloop.
func StateDir() string {
	if dir := os.Getenv("PRDLOOP_STATE_DIR"); dir != "" {
		return dir
	}
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "prdloop")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".local", "state", "prdloop")
	}
	return filepath.Join(home, ".local", "state", "prdloop")
}

// LocalDir returns the project-local config directory under workDir if it
// exists, or "" otherwise.
func LocalDir(workDir string) string {
	candidate := filepath.Join(workDir, LocalDirName)
	if info, err := os.Stat(candidate); err == nil && info.IsDir() {
		return candidate
	}
	return ""
}
