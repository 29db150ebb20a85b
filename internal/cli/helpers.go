package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/alexander-akhmetov/prdloop/internal/config"
	"github.com/alexander-akhmetov/prdloop/internal/dirs"
)

// resolveWorkingDir returns the provided dir or falls back to the current
// working directory.
func resolveWorkingDir(dir string) (string, error) {
	if dir != "" {
		return filepath.Abs(dir)
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	return wd, nil
}

// resolvePath makes p absolute relative to wd. Empty stays empty.
func resolvePath(wd, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(wd, p)
}

// loadConfig loads configuration for a project in wd, applies flags and
// validates the result.
func loadConfig(wd string, flags config.CLIFlags) (*config.Config, error) {
	cfg, err := config.LoadWithDirs(dirs.ConfigDir(), dirs.LocalDir(wd))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.ApplyCLIFlags(flags)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func formatElapsed(d time.Duration) string {
	total := int(d.Seconds())
	if total < 60 {
		return fmt.Sprintf("%ds", total)
	}
	m := total / 60
	s := total % 60
	if m < 60 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := m / 60
	m %= 60
	return fmt.Sprintf("%dh %dm", h, m)
}

func progressBar(done, total, width int) string {
	if total <= 0 || width <= 0 {
		return ""
	}
	filled := done * width / total
	bar := make([]rune, width)
	for i := range bar {
		if i < filled {
			bar[i] = '█'
		} else {
			bar[i] = '░'
		}
	}
	return string(bar)
}
