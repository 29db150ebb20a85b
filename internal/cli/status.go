package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alexander-akhmetov/prdloop/internal/dirs"
	"github.com/alexander-akhmetov/prdloop/internal/lock"
)

type sessionInfo struct {
	RunID      string `json:"run_id,omitempty"`
	PRDPath    string `json:"prd_path"`
	WorkingDir string `json:"working_dir"`
	StartedAt  string `json:"started_at"`
	PID        int    `json:"pid"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the active loop session",
	Long: `Show the prdloop session that is currently running, if any:
the PRD being worked on, its working directory, the run id, the start
time and the process id. Stale session files are removed.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return printStatus(cmd.OutOrStdout(), sessionFilePath(), time.Now())
	},
}

func printStatus(out io.Writer, path string, now time.Time) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintln(out, "No active prdloop sessions")
			return nil
		}
		return fmt.Errorf("failed to read session file: %w", err)
	}

	var session sessionInfo
	if err := json.Unmarshal(data, &session); err != nil {
		fmt.Fprintln(out, "No active prdloop sessions (corrupted session file, removed)")
		os.Remove(path)
		return nil //nolint:nilerr // a corrupted file is not a user-facing error
	}

	if !isProcessRunning(session.PID) {
		fmt.Fprintln(out, "No active prdloop sessions (stale session file, removed)")
		os.Remove(path)
		return nil
	}

	fmt.Fprintln(out, "Active prdloop session:")
	fmt.Fprintf(out, "  PRD:         %s\n", session.PRDPath)
	fmt.Fprintf(out, "  Working dir: %s\n", session.WorkingDir)
	if session.RunID != "" {
		fmt.Fprintf(out, "  Run:         %s\n", session.RunID)
	}
	if startedAt, err := time.Parse(time.RFC3339, session.StartedAt); err == nil {
		fmt.Fprintf(out, "  Started:     %s (%s ago)\n", startedAt.Format("15:04:05"), formatElapsed(now.Sub(startedAt)))
	} else {
		fmt.Fprintln(out, "  Started:     unknown")
	}
	fmt.Fprintf(out, "  PID:         %d\n", session.PID)
	return nil
}

func isProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

func sessionFilePath() string {
	return filepath.Join(dirs.StateDir(), "session.json")
}

func writeSessionFile(path string, s sessionInfo) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session data: %w", err)
	}
	return lock.AtomicWrite(path, data)
}
