package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintStatus(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		content     string
		write       bool
		want        []string
		wantRemoved bool
	}{
		{
			name: "no session file",
			want: []string{"No active prdloop sessions"},
		},
		{
			name:        "corrupted file",
			write:       true,
			content:     "{not json",
			want:        []string{"corrupted session file, removed"},
			wantRemoved: true,
		},
		{
			name:        "stale pid",
			write:       true,
			content:     `{"prd_path":"/work/prd.json","working_dir":"/work","pid":0}`,
			want:        []string{"stale session file, removed"},
			wantRemoved: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "session.json")
			if tt.write {
				require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))
			}

			var buf bytes.Buffer
			require.NoError(t, printStatus(&buf, path, now))
			for _, s := range tt.want {
				assert.Contains(t, buf.String(), s)
			}
			if tt.wantRemoved {
				assert.NoFileExists(t, path)
			}
		})
	}
}

func TestPrintStatus_Active(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "session.json")
	started := time.Date(2026, 3, 1, 11, 55, 0, 0, time.UTC)
	require.NoError(t, writeSessionFile(path, sessionInfo{
		RunID:      "run-42",
		PRDPath:    "/work/prd.json",
		WorkingDir: "/work",
		StartedAt:  started.Format(time.RFC3339),
		PID:        os.Getpid(),
	}))

	var buf bytes.Buffer
	require.NoError(t, printStatus(&buf, path, started.Add(5*time.Minute)))

	output := buf.String()
	assert.Contains(t, output, "Active prdloop session:")
	assert.Contains(t, output, "PRD:         /work/prd.json")
	assert.Contains(t, output, "Run:         run-42")
	assert.Contains(t, output, "(5m 0s ago)")
	assert.FileExists(t, path)
}

func TestIsProcessRunning(t *testing.T) {
	assert.True(t, isProcessRunning(os.Getpid()))
	assert.False(t, isProcessRunning(0))
	assert.False(t, isProcessRunning(-1))
}
