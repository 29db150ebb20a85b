package progress

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexander-akhmetov/prdloop/internal/event"
	"github.com/alexander-akhmetov/prdloop/internal/prd"
)

func fixedNow() func() time.Time {
	t := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}

func read(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestOpenWritesHeaderOnce(t *testing.T) {
	dir := t.TempDir()
	prdPath := filepath.Join(dir, "prd.json")

	l, err := Open(Config{PRDPath: prdPath, Name: "demo", Now: fixedNow()})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, DefaultFileName), l.Path())
	l.Printf("first %d", 1)
	require.NoError(t, l.Close())

	l, err = Open(Config{PRDPath: prdPath, Name: "demo", Now: fixedNow()})
	require.NoError(t, err)
	l.Printf("second")
	require.NoError(t, l.Close())

	content := read(t, l.Path())
	assert.Equal(t, 1, strings.Count(content, "# prdloop progress log"))
	assert.Contains(t, content, "PRD: demo")
	assert.Contains(t, content, "[2026-05-04 10:00:00] first 1")
	assert.Contains(t, content, "[2026-05-04 10:00:00] second")
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{})
	require.Error(t, err)
}

func TestLoggerEntries(t *testing.T) {
	var live strings.Builder
	path := filepath.Join(t.TempDir(), "log", "progress.txt")
	l, err := Open(Config{Path: path, RunID: "run-1", Writer: &live, Now: fixedNow()})
	require.NoError(t, err)

	l.RunStarted(10)
	l.Iteration(1, 10, "impl-001", "Scaffold")
	l.FilesChanged([]string{"a.go", "b.go"})
	l.FilesChanged(nil)
	l.Errorf("boom: %s", "x")
	l.Exit("no_tasks", "nothing left", 1, []string{"a.go"})
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	content := read(t, path)
	for _, want := range []string{
		"--- Run run-1 started ---",
		"Max iterations: 10",
		"--- Iteration 1/10 ---",
		"Task: impl-001 Scaffold",
		"Files changed: a.go, b.go",
		"ERROR: boom: x",
		"Stop reason: no_tasks",
		"Message: nothing left",
		"Duration: 0s",
	} {
		assert.Contains(t, content, want)
	}
	assert.Equal(t, content, live.String())
}

func TestDiff(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.txt")
	l, err := Open(Config{Path: path, Now: fixedNow()})
	require.NoError(t, err)

	l.Diff("prd.json", []byte("same\n"), []byte("same\n"))
	l.Diff("prd.json", []byte("{\n  \"status\": \"pending\"\n}\n"), []byte("{\n  \"status\": \"completed\"\n}\n"))
	require.NoError(t, l.Close())

	content := read(t, path)
	assert.Equal(t, 1, strings.Count(content, "prd.json changed:"))
	assert.Contains(t, content, "--- a/prd.json")
	assert.Contains(t, content, "+++ b/prd.json")
	assert.Contains(t, content, `-  "status": "pending"`)
	assert.Contains(t, content, `+  "status": "completed"`)
}

func TestRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.txt")
	l, err := Open(Config{Path: path, Now: fixedNow()})
	require.NoError(t, err)

	l.Record(event.TaskStart("impl-001", "Scaffold"))
	l.Record(event.ToolUse("Read file.go"))
	l.Record(event.ProgressUpdate(prd.Progress{Total: 4, Completed: 1, Percentage: 25}))
	l.Record(event.ConsensusNeeded("impl-002", []string{"deprecated API"}))
	l.Record(event.Error("collaborator failed"))
	require.NoError(t, l.Close())

	content := read(t, path)
	assert.Contains(t, content, "Started impl-001: Scaffold")
	assert.NotContains(t, content, "Read file.go")
	assert.Contains(t, content, "Progress: 1/4 (25%)")
	assert.Contains(t, content, "Consensus needed on impl-002:\n  - deprecated API")
	assert.Contains(t, content, "ERROR: collaborator failed")
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0s"},
		{59 * time.Second, "59s"},
		{61 * time.Second, "1m1s"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1h2m3s"},
	}
	for _, tc := range tests {
		t.Run(tc.want, func(t *testing.T) {
			assert.Equal(t, tc.want, FormatDuration(tc.d))
		})
	}
}
