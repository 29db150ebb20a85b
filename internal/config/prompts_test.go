package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPrompts_Embedded(t *testing.T) {
	prompts, err := LoadPrompts("", "")
	require.NoError(t, err)
	require.NotNil(t, prompts)

	assert.NotEmpty(t, prompts.Execute)
	assert.NotEmpty(t, prompts.Analyze)

	assert.NotContains(t, prompts.Execute, "Lines starting with #")
	assert.Contains(t, prompts.Execute, "## Current task", "markdown headings are kept")

	assert.Contains(t, prompts.Execute, "{{.PRDPath}}")
	assert.Contains(t, prompts.Execute, "{{.ProgressPath}}")
	assert.Contains(t, prompts.Execute, "{{.CompletionMarker}}")
	assert.Contains(t, prompts.Analyze, "{{.FindingsKey}}")
}

func TestDefaultPrompts(t *testing.T) {
	prompts, err := DefaultPrompts()
	require.NoError(t, err)
	embedded, err := LoadPrompts("", "")
	require.NoError(t, err)
	assert.Equal(t, embedded, prompts)
}

func TestLoadPrompts_GlobalOverride(t *testing.T) {
	globalDir := t.TempDir()
	promptsDir := filepath.Join(globalDir, "prompts")
	require.NoError(t, os.MkdirAll(promptsDir, 0o755))

	customPrompt := "Custom execute prompt for {{.Task.ID}}"
	require.NoError(t, os.WriteFile(filepath.Join(promptsDir, "execute.md"), []byte(customPrompt), 0o644))

	prompts, err := LoadPrompts(globalDir, "")
	require.NoError(t, err)

	assert.Equal(t, customPrompt, prompts.Execute)
	assert.Contains(t, prompts.Analyze, "{{.FindingsKey}}")
}

func TestLoadPrompts_LocalOverridesGlobal(t *testing.T) {
	globalDir := t.TempDir()
	localDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(globalDir, "prompts"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(localDir, "prompts"), 0o755))

	require.NoError(t, os.WriteFile(filepath.Join(globalDir, "prompts", "execute.md"), []byte("Global"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(localDir, "prompts", "execute.md"), []byte("Local"), 0o644))

	prompts, err := LoadPrompts(globalDir, localDir)
	require.NoError(t, err)
	assert.Equal(t, "Local", prompts.Execute)
}

func TestLoadPrompts_EmptyFileFallsBack(t *testing.T) {
	globalDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(globalDir, "prompts"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(globalDir, "prompts", "execute.md"), []byte("# only a comment\n"), 0o644))

	prompts, err := LoadPrompts(globalDir, "")
	require.NoError(t, err)
	assert.Contains(t, prompts.Execute, "{{.PRDPath}}")
}

func TestStripComments(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"no comments", "line1\nline2", "line1\nline2"},
		{"comment line", "# comment\nline", "line"},
		{"bare hash", "#\nline", "line"},
		{"heading kept", "## Heading\ntext", "## Heading\ntext"},
		{"indented comment", "  # note\ntext", "text"},
		{"crlf", "# c\r\nline\r\n", "line\n"},
		{"hash inside line", "value # not a comment", "value # not a comment"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, stripComments(tc.input))
		})
	}
}
