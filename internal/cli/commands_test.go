package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexander-akhmetov/prdloop/internal/config"
	"github.com/alexander-akhmetov/prdloop/internal/scaffold"
)

func TestPrintConfig(t *testing.T) {
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Review.Search.Enabled = true
	cfg.Review.Search.Endpoint = "https://search.example.com"
	cfg.Review.Search.APIKeyEnv = "PRDLOOP_TEST_UNSET_KEY"
	cfg.Review.Analyzer.Kind = config.AnalyzerCLI
	cfg.Review.Analyzer.Command = "claude"

	var buf bytes.Buffer
	printConfig(&buf, cfg)

	output := buf.String()
	assert.Contains(t, output, "## Sources (in order of precedence)")
	assert.Contains(t, output, "  - embedded")
	assert.Contains(t, output, "prd_path:")
	assert.Contains(t, output, "endpoint:    https://search.example.com")
	assert.Contains(t, output, "PRDLOOP_TEST_UNSET_KEY (not set)")
	assert.Contains(t, output, "analyzer: cli")
	assert.Contains(t, output, "command: claude")
}

func TestKeyState(t *testing.T) {
	t.Setenv("PRDLOOP_TEST_KEY", "secret")
	assert.Equal(t, "set", keyState("PRDLOOP_TEST_KEY"))
	assert.Equal(t, "not set", keyState(""))
	assert.Equal(t, "not set", keyState("PRDLOOP_TEST_MISSING_KEY"))
}

func TestPrintInitResult(t *testing.T) {
	dir := t.TempDir()
	res, err := scaffold.Init(scaffold.Options{Dir: dir, Name: "Demo"})
	require.NoError(t, err)

	var buf bytes.Buffer
	printInitResult(&buf, res)
	output := buf.String()
	assert.Contains(t, output, "created  "+filepath.Join(dir, "prd.json"))
	assert.Contains(t, output, "then run: prdloop run")

	res, err = scaffold.Init(scaffold.Options{Dir: dir, Name: "Demo", Force: true})
	require.NoError(t, err)
	buf.Reset()
	printInitResult(&buf, res)
	assert.Contains(t, buf.String(), "kept     ")
}

func TestRootCommands(t *testing.T) {
	want := []string{"run", "review", "tasks", "next", "init", "status", "config"}
	var got []string
	for _, c := range rootCmd.Commands() {
		got = append(got, c.Name())
	}
	for _, name := range want {
		assert.Contains(t, got, name)
	}
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("debug"))
}
