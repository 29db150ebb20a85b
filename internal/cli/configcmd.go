package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/alexander-akhmetov/prdloop/internal/config"
)

var configDir string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage prdloop configuration",
	Long:  `View and manage prdloop configuration.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show resolved configuration with source annotations",
	Long: `Show the fully resolved configuration and the sources it came from.

Configuration is loaded from multiple sources with the following precedence:
  1. Embedded defaults (built into binary)
  2. Global config (~/.config/prdloop/config.yaml or config.toml)
  3. PRDLOOP_* environment variables
  4. Local config (.prdloop/config.yaml or config.toml)
  5. CLI flags (highest precedence)`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		wd, err := resolveWorkingDir(configDir)
		if err != nil {
			return err
		}
		cfg, err := loadConfig(wd, config.CLIFlags{})
		if err != nil {
			return err
		}
		printConfig(cmd.OutOrStdout(), cfg)
		return nil
	},
}

func init() {
	configShowCmd.Flags().StringVarP(&configDir, "dir", "d", "", "Project directory (default: current directory)")
	configCmd.AddCommand(configShowCmd)
}

func orNone(v, none string) string {
	if v == "" {
		return none
	}
	return v
}

func printConfig(out io.Writer, cfg *config.Config) {
	fmt.Fprintln(out, "# prdloop configuration")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "## Sources (in order of precedence)")
	for _, src := range cfg.Sources() {
		fmt.Fprintf(out, "  - %s\n", src)
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "## Directories")
	fmt.Fprintf(out, "  Global config: %s\n", cfg.ConfigDir())
	fmt.Fprintf(out, "  Local config:  %s\n", orNone(cfg.LocalDir(), "(none detected)"))
	fmt.Fprintln(out)

	fmt.Fprintln(out, "## Loop")
	fmt.Fprintf(out, "  max_iterations:  %d\n", cfg.MaxIterations)
	fmt.Fprintf(out, "  max_no_progress: %d\n", cfg.MaxNoProgress)
	fmt.Fprintf(out, "  timeout:         %ds\n", cfg.Timeout)
	fmt.Fprintf(out, "  prd_path:        %s\n", cfg.PRDPath)
	fmt.Fprintf(out, "  progress_path:   %s\n", orNone(cfg.ProgressPath, "(next to the PRD)"))
	fmt.Fprintf(out, "  lock:            %t\n", cfg.Lock)
	fmt.Fprintf(out, "  save_delay_ms:   %d\n", cfg.SaveDelayMs)
	fmt.Fprintln(out)

	e := cfg.Executor
	fmt.Fprintln(out, "## Executor")
	fmt.Fprintf(out, "  command:         %s\n", e.Command)
	fmt.Fprintf(out, "  model:           %s\n", orNone(e.Model, "(default)"))
	fmt.Fprintf(out, "  permission_mode: %s\n", orNone(e.PermissionMode, "(default)"))
	fmt.Fprintf(out, "  sandbox:         %t\n", e.Sandbox)
	fmt.Fprintf(out, "  flags:           %s\n", orNone(e.Flags, "(none)"))
	fmt.Fprintf(out, "  config_dir:      %s\n", orNone(e.ConfigDir, "(default)"))
	fmt.Fprintln(out)

	r := cfg.Review
	fmt.Fprintln(out, "## Review")
	fmt.Fprintf(out, "  enabled: %t\n", r.Enabled)
	fmt.Fprintf(out, "  timeout: %ds\n", r.Timeout)
	fmt.Fprintf(out, "  model:   %s\n", orNone(r.Model, "(default)"))
	fmt.Fprintf(out, "  search:  %t\n", r.Search.Enabled)
	if r.Search.Enabled {
		fmt.Fprintf(out, "    endpoint:    %s\n", r.Search.Endpoint)
		fmt.Fprintf(out, "    api_key_env: %s (%s)\n", r.Search.APIKeyEnv, keyState(r.Search.APIKeyEnv))
		fmt.Fprintf(out, "    max_results: %d\n", r.Search.MaxResults)
	}
	fmt.Fprintf(out, "  analyzer: %s\n", orNone(r.Analyzer.Kind, config.AnalyzerNone))
	switch r.Analyzer.Kind {
	case config.AnalyzerGollm:
		g := r.Analyzer.Gollm
		fmt.Fprintf(out, "    provider:    %s\n", g.Provider)
		fmt.Fprintf(out, "    model:       %s\n", g.Model)
		fmt.Fprintf(out, "    api_key_env: %s (%s)\n", g.APIKeyEnv, keyState(g.APIKeyEnv))
	case config.AnalyzerCLI:
		fmt.Fprintf(out, "    command: %s\n", r.Analyzer.Command)
		fmt.Fprintf(out, "    flags:   %s\n", orNone(r.Analyzer.Flags, "(none)"))
	}
}

func keyState(env string) string {
	if env != "" && os.Getenv(env) != "" {
		return "set"
	}
	return "not set"
}
