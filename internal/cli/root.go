// Package cli implements the prdloop command line.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alexander-akhmetov/prdloop/internal/debug"
)

// Version information set from main.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// SetVersionInfo sets the version information for the CLI.
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (%s, %s)", version, commit, date)
}

var rootCmd = &cobra.Command{
	Use:   "prdloop",
	Short: "PRD-driven autonomous coding loop",
	Long: `prdloop works through a PRD task by task. Each iteration hands the next
task to a coding agent, watches it finish, and records progress next to
the PRD. A lookahead reviewer checks upcoming tasks for hidden risks while
the current one runs.`,
	SilenceUsage: true,
	PersistentPreRun: func(*cobra.Command, []string) {
		if debugFlag {
			debug.Enable()
		}
	},
}

var debugFlag bool

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "write debug lines to stderr (same as PRDLOOP_DEBUG=1)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(nextCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
}
