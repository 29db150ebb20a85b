package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/alexander-akhmetov/prdloop/internal/prd"
	"github.com/alexander-akhmetov/prdloop/internal/scaffold"
)

var initFlags struct {
	dir         string
	prd         string
	name        string
	description string
	stories     bool
	sandbox     bool
	localConfig bool
	force       bool
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a starter PRD and project files",
	Long: `Create a starter PRD with two placeholder tasks, an empty progress log and
claude project settings that keep the agent out of .prdloop/.

Existing claude settings are merged. An existing PRD is left alone unless
--force is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		dir, err := resolveWorkingDir(initFlags.dir)
		if err != nil {
			return err
		}
		form := prd.FormPhase
		if initFlags.stories {
			form = prd.FormStory
		}
		res, err := scaffold.Init(scaffold.Options{
			Dir:         dir,
			PRDName:     initFlags.prd,
			Name:        initFlags.name,
			Description: initFlags.description,
			Form:        form,
			Sandbox:     initFlags.sandbox,
			LocalConfig: initFlags.localConfig,
			Force:       initFlags.force,
		})
		if err != nil {
			return err
		}
		printInitResult(cmd.OutOrStdout(), res)
		return nil
	},
}

func init() {
	f := initCmd.Flags()
	f.StringVarP(&initFlags.dir, "dir", "d", "", "Project directory (default: current directory)")
	f.StringVar(&initFlags.prd, "prd", "prd.json", "PRD file name")
	f.StringVar(&initFlags.name, "name", "", "Document name (default: directory name)")
	f.StringVar(&initFlags.description, "description", "", "Document description")
	f.BoolVar(&initFlags.stories, "stories", false, "Use priority-ordered user stories instead of phase tasks")
	f.BoolVar(&initFlags.sandbox, "sandbox", false, "Enable the claude sandbox in project settings")
	f.BoolVar(&initFlags.localConfig, "local-config", false, "Also write .prdloop/config.yaml")
	f.BoolVar(&initFlags.force, "force", false, "Overwrite an existing PRD")
}

func printInitResult(out io.Writer, res *scaffold.Result) {
	for _, p := range res.Created {
		fmt.Fprintf(out, "created  %s\n", p)
	}
	for _, p := range res.Skipped {
		fmt.Fprintf(out, "kept     %s\n", p)
	}
	fmt.Fprintf(out, "\nEdit %s, then run: prdloop run\n", res.PRDPath)
}
