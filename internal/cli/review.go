package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/alexander-akhmetov/prdloop/internal/apperr"
	"github.com/alexander-akhmetov/prdloop/internal/config"
	"github.com/alexander-akhmetov/prdloop/internal/event"
	"github.com/alexander-akhmetov/prdloop/internal/prd"
	"github.com/alexander-akhmetov/prdloop/internal/review"
)

var reviewFlags struct {
	dir  string
	prd  string
	from string
}

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Run one lookahead review pass without executing tasks",
	Long: `Review upcoming PRD tasks for hidden risks without running the loop.

The pass starts at the next task (or --from) and covers the lookahead
window. Findings are written onto the tasks so the next run sees them.

Examples:
  prdloop review
  prdloop review --from US-004`,
	Args: cobra.NoArgs,
	RunE: runReview,
}

func init() {
	f := reviewCmd.Flags()
	f.StringVarP(&reviewFlags.dir, "dir", "d", "", "Working directory (default: current directory)")
	f.StringVar(&reviewFlags.prd, "prd", "", "PRD path, relative to the working directory")
	f.StringVar(&reviewFlags.from, "from", "", "Task id to start reviewing at (default: the next task)")
}

func runReview(cmd *cobra.Command, _ []string) error {
	wd, err := resolveWorkingDir(reviewFlags.dir)
	if err != nil {
		return err
	}
	enabled := true
	cfg, err := loadConfig(wd, config.CLIFlags{PRDPath: reviewFlags.prd, Review: &enabled})
	if err != nil {
		return err
	}
	c, err := newComponents(cfg, wd)
	if err != nil {
		return err
	}
	isTTY := term.IsTerminal(int(os.Stdout.Fd()))
	_, err = reviewPass(cmd.Context(), c, reviewFlags.from, cmd.OutOrStdout(), isTTY)
	return err
}

// reviewPass loads the PRD, reviews the window starting at from and saves
// the findings. Findings are acknowledged as they are raised.
func reviewPass(ctx context.Context, c *components, from string, out io.Writer, isTTY bool) ([]review.StepReviewResult, error) {
	if err := c.manager.Load(c.prdPath); err != nil {
		return nil, err
	}
	tasks := c.manager.AllTasks()
	start, err := reviewStart(tasks, from, c.manager)
	if err != nil {
		return nil, err
	}

	w := NewWriter(out, isTTY, 0, 0)
	var wg sync.WaitGroup
	events, _ := c.bus.Subscribe()
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range events {
			if ev.Kind == event.KindConsensusNeeded {
				c.consensus.Resolve(ev.TaskID)
			}
			w.WriteEvent(ev)
		}
	}()

	results := c.reviewer.Start(ctx, tasks, start-1)
	c.reviewer.Stop()
	flushErr := c.manager.Flush()
	c.bus.Close()
	wg.Wait()

	if len(results) == 0 {
		fmt.Fprintln(out, "Nothing to review: upcoming tasks already reviewed or carry findings")
	}
	return results, flushErr
}

// reviewStart returns the index of the first task to review.
func reviewStart(tasks []prd.Item, from string, next interface{ NextTask() (prd.Item, bool) }) (int, error) {
	if from == "" {
		it, ok := next.NextTask()
		if !ok {
			return 0, apperr.New(apperr.KindNotFound, "review", "no selectable task to review")
		}
		from = it.ID
	}
	idx := slices.IndexFunc(tasks, func(it prd.Item) bool { return it.ID == from })
	if idx < 0 {
		return 0, apperr.New(apperr.KindNotFound, "review", "task %s not found", from)
	}
	return idx, nil
}
