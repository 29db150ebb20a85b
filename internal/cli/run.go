package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/alexander-akhmetov/prdloop/internal/config"
	"github.com/alexander-akhmetov/prdloop/internal/event"
	"github.com/alexander-akhmetov/prdloop/internal/loop"
	"github.com/alexander-akhmetov/prdloop/internal/protocol"
	"github.com/alexander-akhmetov/prdloop/internal/tui"
)

var runFlags struct {
	dir           string
	prd           string
	model         string
	maxIterations int
	timeout       int
	review        bool
	lock          bool
	noTUI         bool
	autoResolve   bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the loop over the PRD",
	Long: `Run the execution loop over the PRD.

Each iteration hands the next selectable task to the coding agent, which
implements it and marks it done in the PRD. The loop stops when every task
is done, the agent prints the completion marker, no task can be selected,
the iteration budget is exhausted, or you abort.

With review enabled, a lookahead pass checks upcoming tasks for hidden
risks and attaches findings. A task with unresolved findings is not
executed until the findings are acknowledged: press r in the TUI, or pass
--auto-resolve. Without a TTY, findings are acknowledged automatically.

Examples:
  prdloop run
  prdloop run --prd docs/prd.json -n 10
  prdloop run --no-review --no-tui`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runFlags.dir, "dir", "d", "", "Working directory (default: current directory)")
	f.StringVar(&runFlags.prd, "prd", "", "PRD path, relative to the working directory")
	f.StringVar(&runFlags.model, "model", "", "Model passed to the coding agent")
	f.IntVarP(&runFlags.maxIterations, "max-iterations", "n", 0, "Maximum iterations")
	f.IntVar(&runFlags.timeout, "timeout", 0, "Timeout per iteration in seconds")
	f.BoolVar(&runFlags.review, "review", true, "Enable the lookahead reviewer")
	f.BoolVar(&runFlags.lock, "lock", false, "Route PRD writes through an exclusive lock file")
	f.BoolVar(&runFlags.noTUI, "no-tui", false, "Stream plain output instead of the TUI")
	f.BoolVar(&runFlags.autoResolve, "auto-resolve", false, "Acknowledge review findings automatically")
}

// cliFlags converts the run flags the user actually set.
func cliFlags(cmd *cobra.Command) config.CLIFlags {
	flags := config.CLIFlags{
		MaxIterations: runFlags.maxIterations,
		Timeout:       runFlags.timeout,
		PRDPath:       runFlags.prd,
		Model:         runFlags.model,
	}
	if cmd.Flags().Changed("review") {
		v := runFlags.review
		flags.Review = &v
	}
	if cmd.Flags().Changed("lock") {
		v := runFlags.lock
		flags.Lock = &v
	}
	return flags
}

func runRun(cmd *cobra.Command, _ []string) error {
	wd, err := resolveWorkingDir(runFlags.dir)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(wd, cliFlags(cmd))
	if err != nil {
		return err
	}
	c, err := newComponents(cfg, wd)
	if err != nil {
		return err
	}

	isTTY := term.IsTerminal(int(os.Stdout.Fd()))
	width := 0
	if isTTY {
		width, _, _ = term.GetSize(int(os.Stdout.Fd()))
	}
	useTUI := isTTY && !runFlags.noTUI

	res, err := runLoop(cmd.Context(), c, runOptions{
		out:         cmd.OutOrStdout(),
		isTTY:       isTTY,
		width:       width,
		tui:         useTUI,
		autoResolve: runFlags.autoResolve || !useTUI,
		sessionPath: sessionFilePath(),
	})
	if err != nil {
		return fmt.Errorf("loop error: %w", err)
	}
	if res.Reason == protocol.StopError {
		return errors.New(res.Message)
	}
	return nil
}

type runOptions struct {
	out   io.Writer
	isTTY bool
	width int
	tui   bool
	// autoResolve acknowledges findings as soon as they are raised.
	autoResolve bool
	// sessionPath is where the session file goes. Empty skips it.
	sessionPath string
}

// runLoop runs one loop to completion, rendering its events through the
// TUI or a Writer. SIGINT and SIGTERM abort the run.
func runLoop(ctx context.Context, c *components, opts runOptions) (*loop.Result, error) {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	l := c.newLoop()
	reg := &loop.Registry{}
	reg.Register(l)
	defer reg.Unregister(l)
	if c.reviewer != nil {
		reg.RegisterReviewer(c.reviewer)
		defer reg.RegisterReviewer(nil)
	}

	session := sessionInfo{
		PRDPath:    c.prdPath,
		WorkingDir: c.workDir,
		StartedAt:  time.Now().Format(time.RFC3339),
		PID:        os.Getpid(),
	}
	if opts.sessionPath != "" {
		if err := writeSessionFile(opts.sessionPath, session); err != nil {
			log.Printf("warning: failed to write session file: %v", err)
		}
		defer os.Remove(opts.sessionPath)
	}

	var wg sync.WaitGroup
	watch, _ := c.bus.Subscribe()
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range watch {
			switch ev.Kind {
			case event.KindConsensusNeeded:
				if opts.autoResolve && c.consensus.Resolve(ev.TaskID) {
					c.bus.Publish(event.Prog(fmt.Sprintf("findings for %s acknowledged", ev.TaskID)))
				}
			case event.KindIterationStart:
				if session.RunID == "" && opts.sessionPath != "" {
					session.RunID = l.RunID()
					if err := writeSessionFile(opts.sessionPath, session); err != nil {
						log.Printf("warning: failed to update session file: %v", err)
					}
				}
			}
		}
	}()

	events, _ := c.bus.Subscribe()
	if opts.tui {
		return runWithTUI(ctx, c, l, reg, events, &wg)
	}

	w := NewWriter(opts.out, opts.isTTY, opts.width, c.cfg.MaxIterations)
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.Consume(events)
	}()

	res, err := l.Run(ctx)
	c.bus.Close()
	wg.Wait()
	w.PrintSummary(res)
	return res, err
}

func runWithTUI(ctx context.Context, c *components, l *loop.Loop, reg *loop.Registry, events <-chan event.Event, wg *sync.WaitGroup) (*loop.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	prog := tui.New(tui.Options{
		PRDPath:       c.prdPath,
		WorkingDir:    c.workDir,
		MaxIterations: c.cfg.MaxIterations,
		Control:       reg,
		Consensus:     c.consensus,
		Document:      c.manager.Document,
	})

	type outcome struct {
		res *loop.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := l.Run(ctx)
		prog.Finish(res, err)
		done <- outcome{res, err}
	}()

	uiErr := prog.Run(events)
	// Quitting the TUI ends the run.
	reg.Abort()
	cancel()
	out := <-done

	c.bus.Close()
	wg.Wait()
	if uiErr != nil {
		log.Printf("warning: tui: %v", uiErr)
	}
	return out.res, out.err
}
