package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"

	"github.com/alexander-akhmetov/prdloop/internal/config"
	"github.com/alexander-akhmetov/prdloop/internal/lock"
	"github.com/alexander-akhmetov/prdloop/internal/prd"
	"github.com/alexander-akhmetov/prdloop/internal/store"
)

type docFlags struct {
	dir  string
	prd  string
	json bool
}

func (f *docFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.dir, "dir", "d", "", "Working directory (default: current directory)")
	cmd.Flags().StringVar(&f.prd, "prd", "", "PRD path, relative to the working directory")
	cmd.Flags().BoolVar(&f.json, "json", false, "Print JSON")
}

// open loads the configured PRD into a fresh manager. Writes go through the
// lock file when the config asks for it.
func (f *docFlags) open() (*store.Manager, error) {
	wd, err := resolveWorkingDir(f.dir)
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig(wd, config.CLIFlags{PRDPath: f.prd})
	if err != nil {
		return nil, err
	}
	var opts []store.Option
	if cfg.Lock {
		opts = append(opts, store.WithLocker(lock.NewFileLocker()))
	}
	m := store.New(opts...)
	if err := m.Load(resolvePath(wd, cfg.PRDPath)); err != nil {
		return nil, err
	}
	return m, nil
}

var (
	tasksFlags docFlags
	nextFlags  docFlags
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List PRD tasks in execution order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		m, err := tasksFlags.open()
		if err != nil {
			return err
		}
		if tasksFlags.json {
			return printJSON(cmd.OutOrStdout(), taskListJSON(m))
		}
		printTasks(cmd.OutOrStdout(), m)
		return nil
	},
}

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Show the task the loop would run next",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		m, err := nextFlags.open()
		if err != nil {
			return err
		}
		if nextFlags.json {
			next, ok := m.NextTask()
			if !ok {
				return printJSON(cmd.OutOrStdout(), map[string]any{"next": nil, "complete": m.IsComplete()})
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"next": itemJSON(next, true), "complete": false})
		}
		printNext(cmd.OutOrStdout(), m)
		return nil
	},
}

func init() {
	tasksFlags.register(tasksCmd)
	nextFlags.register(nextCmd)
}

func printTasks(out io.Writer, m *store.Manager) {
	doc := m.Document()
	p := doc.Progress()
	next, _ := m.NextTask()

	fmt.Fprintf(out, "%s (%s form)\n", doc.Name, doc.Form())
	fmt.Fprintf(out, "%s %d/%d done (%d%%)\n\n", progressBar(p.Completed, p.Total, 20), p.Completed, p.Total, p.Percentage)

	for _, it := range m.AllTasks() {
		mark := "○"
		switch {
		case it.Done:
			mark = "✓"
		case it.ID == next.ID:
			mark = "→"
		}
		fmt.Fprintf(out, "  %s %-10s %s\n", mark, it.ID, it.Title)
		if n := len(it.Findings); n > 0 {
			fmt.Fprintf(out, "      %d findings\n", n)
		}
	}
	if len(doc.ReviewTasks) > 0 {
		fmt.Fprintln(out, "\nReview tasks:")
		for _, rt := range doc.ReviewTasks {
			fmt.Fprintf(out, "  %-10s %-12s %s\n", rt.ID, rt.Status, rt.Title)
		}
	}
}

func printNext(out io.Writer, m *store.Manager) {
	next, ok := m.NextTask()
	if !ok {
		if m.IsComplete() {
			fmt.Fprintln(out, "PRD complete: nothing left to do")
		} else {
			fmt.Fprintln(out, "No selectable task (remaining tasks are blocked)")
		}
		return
	}
	fmt.Fprintf(out, "%s: %s\n", next.ID, next.Title)
	if next.Description != "" {
		fmt.Fprintf(out, "\n%s\n", strings.TrimSpace(next.Description))
	}
	if len(next.Findings) > 0 {
		fmt.Fprintln(out, "\nFindings:")
		for _, f := range next.Findings {
			fmt.Fprintf(out, "  - %s\n", f)
		}
	}
}

func itemJSON(it prd.Item, next bool) map[string]any {
	v := map[string]any{
		"id":    it.ID,
		"title": it.Title,
		"done":  it.Done,
	}
	if it.Description != "" {
		v["description"] = it.Description
	}
	if len(it.Findings) > 0 {
		v["findings"] = it.Findings
	}
	if next {
		v["next"] = true
	}
	return v
}

func taskListJSON(m *store.Manager) map[string]any {
	next, _ := m.NextTask()
	items := m.AllTasks()
	tasks := make([]map[string]any, 0, len(items))
	for _, it := range items {
		tasks = append(tasks, itemJSON(it, it.ID == next.ID && !it.Done))
	}
	return map[string]any{
		"name":     m.Document().Name,
		"progress": m.Progress(),
		"tasks":    tasks,
	}
}

func printJSON(out io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	_, err = out.Write(pretty.Pretty(data))
	return err
}
