package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alexander-akhmetov/prdloop/internal/apperr"
	"github.com/alexander-akhmetov/prdloop/internal/prd"
	"github.com/alexander-akhmetov/prdloop/internal/protocol"
	"github.com/alexander-akhmetov/prdloop/internal/store"
)

var (
	editFlags    docFlags
	skipReason   string
	reviewStatus string
)

// taskEdit is a "tasks" subcommand that applies one store mutation built
// from its positional args.
type taskEdit struct {
	use   string
	short string
	args  cobra.PositionalArgs
	apply func(m *store.Manager, args []string) store.MutationResult
}

var taskEdits = []taskEdit{
	{"done <id>", "Mark a task completed", cobra.ExactArgs(1),
		func(m *store.Manager, args []string) store.MutationResult {
			return m.MarkComplete(args[0])
		}},
	{"skip <id>", "Close a task without doing it", cobra.ExactArgs(1),
		func(m *store.Manager, args []string) store.MutationResult {
			return m.MarkSkipped(args[0], skipReason)
		}},
	{"note <id> <text...>", "Replace the notes of a task", cobra.MinimumNArgs(2),
		func(m *store.Manager, args []string) store.MutationResult {
			return m.UpdateNote(args[0], strings.Join(args[1:], " "))
		}},
	{"status <id> <status>", "Set a task status (pending, in_progress, completed, failed, blocked)", cobra.ExactArgs(2),
		func(m *store.Manager, args []string) store.MutationResult {
			return m.UpdateStatus(args[0], prd.TaskStatus(args[1]))
		}},
	{"findings <review-id> [finding...]", "Replace the findings of a review task", cobra.MinimumNArgs(1),
		func(m *store.Manager, args []string) store.MutationResult {
			return m.UpdateReviewFindings(args[0], args[1:], prd.TaskStatus(reviewStatus))
		}},
}

func (e taskEdit) command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   e.use,
		Short: e.short,
		Args:  e.args,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := editFlags.open()
			if err != nil {
				return err
			}
			return applyEdit(cmd.OutOrStdout(), m, editFlags.json, func(m *store.Manager) store.MutationResult {
				return e.apply(m, args)
			})
		},
	}
	editFlags.register(cmd)
	switch cmd.Name() {
	case "skip":
		cmd.Flags().StringVar(&skipReason, "reason", "", "Why the task is skipped")
	case "findings":
		cmd.Flags().StringVar(&reviewStatus, "status", "", "New review task status")
	}
	return cmd
}

func init() {
	for _, e := range taskEdits {
		tasksCmd.AddCommand(e.command())
	}
}

// applyEdit runs fn, saves the document and reports the result.
func applyEdit(out io.Writer, m *store.Manager, asJSON bool, fn func(*store.Manager) store.MutationResult) error {
	res := fn(m)
	if !res.Success {
		return mutationError(res)
	}
	if err := m.Flush(); err != nil {
		return err
	}
	if asJSON {
		return printJSON(out, map[string]any{"success": true, "message": res.Message})
	}
	fmt.Fprintln(out, res.Message)
	return nil
}

func mutationError(res store.MutationResult) error {
	kind := apperr.KindConfiguration
	switch res.ErrorCode {
	case protocol.CodeNotFound:
		kind = apperr.KindNotFound
	case protocol.CodeNotLoaded:
		kind = apperr.KindIO
	}
	return apperr.New(kind, "edit task", "%s", res.Message)
}
