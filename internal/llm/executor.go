package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/alexander-akhmetov/prdloop/internal/apperr"
	"github.com/alexander-akhmetov/prdloop/internal/dirs"
	"github.com/alexander-akhmetov/prdloop/internal/event"
	"github.com/alexander-akhmetov/prdloop/internal/loop"
	"github.com/alexander-akhmetov/prdloop/internal/protocol"
)

// maxToolInput caps the tool input echoed in tool-use events.
const maxToolInput = 120

// ClaudeExecutor runs loop iterations through an Invoker and reports the
// collaborator's output as events.
type ClaudeExecutor struct {
	Invoker Invoker
	Events  event.Handler
	// Flags are extra CLI flags appended to every invocation.
	Flags []string
}

var _ loop.Executor = (*ClaudeExecutor)(nil)

// NewClaudeExecutor returns an executor backed by inv.
func NewClaudeExecutor(inv Invoker, events event.Handler, flags string) *ClaudeExecutor {
	return &ClaudeExecutor{Invoker: inv, Events: events, Flags: strings.Fields(flags)}
}

// Execute runs one invocation. The iteration succeeds when the process
// exits cleanly; CompletionDetected is set when the output contains the
// completion marker, even if the process failed afterwards.
func (e *ClaudeExecutor) Execute(ctx context.Context, req loop.ExecRequest) loop.ExecOutcome {
	settings, err := BuildSettings(Settings{
		Sandbox:   req.Sandbox,
		DenyPaths: []string{dirs.LocalDirName},
	})
	if err != nil {
		return loop.ExecOutcome{Err: apperr.Wrap(apperr.KindConfiguration, "build settings", err)}
	}

	res, err := e.Invoker.Invoke(ctx, req.Prompt, Options{
		WorkingDir:     req.WorkingDir,
		Model:          req.Model,
		PermissionMode: req.PermissionMode,
		Streaming:      true,
		ExtraFlags:     e.Flags,
		SettingsJSON:   settings,
		Timeout:        req.Timeout,
		OnOutput: func(text string) {
			e.Events.Publish(event.Markdown(text))
		},
		OnToolUse: func(name, input string) {
			e.Events.Publish(event.ToolUse(formatToolUse(name, input)))
		},
		OnToolResult: func(name, result string) {
			e.Events.Publish(event.ToolResult(formatToolResult(name, result)))
		},
		OnSystemInit: func(model string) {
			e.Events.Publish(event.Prog("model: " + model))
		},
	})

	var out loop.ExecOutcome
	if res != nil {
		out.CompletionDetected = strings.Contains(res.Text, protocol.CompletionMarker)
	}
	if err != nil {
		if apperr.KindOf(err) == "" {
			err = apperr.Wrap(apperr.KindExternalFailure, "execute", err)
		}
		out.Err = err
		return out
	}
	out.Success = true
	return out
}

func formatToolUse(name, input string) string {
	input = strings.Join(strings.Fields(input), " ")
	if input == "" || input == "{}" {
		return name
	}
	return name + " " + truncate(input, maxToolInput)
}

func formatToolResult(name, result string) string {
	lines := strings.Count(strings.TrimRight(result, "\n"), "\n") + 1
	if strings.TrimSpace(result) == "" {
		lines = 0
	}
	if name == "" {
		name = "tool"
	}
	if lines == 1 {
		return name + ": 1 line"
	}
	return fmt.Sprintf("%s: %d lines", name, lines)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
