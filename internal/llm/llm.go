// Package llm runs the claude CLI: argument building, stream-json parsing,
// environment filtering and the --settings payload. ClaudeExecutor adapts
// it to the execution loop.
package llm

import (
	"context"
	"time"
)

// Invoker runs one CLI invocation and returns its text output.
type Invoker interface {
	// Invoke sends the prompt on stdin. The callbacks on opts are called
	// while output streams in.
	Invoke(ctx context.Context, prompt string, opts Options) (*Result, error)
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, prompt string, opts Options) (*Result, error)

func (f InvokerFunc) Invoke(ctx context.Context, prompt string, opts Options) (*Result, error) {
	return f(ctx, prompt, opts)
}

// Options configures a single invocation.
type Options struct {
	WorkingDir     string
	Model          string
	PermissionMode string

	// Streaming enables stream-json output mode.
	Streaming bool

	// ExtraFlags are appended to the command line as-is.
	ExtraFlags []string

	// SettingsJSON is the --settings payload.
	SettingsJSON string

	// Timeout bounds the invocation. Zero leaves only the caller's context.
	Timeout time.Duration

	// OnOutput is called with text fragments as they arrive.
	OnOutput func(text string)

	// OnToolUse is called once per tool_use block (streaming only).
	OnToolUse func(name, input string)

	// OnToolResult is called when a tool result is observed (streaming only).
	OnToolResult func(name, result string)

	// OnSystemInit is called with the model name from the init event.
	OnSystemInit func(model string)

	// OnProcessStart is called with the PID once the process is running.
	OnProcessStart func(pid int)
}

// Result holds the output of a completed invocation.
type Result struct {
	Text     string
	TimedOut bool
}
