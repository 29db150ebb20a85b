package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/alexander-akhmetov/prdloop/internal/apperr"
	"github.com/alexander-akhmetov/prdloop/internal/debug"
)

// DefaultCommand is the claude CLI binary name.
const DefaultCommand = "claude"

// ClaudeInvoker invokes the claude CLI binary.
type ClaudeInvoker struct {
	Command string
	Env     EnvConfig
}

// NewClaudeInvoker returns an Invoker that shells out to command, or to
// "claude" when command is empty.
func NewClaudeInvoker(command string, env EnvConfig) *ClaudeInvoker {
	if command == "" {
		command = DefaultCommand
	}
	return &ClaudeInvoker{Command: command, Env: env}
}

// Args returns the command-line arguments for opts.
func (c *ClaudeInvoker) Args(opts Options) []string {
	args := []string{"--print"}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	if opts.PermissionMode != "" {
		args = append(args, "--permission-mode", opts.PermissionMode)
	}
	if opts.SettingsJSON != "" {
		args = append(args, "--settings", opts.SettingsJSON)
	}
	args = append(args, opts.ExtraFlags...)
	if opts.Streaming {
		args = append(args, "--output-format", "stream-json", "--verbose")
	}
	return args
}

// Invoke runs the CLI with prompt on stdin. Cancelling ctx kills the whole
// process group. When opts.Timeout elapses the partial output is returned
// with TimedOut set, together with a timeout error.
func (c *ClaudeInvoker) Invoke(ctx context.Context, prompt string, opts Options) (*Result, error) {
	invokeCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		invokeCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := exec.Command(c.Command, c.Args(opts)...)
	if opts.WorkingDir != "" {
		cmd.Dir = opts.WorkingDir
	}
	cmd.Env = BuildEnv(c.Env)
	setupProcessGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, apperr.Wrap(apperr.KindExternalFailure, "start "+c.Command, err)
	}
	pg := watchProcessGroup(cmd, invokeCtx.Done())
	if opts.OnProcessStart != nil {
		opts.OnProcessStart(cmd.Process.Pid)
	}

	go func() {
		defer stdin.Close()
		if _, err := io.WriteString(stdin, prompt); err != nil {
			debug.Logf("llm: write prompt to stdin: %v", err)
		}
	}()

	var output string
	if opts.Streaming {
		output = processStreamingOutput(stdout, opts)
	} else {
		output = processTextOutput(stdout, opts)
	}

	err = pg.Wait()
	switch {
	case errors.Is(invokeCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		return &Result{Text: output, TimedOut: true},
			apperr.New(apperr.KindTimeout, c.Command, "timed out after %s", opts.Timeout)
	case ctx.Err() != nil:
		return &Result{Text: output}, apperr.Wrap(apperr.KindExternalFailure, c.Command, ctx.Err())
	case err != nil:
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return &Result{Text: output}, apperr.Wrap(apperr.KindExternalFailure, c.Command,
				fmt.Errorf("%s exited: %w\nstderr: %s", c.Command, err, msg))
		}
		return &Result{Text: output}, apperr.Wrap(apperr.KindExternalFailure, c.Command,
			fmt.Errorf("%s exited: %w", c.Command, err))
	}
	return &Result{Text: output}, nil
}
