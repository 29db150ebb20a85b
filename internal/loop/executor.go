package loop

import (
	"context"
	"time"

	"github.com/alexander-akhmetov/prdloop/internal/prd"
	"github.com/alexander-akhmetov/prdloop/internal/review"
)

// ExecRequest is one invocation of the execution collaborator.
type ExecRequest struct {
	Prompt         string
	Sandbox        bool
	PermissionMode string
	Model          string
	// Timeout bounds the invocation. Zero means unbounded.
	Timeout    time.Duration
	WorkingDir string
}

// ExecOutcome is what the execution collaborator reported.
type ExecOutcome struct {
	Success            bool
	CompletionDetected bool
	Err                error
}

// Executor runs the code-generation collaborator against a prompt. It is
// killed by cancelling ctx.
type Executor interface {
	Execute(ctx context.Context, req ExecRequest) ExecOutcome
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, req ExecRequest) ExecOutcome

func (f ExecutorFunc) Execute(ctx context.Context, req ExecRequest) ExecOutcome {
	return f(ctx, req)
}

// ChangeTracker reports files changed in the working tree since its
// previous call.
type ChangeTracker interface {
	Changed() ([]string, error)
}

// Lookahead reviews tasks ahead of the loop. *review.Reviewer satisfies it.
type Lookahead interface {
	Start(ctx context.Context, tasks []prd.Item, executorIndex int) []review.StepReviewResult
	Stop()
}
