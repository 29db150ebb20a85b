package engine

import (
	"fmt"
	"strings"

	"github.com/alexander-akhmetov/prdloop/internal/protocol"
)

// Engine makes pure decisions about what the loop should do next.
// It holds only configuration.
type Engine struct {
	MaxIterations int
	// MaxNoProgress stops the run after that many consecutive iterations
	// without progress. Zero disables the guard.
	MaxNoProgress int
}

// DecideNext determines the next action at the top of a loop pass. Checks
// run in order: abort, pause, document completion, iteration budget, the
// no-progress guard, task selection and finally the consensus gate.
func (e *Engine) DecideNext(in Input) Action {
	if in.AbortRequested {
		return Action{Kind: ActionExit, Reason: protocol.StopUserAbort, Message: "aborted by user"}
	}

	if in.Paused {
		return Action{Kind: ActionWaitResume}
	}

	if in.DocumentComplete {
		return Action{Kind: ActionExit, Reason: protocol.StopPRDComplete, Message: "all tasks complete"}
	}

	if e.MaxIterations > 0 && in.Iterations >= e.MaxIterations {
		return Action{
			Kind:    ActionExit,
			Reason:  protocol.StopMaxIterations,
			Message: fmt.Sprintf("reached max iterations (%d)", e.MaxIterations),
		}
	}

	if e.MaxNoProgress > 0 && in.NoProgress >= e.MaxNoProgress {
		return Action{
			Kind:    ActionExit,
			Reason:  protocol.StopNoProgress,
			Message: fmt.Sprintf("no progress in %d consecutive iterations", in.NoProgress),
		}
	}

	if in.NextTaskID == "" {
		return Action{Kind: ActionExit, Reason: protocol.StopNoTasks, Message: "no selectable tasks"}
	}

	if in.ConsensusPending {
		return Action{Kind: ActionWaitConsensus, TaskID: in.NextTaskID}
	}

	return Action{Kind: ActionExecute, TaskID: in.NextTaskID}
}

// ProcessOutcome interprets an iteration's outcome.
func (e *Engine) ProcessOutcome(o Outcome) OutcomeDecision {
	d := OutcomeDecision{TaskCompleted: o.TaskDone && !o.TaskWasDone}
	if o.CompletionDetected {
		d.Stop = true
		d.Reason = protocol.StopPRDComplete
	}
	return d
}

// NoProgressStreak returns the streak after an iteration. An iteration
// that completed its task or changed files resets it.
func NoProgressStreak(streak int, taskCompleted bool, filesChanged []string) int {
	if taskCompleted || len(filesChanged) > 0 {
		return 0
	}
	return streak + 1
}

// FormatIterationSummary builds a one-line summary of an iteration.
func FormatIterationSummary(iteration int, taskID string, success bool, filesChanged []string) string {
	status := "ok"
	if !success {
		status = "failed"
	}
	s := fmt.Sprintf("[iter %d] %s %s", iteration, taskID, status)
	if len(filesChanged) > 0 {
		s += fmt.Sprintf(" (files: %s)", strings.Join(filesChanged, ", "))
	} else {
		s += " (no files changed)"
	}
	return s
}
