// Package engine implements the pure decision step of the execution loop.
// The engine receives a snapshot of the loop's inputs (abort and pause
// flags, document state, the selected task, consensus state) and returns an
// Action describing what the runner should do. It performs no I/O.
package engine

import (
	"github.com/alexander-akhmetov/prdloop/internal/protocol"
)

// ActionKind identifies the type of action the runner should execute.
type ActionKind int

const (
	// ActionExecute tells the runner to start an iteration on TaskID.
	ActionExecute ActionKind = iota
	// ActionWaitResume tells the runner to block until resumed or aborted.
	ActionWaitResume
	// ActionWaitConsensus tells the runner to block until the consensus on
	// TaskID is resolved.
	ActionWaitConsensus
	// ActionExit tells the runner to stop with Reason.
	ActionExit
)

func (k ActionKind) String() string {
	switch k {
	case ActionExecute:
		return "execute"
	case ActionWaitResume:
		return "wait_resume"
	case ActionWaitConsensus:
		return "wait_consensus"
	case ActionExit:
		return "exit"
	default:
		return "unknown"
	}
}

// Action is the instruction returned by the engine to the loop runner.
type Action struct {
	Kind ActionKind

	// ActionExit
	Reason  protocol.StopReason
	Message string

	// ActionExecute / ActionWaitConsensus
	TaskID string
}

// Input is the snapshot DecideNext decides on.
type Input struct {
	AbortRequested   bool
	Paused           bool
	DocumentComplete bool
	// Iterations is the number of iterations already run.
	Iterations int
	// NoProgress counts the trailing iterations that made no progress.
	NoProgress int
	// NextTaskID is empty when no task is selectable.
	NextTaskID string
	// ConsensusPending reports an unresolved consensus on NextTaskID.
	ConsensusPending bool
}

// Outcome is what the runner observed after an iteration.
type Outcome struct {
	Success            bool
	CompletionDetected bool
	// TaskDone reports whether the worked task is completed after reload.
	TaskDone bool
	// TaskWasDone reports whether it was completed before the iteration.
	TaskWasDone bool
}

// OutcomeDecision is the engine's reading of an Outcome.
type OutcomeDecision struct {
	// TaskCompleted is true when the worked task transitioned to done.
	TaskCompleted bool
	Stop          bool
	Reason        protocol.StopReason
}
