// Package protocol defines the cross-package vocabulary for prdloop:
// the completion marker, stop reasons, engine and reviewer states, task
// statuses and mutation error codes.
package protocol

// CompletionMarker is the literal the execution collaborator is told to
// print once every task in the PRD is done.
const CompletionMarker = "<promise>COMPLETE</promise>"

// StopReason explains why the execution loop stopped.
type StopReason string

const (
	StopPRDComplete   StopReason = "prd_complete"
	StopNoTasks       StopReason = "no_tasks"
	StopMaxIterations StopReason = "max_iterations"
	StopUserAbort     StopReason = "user_abort"
	StopNoProgress    StopReason = "no_progress"
	StopError         StopReason = "error"
)

func (r StopReason) String() string { return string(r) }

// EngineState is the lifecycle state of the execution loop.
type EngineState string

const (
	EngineIdle    EngineState = "idle"
	EngineRunning EngineState = "running"
	EnginePaused  EngineState = "paused"
	// EngineCompleting is reserved. No transition enters it.
	EngineCompleting EngineState = "completing"
	EngineStopped    EngineState = "stopped"
)

// ReviewerState is the lifecycle state of the lookahead reviewer.
type ReviewerState string

const (
	ReviewerIdle                ReviewerState = "idle"
	ReviewerRunning             ReviewerState = "running"
	ReviewerPaused              ReviewerState = "paused"
	ReviewerWaitingForConsensus ReviewerState = "waiting_for_consensus"
	ReviewerStopped             ReviewerState = "stopped"
	ReviewerError               ReviewerState = "error"
)

// Document status values.
const (
	DocPlanning   = "planning"
	DocInProgress = "in_progress"
	DocCompleted  = "completed"
)

// Mutation error codes reported in store.MutationResult.
const (
	CodeNotFound     = "NOT_FOUND"
	CodeInvalidInput = "INVALID_INPUT"
	CodeNotLoaded    = "NOT_LOADED"
	CodeWrongForm    = "WRONG_FORM"
)

// FindingsBlockKey is the key that begins the YAML findings block returned
// by CLI-backed analysis.
const FindingsBlockKey = "PRDLOOP_FINDINGS"

// IsValid reports whether r is a recognised stop reason.
func (r StopReason) IsValid() bool {
	switch r {
	case StopPRDComplete, StopNoTasks, StopMaxIterations, StopUserAbort, StopNoProgress, StopError:
		return true
	default:
		return false
	}
}
