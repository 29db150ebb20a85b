// Package event defines typed events published by the execution loop and
// the lookahead reviewer. The CLI writer, the TUI and the progress log
// consume them through a Bus.
package event

import (
	"time"

	"github.com/alexander-akhmetov/prdloop/internal/prd"
	"github.com/alexander-akhmetov/prdloop/internal/protocol"
)

// Kind identifies the type of event.
type Kind int

const (
	// KindProg is a free-form progress message from the loop.
	KindProg Kind = iota
	// KindToolUse is a tool invocation reported by the execution collaborator.
	KindToolUse
	// KindToolResult is a summary of a tool result.
	KindToolResult
	// KindMarkdown is assistant text from the execution collaborator.
	KindMarkdown

	KindIterationStart
	KindIterationComplete
	KindTaskStart
	KindTaskComplete
	KindDocumentComplete
	KindPaused
	KindResumed
	// KindStopped carries the stop reason and, in Payload, the final result.
	KindStopped
	KindProgress
	KindError

	KindReviewStepStarted
	KindReviewStepCompleted
	// KindConsensusNeeded carries the findings that must be resolved before
	// the loop reaches TaskID.
	KindConsensusNeeded
	KindReviewerPaused
	KindReviewerResumed
	KindReviewerCaughtUp
)

var kindNames = map[Kind]string{
	KindProg:                "prog",
	KindToolUse:             "tool_use",
	KindToolResult:          "tool_result",
	KindMarkdown:            "markdown",
	KindIterationStart:      "iteration_start",
	KindIterationComplete:   "iteration_complete",
	KindTaskStart:           "task_start",
	KindTaskComplete:        "task_complete",
	KindDocumentComplete:    "document_complete",
	KindPaused:              "paused",
	KindResumed:             "resumed",
	KindStopped:             "stopped",
	KindProgress:            "progress",
	KindError:               "error",
	KindReviewStepStarted:   "review_step_started",
	KindReviewStepCompleted: "review_step_completed",
	KindConsensusNeeded:     "consensus_needed",
	KindReviewerPaused:      "reviewer_paused",
	KindReviewerResumed:     "reviewer_resumed",
	KindReviewerCaughtUp:    "reviewer_caught_up",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// FromReviewer reports whether events of kind k are published by the reviewer.
func (k Kind) FromReviewer() bool {
	return k >= KindReviewStepStarted && k <= KindReviewerCaughtUp
}

// Event is a single typed event. Which fields are set depends on Kind.
type Event struct {
	Kind      Kind
	Time      time.Time
	Text      string
	TaskID    string
	Iteration int
	Findings  []string
	Progress  prd.Progress
	Reason    protocol.StopReason
	// Payload holds kind-specific values such as the loop result on
	// KindStopped or the step result on KindReviewStepCompleted.
	Payload any
}

// Handler is a callback that receives typed events.
type Handler func(Event)

// Publish calls h. A nil Handler drops the event.
func (h Handler) Publish(e Event) {
	if h != nil {
		h(e)
	}
}

// Publisher accepts events. Both Handler and *Bus implement it.
type Publisher interface {
	Publish(Event)
}

// Prog creates a KindProg event.
func Prog(text string) Event { return Event{Kind: KindProg, Text: text} }

// ToolUse creates a KindToolUse event.
func ToolUse(text string) Event { return Event{Kind: KindToolUse, Text: text} }

// ToolResult creates a KindToolResult event.
func ToolResult(text string) Event { return Event{Kind: KindToolResult, Text: text} }

// Markdown creates a KindMarkdown event.
func Markdown(text string) Event { return Event{Kind: KindMarkdown, Text: text} }

// Error creates a KindError event.
func Error(text string) Event { return Event{Kind: KindError, Text: text} }

func IterationStart(n int, taskID string) Event {
	return Event{Kind: KindIterationStart, Iteration: n, TaskID: taskID}
}

// IterationComplete carries the iteration result in Payload.
func IterationComplete(n int, taskID string, result any) Event {
	return Event{Kind: KindIterationComplete, Iteration: n, TaskID: taskID, Payload: result}
}

func TaskStart(taskID, title string) Event {
	return Event{Kind: KindTaskStart, TaskID: taskID, Text: title}
}

func TaskComplete(taskID, title string) Event {
	return Event{Kind: KindTaskComplete, TaskID: taskID, Text: title}
}

func DocumentComplete(p prd.Progress) Event {
	return Event{Kind: KindDocumentComplete, Progress: p}
}

func Paused() Event  { return Event{Kind: KindPaused} }
func Resumed() Event { return Event{Kind: KindResumed} }

// Stopped carries the final loop result in Payload.
func Stopped(reason protocol.StopReason, message string, result any) Event {
	return Event{Kind: KindStopped, Reason: reason, Text: message, Payload: result}
}

func ProgressUpdate(p prd.Progress) Event {
	return Event{Kind: KindProgress, Progress: p}
}

func ReviewStepStarted(taskID, title string) Event {
	return Event{Kind: KindReviewStepStarted, TaskID: taskID, Text: title}
}

// ReviewStepCompleted carries the step result in Payload.
func ReviewStepCompleted(taskID string, findings []string, result any) Event {
	return Event{Kind: KindReviewStepCompleted, TaskID: taskID, Findings: findings, Payload: result}
}

func ConsensusNeeded(taskID string, findings []string) Event {
	return Event{Kind: KindConsensusNeeded, TaskID: taskID, Findings: findings}
}

func ReviewerPaused(reason string) Event { return Event{Kind: KindReviewerPaused, Text: reason} }
func ReviewerResumed() Event             { return Event{Kind: KindReviewerResumed} }

// ReviewerCaughtUp is published at the end of a lookahead pass.
func ReviewerCaughtUp(reviewed int) Event {
	return Event{Kind: KindReviewerCaughtUp, Iteration: reviewed}
}
