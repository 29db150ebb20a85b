package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexander-akhmetov/prdloop/internal/protocol"
)

func TestDecideNext(t *testing.T) {
	e := &Engine{MaxIterations: 5}

	tests := []struct {
		name       string
		in         Input
		wantKind   ActionKind
		wantReason protocol.StopReason
		wantTask   string
	}{
		{
			name:       "abort wins over everything",
			in:         Input{AbortRequested: true, Paused: true, DocumentComplete: true, NextTaskID: "a"},
			wantKind:   ActionExit,
			wantReason: protocol.StopUserAbort,
		},
		{
			name:     "paused waits",
			in:       Input{Paused: true, NextTaskID: "a"},
			wantKind: ActionWaitResume,
		},
		{
			name:       "complete document",
			in:         Input{DocumentComplete: true},
			wantKind:   ActionExit,
			wantReason: protocol.StopPRDComplete,
		},
		{
			name:       "iterations exhausted",
			in:         Input{Iterations: 5, NextTaskID: "a"},
			wantKind:   ActionExit,
			wantReason: protocol.StopMaxIterations,
		},
		{
			name:       "nothing selectable",
			in:         Input{Iterations: 1},
			wantKind:   ActionExit,
			wantReason: protocol.StopNoTasks,
		},
		{
			name:     "consensus gate",
			in:       Input{NextTaskID: "impl-002", ConsensusPending: true},
			wantKind: ActionWaitConsensus,
			wantTask: "impl-002",
		},
		{
			name:     "execute next task",
			in:       Input{Iterations: 4, NextTaskID: "impl-001"},
			wantKind: ActionExecute,
			wantTask: "impl-001",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := e.DecideNext(tc.in)
			require.Equal(t, tc.wantKind, got.Kind, "got %s", got.Kind)
			assert.Equal(t, tc.wantReason, got.Reason)
			assert.Equal(t, tc.wantTask, got.TaskID)
		})
	}
}

func TestDecideNextNoProgress(t *testing.T) {
	tests := []struct {
		name       string
		engine     Engine
		in         Input
		wantKind   ActionKind
		wantReason protocol.StopReason
	}{
		{
			name:       "streak reaches limit",
			engine:     Engine{MaxNoProgress: 3},
			in:         Input{Iterations: 3, NoProgress: 3, NextTaskID: "a"},
			wantKind:   ActionExit,
			wantReason: protocol.StopNoProgress,
		},
		{
			name:     "streak below limit",
			engine:   Engine{MaxNoProgress: 3},
			in:       Input{Iterations: 2, NoProgress: 2, NextTaskID: "a"},
			wantKind: ActionExecute,
		},
		{
			name:     "guard disabled",
			engine:   Engine{},
			in:       Input{Iterations: 50, NoProgress: 50, NextTaskID: "a"},
			wantKind: ActionExecute,
		},
		{
			name:       "iteration budget checked first",
			engine:     Engine{MaxIterations: 3, MaxNoProgress: 3},
			in:         Input{Iterations: 3, NoProgress: 3, NextTaskID: "a"},
			wantKind:   ActionExit,
			wantReason: protocol.StopMaxIterations,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.engine.DecideNext(tc.in)
			require.Equal(t, tc.wantKind, got.Kind, "got %s", got.Kind)
			assert.Equal(t, tc.wantReason, got.Reason)
		})
	}
}

func TestNoProgressStreak(t *testing.T) {
	assert.Equal(t, 1, NoProgressStreak(0, false, nil))
	assert.Equal(t, 3, NoProgressStreak(2, false, []string{}))
	assert.Equal(t, 0, NoProgressStreak(2, true, nil))
	assert.Equal(t, 0, NoProgressStreak(2, false, []string{"main.go"}))
}

func TestDecideNextUnlimitedIterations(t *testing.T) {
	e := &Engine{}
	got := e.DecideNext(Input{Iterations: 10_000, NextTaskID: "a"})
	assert.Equal(t, ActionExecute, got.Kind)
}

func TestProcessOutcome(t *testing.T) {
	e := &Engine{}

	tests := []struct {
		name string
		in   Outcome
		want OutcomeDecision
	}{
		{
			name: "task finished this iteration",
			in:   Outcome{Success: true, TaskDone: true},
			want: OutcomeDecision{TaskCompleted: true},
		},
		{
			name: "task already done before",
			in:   Outcome{Success: true, TaskDone: true, TaskWasDone: true},
			want: OutcomeDecision{},
		},
		{
			name: "completion marker stops the loop",
			in:   Outcome{Success: true, CompletionDetected: true, TaskDone: true},
			want: OutcomeDecision{TaskCompleted: true, Stop: true, Reason: protocol.StopPRDComplete},
		},
		{
			name: "failed iteration continues",
			in:   Outcome{Success: false},
			want: OutcomeDecision{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, e.ProcessOutcome(tc.in))
		})
	}
}

func TestFormatIterationSummary(t *testing.T) {
	assert.Equal(t, "[iter 2] impl-001 ok (files: a.go, b.go)",
		FormatIterationSummary(2, "impl-001", true, []string{"a.go", "b.go"}))
	assert.Equal(t, "[iter 3] US-002 failed (no files changed)",
		FormatIterationSummary(3, "US-002", false, nil))
}

func TestActionKindString(t *testing.T) {
	assert.Equal(t, "execute", ActionExecute.String())
	assert.Equal(t, "wait_consensus", ActionWaitConsensus.String())
	assert.Equal(t, "unknown", ActionKind(42).String())
}
