package loop

import (
	"slices"
	"time"

	"github.com/alexander-akhmetov/prdloop/internal/prd"
	"github.com/alexander-akhmetov/prdloop/internal/protocol"
)

// IterationResult records one loop iteration.
type IterationResult struct {
	Iteration          int           `json:"iteration"`
	TaskID             string        `json:"taskId"`
	Success            bool          `json:"success"`
	CompletionDetected bool          `json:"completionDetected"`
	TaskCompleted      bool          `json:"taskCompleted"`
	Duration           time.Duration `json:"duration"`
	Error              string        `json:"error,omitempty"`
	Progress           prd.Progress  `json:"progress"`
	FilesChanged       []string      `json:"filesChanged,omitempty"`
}

// Result is the outcome of a whole run.
type Result struct {
	RunID         string              `json:"runId"`
	Reason        protocol.StopReason `json:"reason"`
	Message       string              `json:"message,omitempty"`
	IterationsRun int                 `json:"iterationsRun"`
	Iterations    []IterationResult   `json:"iterations"`
	Progress      prd.Progress        `json:"progress"`
	Duration      time.Duration       `json:"duration"`
}

// FilesChanged returns the sorted union of files changed across iterations.
func (r *Result) FilesChanged() []string {
	var files []string
	for _, it := range r.Iterations {
		files = append(files, it.FilesChanged...)
	}
	slices.Sort(files)
	return slices.Compact(files)
}

// Failed returns the iterations that did not succeed.
func (r *Result) Failed() []IterationResult {
	var out []IterationResult
	for _, it := range r.Iterations {
		if !it.Success {
			out = append(out, it)
		}
	}
	return out
}
