// Package review implements the lookahead reviewer that investigates tasks
// ahead of the execution loop and raises findings for consensus.
package review

import (
	"context"
	"time"

	"github.com/alexander-akhmetov/prdloop/internal/prd"
	"github.com/alexander-akhmetov/prdloop/internal/store"
)

// SearchResult is one hit returned by a Searcher.
type SearchResult struct {
	Title   string `json:"title" yaml:"title"`
	Snippet string `json:"snippet" yaml:"snippet"`
	URL     string `json:"url" yaml:"url"`
}

// Searcher runs a web search query.
type Searcher interface {
	Search(ctx context.Context, query string, timeout time.Duration) ([]SearchResult, error)
}

// availability is implemented by searchers that can be switched off or
// lack credentials.
type availability interface {
	Available() bool
}

// AnalysisRequest is the input handed to an Analyzer.
type AnalysisRequest struct {
	Task    prd.Item
	Results []SearchResult
	Model   string
	Timeout time.Duration
}

// Analysis is an Analyzer verdict.
type Analysis struct {
	Findings  []string `yaml:"findings"`
	Reasoning string   `yaml:"reasoning"`
}

// Analyzer turns a task and optional search context into findings.
type Analyzer interface {
	Analyze(ctx context.Context, req AnalysisRequest) (*Analysis, error)
}

// FindingsWriter persists findings onto a task. *store.Manager satisfies it.
type FindingsWriter interface {
	SetFindings(id string, findings []string) store.MutationResult
}

// StepReviewResult is the outcome of reviewing a single task.
type StepReviewResult struct {
	StepID    string         `json:"stepId"`
	Success   bool           `json:"success"`
	Findings  []string       `json:"findings"`
	Results   []SearchResult `json:"searchResults,omitempty"`
	Duration  time.Duration  `json:"duration"`
	TimedOut  bool           `json:"timedOut"`
	Error     string         `json:"error,omitempty"`
	Reasoning string         `json:"reasoning,omitempty"`
}

// HasFindings reports whether the review raised anything.
func (r StepReviewResult) HasFindings() bool {
	return len(r.Findings) > 0
}
