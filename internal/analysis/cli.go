package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/alexander-akhmetov/prdloop/internal/apperr"
	"github.com/alexander-akhmetov/prdloop/internal/llm"
	"github.com/alexander-akhmetov/prdloop/internal/prompt"
	"github.com/alexander-akhmetov/prdloop/internal/review"
)

// CLIAnalyzer asks the claude CLI, in plan mode, to review a task.
type CLIAnalyzer struct {
	invoker    llm.Invoker
	prompts    *prompt.Builder
	flags      []string
	workingDir string
}

var _ review.Analyzer = (*CLIAnalyzer)(nil)

// NewCLIAnalyzer creates a CLI-backed analyzer. A nil builder uses the
// default prompts.
func NewCLIAnalyzer(inv llm.Invoker, prompts *prompt.Builder, flags, workingDir string) (*CLIAnalyzer, error) {
	if prompts == nil {
		b, err := prompt.NewBuilder(nil)
		if err != nil {
			return nil, err
		}
		prompts = b
	}
	return &CLIAnalyzer{
		invoker:    inv,
		prompts:    prompts,
		flags:      strings.Fields(flags),
		workingDir: workingDir,
	}, nil
}

// Analyze renders the analysis prompt and parses the findings block.
func (a *CLIAnalyzer) Analyze(ctx context.Context, req review.AnalysisRequest) (*review.Analysis, error) {
	text, err := a.prompts.Analyze(prompt.AnalyzeData{Task: req.Task, Results: req.Results})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConfiguration, "analyze", err)
	}

	res, err := a.invoker.Invoke(ctx, text, llm.Options{
		WorkingDir:     a.workingDir,
		Model:          req.Model,
		PermissionMode: "plan",
		ExtraFlags:     a.flags,
		Timeout:        req.Timeout,
	})
	if err != nil {
		return nil, err
	}

	analysis, err := ParseFindings(res.Text)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindExternalFailure, "analyze", fmt.Errorf("parse findings for %s: %w", req.Task.ID, err))
	}
	return analysis, nil
}
