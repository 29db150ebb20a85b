// Package prompt renders the prompt templates sent to the execution and
// analysis collaborators.
package prompt

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/alexander-akhmetov/prdloop/internal/config"
	"github.com/alexander-akhmetov/prdloop/internal/prd"
	"github.com/alexander-akhmetov/prdloop/internal/protocol"
	"github.com/alexander-akhmetov/prdloop/internal/review"
)

// ExecuteData is the input of the execute template.
type ExecuteData struct {
	PRDPath          string
	ProgressPath     string
	CompletionMarker string
	Task             prd.Item
	Findings         []string
	Progress         prd.Progress
	Iteration        int
	MaxIterations    int
}

// AnalyzeData is the input of the analyze template.
type AnalyzeData struct {
	Task        prd.Item
	Results     []review.SearchResult
	FindingsKey string
}

// Builder holds parsed templates.
type Builder struct {
	execute *template.Template
	analyze *template.Template
}

// NewBuilder parses the templates in p. A nil p uses the embedded defaults.
func NewBuilder(p *config.Prompts) (*Builder, error) {
	if p == nil {
		var err error
		p, err = config.DefaultPrompts()
		if err != nil {
			return nil, err
		}
	}

	execute, err := template.New("execute").Option("missingkey=error").Parse(p.Execute)
	if err != nil {
		return nil, fmt.Errorf("parse execute prompt: %w", err)
	}
	analyze, err := template.New("analyze").Option("missingkey=error").Parse(p.Analyze)
	if err != nil {
		return nil, fmt.Errorf("parse analyze prompt: %w", err)
	}
	return &Builder{execute: execute, analyze: analyze}, nil
}

// Execute renders the instruction for one loop iteration. The completion
// marker defaults to protocol.CompletionMarker and the task findings are
// used when d.Findings is empty.
func (b *Builder) Execute(d ExecuteData) (string, error) {
	if d.CompletionMarker == "" {
		d.CompletionMarker = protocol.CompletionMarker
	}
	if len(d.Findings) == 0 {
		d.Findings = d.Task.Findings
	}
	return render(b.execute, d)
}

// Analyze renders the instruction for CLI-backed task analysis.
func (b *Builder) Analyze(d AnalyzeData) (string, error) {
	if d.FindingsKey == "" {
		d.FindingsKey = protocol.FindingsBlockKey
	}
	return render(b.analyze, d)
}

func render(t *template.Template, data any) (string, error) {
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", t.Name(), err)
	}
	return sb.String(), nil
}
