package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexander-akhmetov/prdloop/internal/config"
	"github.com/alexander-akhmetov/prdloop/internal/prd"
	"github.com/alexander-akhmetov/prdloop/internal/protocol"
	"github.com/alexander-akhmetov/prdloop/internal/review"
)

func TestExecute(t *testing.T) {
	b, err := NewBuilder(nil)
	require.NoError(t, err)

	tests := []struct {
		name        string
		data        ExecuteData
		wantSubs    []string
		notWantSubs []string
	}{
		{
			name: "references files and marker",
			data: ExecuteData{
				PRDPath:       "/work/prd.json",
				ProgressPath:  "/work/progress.txt",
				Task:          prd.Item{ID: "impl-001", Title: "Scaffold", Description: "Create the module layout"},
				Progress:      prd.Progress{Total: 4, Completed: 1, Percentage: 25},
				Iteration:     2,
				MaxIterations: 10,
			},
			wantSubs: []string{
				"PRD: /work/prd.json",
				"Progress log: /work/progress.txt",
				"impl-001: Scaffold",
				"Create the module layout",
				"1/4 tasks complete (25%)",
				"Iteration 2 of 10",
				protocol.CompletionMarker,
			},
			notWantSubs: []string{"Reviewer findings"},
		},
		{
			name: "task findings are included",
			data: ExecuteData{
				Task: prd.Item{ID: "US-002", Title: "Login", Findings: []string{"bcrypt cost too low"}},
			},
			wantSubs: []string{"## Reviewer findings for this task", "- bcrypt cost too low"},
		},
		{
			name: "unlimited iterations",
			data: ExecuteData{Task: prd.Item{ID: "a", Title: "b"}, Iteration: 3},
			wantSubs:    []string{"Iteration 3."},
			notWantSubs: []string{"Iteration 3 of"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := b.Execute(tc.data)
			require.NoError(t, err)
			for _, sub := range tc.wantSubs {
				assert.Contains(t, got, sub)
			}
			for _, sub := range tc.notWantSubs {
				assert.NotContains(t, got, sub)
			}
		})
	}
}

func TestAnalyze(t *testing.T) {
	b, err := NewBuilder(nil)
	require.NoError(t, err)

	got, err := b.Analyze(AnalyzeData{
		Task: prd.Item{ID: "impl-003", Title: "Add Redis cache"},
		Results: []review.SearchResult{
			{Title: "Redis 7 breaking changes", URL: "https://example.com/r7", Snippet: "ACL defaults changed"},
		},
	})
	require.NoError(t, err)
	assert.Contains(t, got, "impl-003: Add Redis cache")
	assert.Contains(t, got, "- Redis 7 breaking changes (https://example.com/r7): ACL defaults changed")
	assert.Contains(t, got, protocol.FindingsBlockKey+":")
}

func TestCustomTemplates(t *testing.T) {
	b, err := NewBuilder(&config.Prompts{
		Execute: "do {{.Task.ID}} then print {{.CompletionMarker}}",
		Analyze: "look at {{.Task.Title}}",
	})
	require.NoError(t, err)

	got, err := b.Execute(ExecuteData{Task: prd.Item{ID: "x"}})
	require.NoError(t, err)
	assert.Equal(t, "do x then print "+protocol.CompletionMarker, got)
}

func TestInvalidTemplates(t *testing.T) {
	_, err := NewBuilder(&config.Prompts{Execute: "{{.Broken", Analyze: "ok"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "execute")

	_, err = NewBuilder(&config.Prompts{Execute: "ok", Analyze: "{{end}}"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "analyze")

	b, err := NewBuilder(&config.Prompts{Execute: "{{.Nope}}", Analyze: "ok"})
	require.NoError(t, err)
	_, err = b.Execute(ExecuteData{})
	require.Error(t, err)
}
