package review

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveQueries(t *testing.T) {
	tests := []struct {
		name        string
		title       string
		description string
		want        []string
	}{
		{
			name:  "generic fallback",
			title: "Write the changelog",
			want:  []string{"Write the changelog best practices"},
		},
		{
			name:        "technology match",
			title:       "Add GraphQL endpoint",
			description: "Expose orders over the API",
			want:        []string{"graphql known issues breaking changes"},
		},
		{
			name:  "security keyword",
			title: "Add JWT login to the Express app",
			want: []string{
				"express known issues breaking changes",
				"express security vulnerabilities best practices",
			},
		},
		{
			name:  "performance keyword without technology",
			title: "Reduce checkout latency",
			want:  []string{"Reduce checkout latency performance pitfalls"},
		},
		{
			name:        "capped at three with room for special queries",
			title:       "Deploy React app with Docker on Kubernetes backed by Redis",
			description: "Add caching of the session token",
			want: []string{
				"react known issues breaking changes",
				"react security vulnerabilities best practices",
				"react performance pitfalls",
			},
		},
		{
			name:  "three technologies",
			title: "Migrate from MySQL to PostgreSQL on AWS and Terraform",
			want: []string{
				"postgresql known issues breaking changes",
				"mysql known issues breaking changes",
				"aws known issues breaking changes",
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := DeriveQueries(tc.title, tc.description)
			assert.Equal(t, tc.want, got)
			assert.LessOrEqual(t, len(got), MaxQueries)
		})
	}
}

func TestHeuristicFindings(t *testing.T) {
	t.Run("keeps risky snippets once", func(t *testing.T) {
		got := HeuristicFindings([]SearchResult{
			{Title: "A", Snippet: "Known bug in v2"},
			{Title: "A", Snippet: "known BUG in v2"},
			{Title: "B", Snippet: "All good here"},
			{Snippet: "This API is deprecated"},
			{Title: "C", Snippet: "   "},
		})
		assert.Equal(t, []string{"A: Known bug in v2", "This API is deprecated"}, got)
	})

	t.Run("word boundaries", func(t *testing.T) {
		got := HeuristicFindings([]SearchResult{{Snippet: "tissue debugging terrors"}})
		assert.Empty(t, got)
	})

	t.Run("capped", func(t *testing.T) {
		var results []SearchResult
		for i := range 8 {
			results = append(results, SearchResult{Title: fmt.Sprintf("r%d", i), Snippet: "security vulnerability disclosed"})
		}
		assert.Len(t, HeuristicFindings(results), MaxHeuristicFindings)
	})

	t.Run("empty input", func(t *testing.T) {
		got := HeuristicFindings(nil)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})
}
