// Package analysis implements the analysis collaborators of the lookahead
// reviewer: an API-backed analyzer on gollm and a CLI-backed analyzer that
// shells out through the llm package.
package analysis

import (
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/alexander-akhmetov/prdloop/internal/protocol"
	"github.com/alexander-akhmetov/prdloop/internal/review"
)

// findingsBlockRegex matches the PRDLOOP_FINDINGS block, fenced or bare.
var findingsBlockRegex = regexp.MustCompile(`(?s)` + protocol.FindingsBlockKey + `:\s*\n(.*?)(?:\n\s*\x60{3}|$)`)

// ParseFindings extracts the findings block from model output. Output
// without a block yields an empty analysis; a block that is not valid
// YAML is an error.
func ParseFindings(output string) (*review.Analysis, error) {
	match := findingsBlockRegex.FindStringSubmatch(output)
	if match == nil {
		return &review.Analysis{Findings: []string{}}, nil
	}

	content := protocol.FindingsBlockKey + ":\n" + match[1]
	content = strings.TrimRight(content, "`\n ")

	var wrapper map[string]review.Analysis
	if err := yaml.Unmarshal([]byte(content), &wrapper); err != nil {
		return nil, err
	}

	a := wrapper[protocol.FindingsBlockKey]
	findings := make([]string, 0, len(a.Findings))
	for _, f := range a.Findings {
		if f = strings.TrimSpace(f); f != "" {
			findings = append(findings, f)
		}
	}
	a.Findings = findings
	return &a, nil
}
