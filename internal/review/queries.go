package review

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// MaxQueries bounds the number of searches issued per task.
	MaxQueries = 3
	// MaxHeuristicFindings caps findings synthesized from snippets.
	MaxHeuristicFindings = 5
)

// technology vocabulary, grouped loosely by area. Order decides which
// technologies win when a task mentions more than MaxQueries of them.
var technologies = []string{
	// frameworks
	"react", "next.js", "vue", "angular", "svelte", "django", "flask", "fastapi", "rails", "express", "spring", "laravel", "gin", "echo",
	// runtimes and languages
	"node.js", "deno", "bun", "python", "golang", "rust", "java", "typescript", "kotlin", "swift",
	// datastores
	"postgres", "postgresql", "mysql", "sqlite", "mongodb", "redis", "elasticsearch", "dynamodb", "kafka", "rabbitmq",
	// cloud and deploy targets
	"aws", "gcp", "azure", "kubernetes", "docker", "terraform", "vercel", "netlify", "cloudflare", "lambda",
	// test tools
	"jest", "vitest", "pytest", "playwright", "cypress", "selenium",
	// protocols
	"graphql", "grpc", "websocket", "oauth", "rest api", "http/2", "mqtt",
}

var technologyPatterns = compileWords(technologies)

var (
	securityPattern = regexp.MustCompile(`(?i)\b(auth|authentication|authorization|login|password|token|jwt|oauth|encrypt\w*|secret|credential\w*|permission\w*|session|csrf|xss|injection|sanitiz\w*)\b`)

	performancePattern = regexp.MustCompile(`(?i)\b(performance|latency|cach\w*|scal\w*|optimi\w*|throughput|concurren\w*|memory|index\w*|batch\w*|pagination)\b`)

	riskPattern = regexp.MustCompile(`(?i)\b(issues?|bugs?|problems?|errors?|warnings?|deprecated|vulnerabilit(?:y|ies)|breaking)\b`)
)

func compileWords(words []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(words))
	for i, w := range words {
		out[i] = regexp.MustCompile(`(?i)(^|[^\w.])` + regexp.QuoteMeta(w) + `($|[^\w])`)
	}
	return out
}

// DeriveQueries builds at most MaxQueries search queries for a task.
// Technology matches come first, leaving room for one security and one
// performance query when the text calls for them. A task matching nothing
// gets a single generic best-practices query.
func DeriveQueries(title, description string) []string {
	text := title + " " + description

	var special []string
	subject := subjectOf(text, title)
	if securityPattern.MatchString(text) {
		special = append(special, fmt.Sprintf("%s security vulnerabilities best practices", subject))
	}
	if performancePattern.MatchString(text) {
		special = append(special, fmt.Sprintf("%s performance pitfalls", subject))
	}

	room := MaxQueries - len(special)
	var queries []string
	for i, p := range technologyPatterns {
		if len(queries) == room {
			break
		}
		if p.MatchString(text) {
			queries = append(queries, fmt.Sprintf("%s known issues breaking changes", technologies[i]))
		}
	}
	queries = append(queries, special...)

	if len(queries) == 0 {
		queries = append(queries, fmt.Sprintf("%s best practices", strings.TrimSpace(title)))
	}
	return queries
}

// subjectOf names the first technology in text, or falls back to the title.
func subjectOf(text, title string) string {
	for i, p := range technologyPatterns {
		if p.MatchString(text) {
			return technologies[i]
		}
	}
	return strings.TrimSpace(title)
}

// HeuristicFindings scans snippets for risk keywords. Duplicates are
// dropped and the result is capped at MaxHeuristicFindings.
func HeuristicFindings(results []SearchResult) []string {
	seen := make(map[string]struct{})
	findings := []string{}
	for _, r := range results {
		snippet := strings.TrimSpace(r.Snippet)
		if snippet == "" || !riskPattern.MatchString(snippet) {
			continue
		}
		finding := snippet
		if r.Title != "" {
			finding = r.Title + ": " + snippet
		}
		key := strings.ToLower(finding)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		findings = append(findings, finding)
		if len(findings) == MaxHeuristicFindings {
			break
		}
	}
	return findings
}
