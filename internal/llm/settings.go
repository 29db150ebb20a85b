package llm

import (
	"fmt"

	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
)

// Settings describes the claude settings prdloop passes with --settings
// and writes into .claude/settings.json on init.
type Settings struct {
	// Sandbox enables the claude sandbox.
	Sandbox bool
	// DenyPaths are directory globs the collaborator must not edit.
	DenyPaths []string
	// Allow are tool permission rules that never prompt.
	Allow []string
}

// BuildSettings renders s as compact JSON. It returns "" when s carries
// nothing.
func BuildSettings(s Settings) (string, error) {
	return mergeSettings("", s)
}

// MergeSettings applies s on top of an existing settings document,
// keeping unrelated keys.
func MergeSettings(existing []byte, s Settings) ([]byte, error) {
	base := string(existing)
	if base == "" {
		base = "{}"
	}
	out, err := mergeSettings(base, s)
	if err != nil {
		return nil, err
	}
	if out == "" {
		out = base
	}
	return pretty.Pretty([]byte(out)), nil
}

func mergeSettings(doc string, s Settings) (string, error) {
	if !s.Sandbox && len(s.DenyPaths) == 0 && len(s.Allow) == 0 {
		return "", nil
	}
	if doc == "" {
		doc = "{}"
	}

	var err error
	if s.Sandbox {
		if doc, err = sjson.Set(doc, "sandbox.enabled", true); err != nil {
			return "", fmt.Errorf("set sandbox: %w", err)
		}
	}
	for _, p := range s.DenyPaths {
		for _, tool := range []string{"Edit", "Write"} {
			if doc, err = sjson.Set(doc, "permissions.deny.-1", fmt.Sprintf("%s(%s/**)", tool, p)); err != nil {
				return "", fmt.Errorf("set deny rule: %w", err)
			}
		}
	}
	for _, rule := range s.Allow {
		if doc, err = sjson.Set(doc, "permissions.allow.-1", rule); err != nil {
			return "", fmt.Errorf("set allow rule: %w", err)
		}
	}
	return doc, nil
}
