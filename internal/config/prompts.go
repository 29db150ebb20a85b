package config

import (
	"embed"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

//go:embed defaults/prompts/*.md
var promptsFS embed.FS

// Prompts holds the prompt templates. Each one is a text/template.
type Prompts struct {
	Execute string // instruction sent to the execution collaborator
	Analyze string // instruction sent to CLI-backed analysis
}

// LoadPrompts resolves every template from the first source that has a
// non-empty file: localDir/prompts, globalDir/prompts, then the embedded
// defaults. Either directory may be empty to skip it. A local file that
// cannot be read is logged and skipped; an unreadable global file is an
// error.
func LoadPrompts(globalDir, localDir string) (*Prompts, error) {
	var p Prompts
	for _, f := range []struct {
		name string
		dst  *string
	}{
		{"execute.md", &p.Execute},
		{"analyze.md", &p.Analyze},
	} {
		text, err := resolvePrompt(f.name, globalDir, localDir)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", f.name, err)
		}
		*f.dst = text
	}
	return &p, nil
}

// DefaultPrompts returns the embedded templates.
func DefaultPrompts() (*Prompts, error) {
	return LoadPrompts("", "")
}

func resolvePrompt(name, globalDir, localDir string) (string, error) {
	if localDir != "" {
		text, err := readPrompt(filepath.Join(localDir, "prompts", name))
		switch {
		case err != nil:
			log.Printf("warning: local prompt %s: %v (using global or embedded)", name, err)
		case text != "":
			return text, nil
		}
	}
	if globalDir != "" {
		text, err := readPrompt(filepath.Join(globalDir, "prompts", name))
		if err != nil || text != "" {
			return text, err
		}
	}

	data, err := promptsFS.ReadFile("defaults/prompts/" + name)
	if err != nil {
		return "", fmt.Errorf("read embedded prompt: %w", err)
	}
	return clean(data), nil
}

// readPrompt returns the cleaned contents of path, or "" when it does not
// exist.
func readPrompt(path string) (string, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is built from config dirs
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return clean(data), nil
}

func clean(data []byte) string {
	return strings.TrimSpace(stripComments(string(data)))
}

// stripComments drops lines that are "#" alone or start with "# ".
// Markdown headings ("## ...") survive. CRLF input is normalised.
func stripComments(content string) string {
	var b strings.Builder
	for i, line := range strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n") {
		if t := strings.TrimSpace(line); t == "#" || strings.HasPrefix(t, "# ") {
			continue
		}
		if i > 0 && b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
	}
	return b.String()
}
