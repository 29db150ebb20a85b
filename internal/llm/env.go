package llm

import (
	"os"
	"strings"
)

// ProviderAPIKeyEnvVars maps provider names to their expected API key env var.
var ProviderAPIKeyEnvVars = map[string]string{
	"anthropic": "ANTHROPIC_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"google":    "GEMINI_API_KEY",
	"groq":      "GROQ_API_KEY",
	"mistral":   "MISTRAL_API_KEY",
}

// EnvConfig holds environment overrides for claude subprocesses.
type EnvConfig struct {
	ConfigDir string
	APIKey    string
}

// FilterEnv returns a copy of environ with entries matching any of the given
// prefixes removed. Each prefix should include a trailing "=" to match env
// var assignments (e.g. "ANTHROPIC_API_KEY=").
func FilterEnv(environ []string, excludePrefixes ...string) []string {
	result := make([]string, 0, len(environ))
	for _, e := range environ {
		filtered := false
		for _, prefix := range excludePrefixes {
			if strings.HasPrefix(e, prefix) {
				filtered = true
				break
			}
		}
		if !filtered {
			result = append(result, e)
		}
	}
	return result
}

// BuildEnv constructs the environment for a claude subprocess.
// ANTHROPIC_API_KEY and CLAUDE_CONFIG_DIR are dropped from the inherited
// environment and only set when configured. PRDLOOP_* variables never
// reach the subprocess.
func BuildEnv(cfg EnvConfig) []string {
	env := FilterEnv(os.Environ(), "ANTHROPIC_API_KEY=", "CLAUDE_CONFIG_DIR=", "PRDLOOP_")
	if cfg.ConfigDir != "" {
		env = append(env, "CLAUDE_CONFIG_DIR="+cfg.ConfigDir)
	}
	if cfg.APIKey != "" {
		env = append(env, "ANTHROPIC_API_KEY="+cfg.APIKey)
	}
	return env
}
