// Package config provides unified configuration management for prdloop.
// Configuration is loaded from multiple sources with the following precedence:
// embedded defaults → global file → env vars → local file → CLI flags.
// Config files may be YAML (config.yaml) or TOML (config.toml); when both
// exist in one directory the YAML file wins.
package config

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/alexander-akhmetov/prdloop/internal/apperr"
	"github.com/alexander-akhmetov/prdloop/internal/dirs"
)

//go:embed defaults/config.yaml
var defaultsFS embed.FS

// Analyzer kinds.
const (
	AnalyzerNone  = "none"
	AnalyzerGollm = "gollm"
	AnalyzerCLI   = "cli"
)

// ExecutorConfig configures the execution collaborator.
type ExecutorConfig struct {
	Command        string `yaml:"command" toml:"command"`
	Model          string `yaml:"model" toml:"model"`
	PermissionMode string `yaml:"permission_mode" toml:"permission_mode"`
	Sandbox        bool   `yaml:"sandbox" toml:"sandbox"`
	Flags          string `yaml:"flags" toml:"flags"`
	ConfigDir      string `yaml:"config_dir" toml:"config_dir"`

	SandboxSet bool `yaml:"-" toml:"-"`
}

// SearchConfig configures the web search collaborator.
type SearchConfig struct {
	Enabled    bool   `yaml:"enabled" toml:"enabled"`
	Endpoint   string `yaml:"endpoint" toml:"endpoint"`
	APIKeyEnv  string `yaml:"api_key_env" toml:"api_key_env"`
	Timeout    int    `yaml:"timeout" toml:"timeout"` // seconds
	MaxResults int    `yaml:"max_results" toml:"max_results"`

	EnabledSet bool `yaml:"-" toml:"-"`
}

// GollmConfig configures the API-backed analyzer.
type GollmConfig struct {
	Provider  string `yaml:"provider" toml:"provider"`
	Model     string `yaml:"model" toml:"model"`
	APIKeyEnv string `yaml:"api_key_env" toml:"api_key_env"`
	MaxTokens int    `yaml:"max_tokens" toml:"max_tokens"`
}

// AnalyzerConfig selects and configures the analysis collaborator.
type AnalyzerConfig struct {
	Kind    string      `yaml:"kind" toml:"kind"`
	Command string      `yaml:"command" toml:"command"`
	Flags   string      `yaml:"flags" toml:"flags"`
	Gollm   GollmConfig `yaml:"gollm" toml:"gollm"`
}

// ReviewConfig holds lookahead reviewer configuration.
type ReviewConfig struct {
	Enabled  bool           `yaml:"enabled" toml:"enabled"`
	Timeout  int            `yaml:"timeout" toml:"timeout"` // seconds
	Model    string         `yaml:"model" toml:"model"`
	Search   SearchConfig   `yaml:"search" toml:"search"`
	Analyzer AnalyzerConfig `yaml:"analyzer" toml:"analyzer"`

	EnabledSet bool `yaml:"-" toml:"-"`
	TimeoutSet bool `yaml:"-" toml:"-"`
}

// Config holds all configuration settings for prdloop.
// Fields ending in *Set track whether that field was explicitly set in config.
// This allows distinguishing explicit false/0 from "not set", enabling proper
// merge behavior where local config can override global config with zero values.
type Config struct {
	MaxIterations int    `yaml:"max_iterations" toml:"max_iterations"`
	MaxNoProgress int    `yaml:"max_no_progress" toml:"max_no_progress"`
	Timeout       int    `yaml:"timeout" toml:"timeout"` // seconds
	PRDPath       string `yaml:"prd_path" toml:"prd_path"`
	ProgressPath  string `yaml:"progress_path" toml:"progress_path"`
	Lock          bool   `yaml:"lock" toml:"lock"`
	SaveDelayMs   int    `yaml:"save_delay_ms" toml:"save_delay_ms"`

	Executor ExecutorConfig `yaml:"executor" toml:"executor"`
	Review   ReviewConfig   `yaml:"review" toml:"review"`

	// Prompts (loaded separately, not from config files)
	Prompts *Prompts `yaml:"-" toml:"-"`

	MaxIterationsSet bool `yaml:"-" toml:"-"`
	MaxNoProgressSet bool `yaml:"-" toml:"-"`
	TimeoutSet       bool `yaml:"-" toml:"-"`
	LockSet          bool `yaml:"-" toml:"-"`
	SaveDelayMsSet   bool `yaml:"-" toml:"-"`

	configDir string
	localDir  string
	sources   []string
}

// Sources returns the ordered list of sources that contributed to this config.
func (c *Config) Sources() []string {
	return c.sources
}

// LocalDir returns the local project config directory if one was detected.
func (c *Config) LocalDir() string {
	return c.localDir
}

// ConfigDir returns the global config directory.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// IterationTimeout returns the per-iteration timeout, 0 when disabled.
func (c *Config) IterationTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// ReviewTimeout returns the per-task review timeout.
func (c *Config) ReviewTimeout() time.Duration {
	return time.Duration(c.Review.Timeout) * time.Second
}

// SearchTimeout returns the per-query search timeout.
func (c *Config) SearchTimeout() time.Duration {
	return time.Duration(c.Review.Search.Timeout) * time.Second
}

// SaveDelay returns the autosave debounce window.
func (c *Config) SaveDelay() time.Duration {
	return time.Duration(c.SaveDelayMs) * time.Millisecond
}

// Load loads all configuration from the default locations. It detects
// .prdloop/ in the current working directory for local overrides and
// installs defaults if needed.
func Load() (*Config, error) {
	var localDir string
	if cwd, err := os.Getwd(); err == nil {
		localDir = dirs.LocalDir(cwd)
	}
	return LoadWithDirs(dirs.ConfigDir(), localDir)
}

// LoadWithDirs loads configuration with explicit global and local directories.
// If localDir is empty, only global config is used.
func LoadWithDirs(globalDir, localDir string) (*Config, error) {
	if err := InstallDefaults(globalDir); err != nil {
		return nil, fmt.Errorf("install defaults: %w", err)
	}

	cfg, err := loadEmbedded()
	if err != nil {
		return nil, fmt.Errorf("load embedded defaults: %w", err)
	}
	cfg.sources = append(cfg.sources, "embedded")

	if globalCfg, path, err := loadDir(globalDir); err != nil {
		return nil, fmt.Errorf("load global config: %w", err)
	} else if globalCfg != nil {
		cfg.mergeFrom(globalCfg)
		cfg.sources = append(cfg.sources, path)
	}

	cfg.applyEnv()

	if localDir != "" {
		if localCfg, path, err := loadDir(localDir); err != nil {
			return nil, fmt.Errorf("load local config: %w", err)
		} else if localCfg != nil {
			cfg.mergeFrom(localCfg)
			cfg.sources = append(cfg.sources, path)
		}
	}

	cfg.configDir = globalDir
	cfg.localDir = localDir

	prompts, err := LoadPrompts(globalDir, localDir)
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	cfg.Prompts = prompts

	return cfg, nil
}

// Default returns the embedded defaults with embedded prompts, without
// touching the filesystem.
func Default() (*Config, error) {
	cfg, err := loadEmbedded()
	if err != nil {
		return nil, err
	}
	cfg.sources = []string{"embedded"}
	cfg.Prompts, err = DefaultPrompts()
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// InstallDefaults creates the config directory and installs default config if not exists.
func InstallDefaults(configDir string) error {
	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	promptsDir := filepath.Join(configDir, "prompts")
	if err := os.MkdirAll(promptsDir, 0o700); err != nil {
		return fmt.Errorf("create prompts dir: %w", err)
	}

	yamlPath := filepath.Join(configDir, "config.yaml")
	_, yamlErr := os.Stat(yamlPath)
	_, tomlErr := os.Stat(filepath.Join(configDir, "config.toml"))
	if os.IsNotExist(yamlErr) && os.IsNotExist(tomlErr) {
		data, err := defaultsFS.ReadFile("defaults/config.yaml")
		if err != nil {
			return fmt.Errorf("read embedded config: %w", err)
		}
		if err := os.WriteFile(yamlPath, data, 0o600); err != nil {
			return fmt.Errorf("write config file: %w", err)
		}
	}

	return nil
}

// DefaultConfigYAML returns the embedded default config file.
func DefaultConfigYAML() ([]byte, error) {
	return defaultsFS.ReadFile("defaults/config.yaml")
}

func loadEmbedded() (*Config, error) {
	data, err := DefaultConfigYAML()
	if err != nil {
		return nil, fmt.Errorf("read embedded defaults: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// loadDir loads config.yaml or, failing that, config.toml from dir. It
// returns a nil Config when neither exists.
func loadDir(dir string) (*Config, string, error) {
	for _, name := range []string{"config.yaml", "config.toml"} {
		path := filepath.Join(dir, name)
		cfg, err := loadFile(path)
		if err == nil {
			return cfg, path, nil
		}
		if !os.IsNotExist(err) {
			return nil, "", err
		}
	}
	return nil, "", nil
}

// loadFile loads config from a file path, choosing the decoder by extension.
func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // user's config file
	if err != nil {
		return nil, err
	}
	if filepath.Ext(path) == ".toml" {
		return parseTOMLWithTracking(data)
	}
	return parseConfigWithTracking(data)
}

// parseConfigWithTracking parses YAML config and tracks which fields were set.
func parseConfigWithTracking(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	cfg.trackSet(raw)
	return &cfg, nil
}

// parseTOMLWithTracking parses TOML config and tracks which fields were set.
func parseTOMLWithTracking(data []byte) (*Config, error) {
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse toml config: %w", err)
	}
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	cfg.trackSet(raw)
	return &cfg, nil
}

func (c *Config) trackSet(raw map[string]any) {
	_, c.MaxIterationsSet = raw["max_iterations"]
	_, c.MaxNoProgressSet = raw["max_no_progress"]
	_, c.TimeoutSet = raw["timeout"]
	_, c.LockSet = raw["lock"]
	_, c.SaveDelayMsSet = raw["save_delay_ms"]

	if executor, ok := raw["executor"].(map[string]any); ok {
		_, c.Executor.SandboxSet = executor["sandbox"]
	}

	if review, ok := raw["review"].(map[string]any); ok {
		_, c.Review.EnabledSet = review["enabled"]
		_, c.Review.TimeoutSet = review["timeout"]
		if search, ok := review["search"].(map[string]any); ok {
			_, c.Review.Search.EnabledSet = search["enabled"]
		}
	}
}

// applyEnv applies environment variables to the config.
// Env vars sit between global and local config in precedence.
func (c *Config) applyEnv() {
	if v := os.Getenv("PRDLOOP_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxIterations = n
			c.MaxIterationsSet = true
			c.sources = append(c.sources, "env:PRDLOOP_MAX_ITERATIONS")
		}
	}

	if v := os.Getenv("PRDLOOP_MAX_NO_PROGRESS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxNoProgress = n
			c.MaxNoProgressSet = true
			c.sources = append(c.sources, "env:PRDLOOP_MAX_NO_PROGRESS")
		}
	}

	if v := os.Getenv("PRDLOOP_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Timeout = n
			c.TimeoutSet = true
			c.sources = append(c.sources, "env:PRDLOOP_TIMEOUT")
		}
	}

	if v := os.Getenv("PRDLOOP_PRD"); v != "" {
		c.PRDPath = v
		c.sources = append(c.sources, "env:PRDLOOP_PRD")
	}

	if v := os.Getenv("PRDLOOP_LOCK"); v != "" {
		c.Lock = parseBool(v)
		c.LockSet = true
		c.sources = append(c.sources, "env:PRDLOOP_LOCK")
	}

	if v := os.Getenv("PRDLOOP_MODEL"); v != "" {
		c.Executor.Model = v
		c.sources = append(c.sources, "env:PRDLOOP_MODEL")
	}

	if v := os.Getenv("PRDLOOP_CLAUDE_FLAGS"); v != "" {
		c.Executor.Flags = v
		c.sources = append(c.sources, "env:PRDLOOP_CLAUDE_FLAGS")
	}

	if v := os.Getenv("CLAUDE_CONFIG_DIR"); v != "" {
		c.Executor.ConfigDir = v
		c.sources = append(c.sources, "env:CLAUDE_CONFIG_DIR")
	}

	if v := os.Getenv("PRDLOOP_REVIEW_ENABLED"); v != "" {
		c.Review.Enabled = parseBool(v)
		c.Review.EnabledSet = true
		c.sources = append(c.sources, "env:PRDLOOP_REVIEW_ENABLED")
	}

	if v := os.Getenv("PRDLOOP_REVIEW_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Review.Timeout = n
			c.Review.TimeoutSet = true
			c.sources = append(c.sources, "env:PRDLOOP_REVIEW_TIMEOUT")
		}
	}

	if v := os.Getenv("PRDLOOP_SEARCH_ENDPOINT"); v != "" {
		c.Review.Search.Endpoint = v
		c.Review.Search.Enabled = true
		c.Review.Search.EnabledSet = true
		c.sources = append(c.sources, "env:PRDLOOP_SEARCH_ENDPOINT")
	}

	if v := os.Getenv("PRDLOOP_ANALYZER"); v != "" {
		c.Review.Analyzer.Kind = v
		c.sources = append(c.sources, "env:PRDLOOP_ANALYZER")
	}
}

func parseBool(v string) bool {
	return v == "true" || v == "1"
}

// mergeFrom merges non-empty/set values from src into c.
func (c *Config) mergeFrom(src *Config) {
	if src.MaxIterationsSet {
		c.MaxIterations = src.MaxIterations
		c.MaxIterationsSet = true
	}
	if src.MaxNoProgressSet {
		c.MaxNoProgress = src.MaxNoProgress
		c.MaxNoProgressSet = true
	}
	if src.TimeoutSet {
		c.Timeout = src.Timeout
		c.TimeoutSet = true
	}
	if src.PRDPath != "" {
		c.PRDPath = src.PRDPath
	}
	if src.ProgressPath != "" {
		c.ProgressPath = src.ProgressPath
	}
	if src.LockSet {
		c.Lock = src.Lock
		c.LockSet = true
	}
	if src.SaveDelayMsSet {
		c.SaveDelayMs = src.SaveDelayMs
		c.SaveDelayMsSet = true
	}

	mergeString(&c.Executor.Command, src.Executor.Command)
	mergeString(&c.Executor.Model, src.Executor.Model)
	mergeString(&c.Executor.PermissionMode, src.Executor.PermissionMode)
	mergeString(&c.Executor.Flags, src.Executor.Flags)
	mergeString(&c.Executor.ConfigDir, src.Executor.ConfigDir)
	if src.Executor.SandboxSet {
		c.Executor.Sandbox = src.Executor.Sandbox
		c.Executor.SandboxSet = true
	}

	if src.Review.EnabledSet {
		c.Review.Enabled = src.Review.Enabled
		c.Review.EnabledSet = true
	}
	if src.Review.TimeoutSet {
		c.Review.Timeout = src.Review.Timeout
		c.Review.TimeoutSet = true
	}
	mergeString(&c.Review.Model, src.Review.Model)

	if src.Review.Search.EnabledSet {
		c.Review.Search.Enabled = src.Review.Search.Enabled
		c.Review.Search.EnabledSet = true
	}
	mergeString(&c.Review.Search.Endpoint, src.Review.Search.Endpoint)
	mergeString(&c.Review.Search.APIKeyEnv, src.Review.Search.APIKeyEnv)
	if src.Review.Search.Timeout > 0 {
		c.Review.Search.Timeout = src.Review.Search.Timeout
	}
	if src.Review.Search.MaxResults > 0 {
		c.Review.Search.MaxResults = src.Review.Search.MaxResults
	}

	mergeString(&c.Review.Analyzer.Kind, src.Review.Analyzer.Kind)
	mergeString(&c.Review.Analyzer.Command, src.Review.Analyzer.Command)
	mergeString(&c.Review.Analyzer.Flags, src.Review.Analyzer.Flags)
	mergeString(&c.Review.Analyzer.Gollm.Provider, src.Review.Analyzer.Gollm.Provider)
	mergeString(&c.Review.Analyzer.Gollm.Model, src.Review.Analyzer.Gollm.Model)
	mergeString(&c.Review.Analyzer.Gollm.APIKeyEnv, src.Review.Analyzer.Gollm.APIKeyEnv)
	if src.Review.Analyzer.Gollm.MaxTokens > 0 {
		c.Review.Analyzer.Gollm.MaxTokens = src.Review.Analyzer.Gollm.MaxTokens
	}
}

func mergeString(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

// CLIFlags holds command-line overrides. Zero values and nil pointers are
// treated as "not given".
type CLIFlags struct {
	MaxIterations int
	Timeout       int
	PRDPath       string
	Model         string
	Review        *bool
	Lock          *bool
}

// ApplyCLIFlags applies CLI flag overrides to the config.
// CLI flags have the highest precedence.
func (c *Config) ApplyCLIFlags(f CLIFlags) {
	if f.MaxIterations > 0 {
		c.MaxIterations = f.MaxIterations
		c.MaxIterationsSet = true
		c.sources = append(c.sources, "cli:max-iterations")
	}
	if f.Timeout > 0 {
		c.Timeout = f.Timeout
		c.TimeoutSet = true
		c.sources = append(c.sources, "cli:timeout")
	}
	if f.PRDPath != "" {
		c.PRDPath = f.PRDPath
		c.sources = append(c.sources, "cli:prd")
	}
	if f.Model != "" {
		c.Executor.Model = f.Model
		c.sources = append(c.sources, "cli:model")
	}
	if f.Review != nil {
		c.Review.Enabled = *f.Review
		c.Review.EnabledSet = true
		c.sources = append(c.sources, "cli:review")
	}
	if f.Lock != nil {
		c.Lock = *f.Lock
		c.LockSet = true
		c.sources = append(c.sources, "cli:lock")
	}
}

var permissionModes = map[string]bool{
	"":                  true,
	"default":           true,
	"acceptEdits":       true,
	"bypassPermissions": true,
	"plan":              true,
}

// Validate reports the first invalid setting as a configuration error.
func (c *Config) Validate() error {
	const op = "validate config"
	switch {
	case c.MaxIterations < 0:
		return apperr.New(apperr.KindConfiguration, op, "max_iterations must not be negative (got %d)", c.MaxIterations)
	case c.Timeout < 0:
		return apperr.New(apperr.KindConfiguration, op, "timeout must not be negative (got %d)", c.Timeout)
	case c.PRDPath == "":
		return apperr.New(apperr.KindConfiguration, op, "prd_path is required")
	case c.SaveDelayMs < 0:
		return apperr.New(apperr.KindConfiguration, op, "save_delay_ms must not be negative")
	case c.Executor.Command == "":
		return apperr.New(apperr.KindConfiguration, op, "executor.command is required")
	case !permissionModes[c.Executor.PermissionMode]:
		return apperr.New(apperr.KindConfiguration, op, "unknown executor.permission_mode %q", c.Executor.PermissionMode)
	}

	if !c.Review.Enabled {
		return nil
	}
	switch c.Review.Analyzer.Kind {
	case "", AnalyzerNone, AnalyzerGollm, AnalyzerCLI:
	default:
		return apperr.New(apperr.KindConfiguration, op, "unknown review.analyzer.kind %q", c.Review.Analyzer.Kind)
	}
	if c.Review.Timeout <= 0 {
		return apperr.New(apperr.KindConfiguration, op, "review.timeout must be positive")
	}
	if c.Review.Search.Enabled && c.Review.Search.Endpoint == "" {
		return apperr.New(apperr.KindConfiguration, op, "review.search.endpoint is required when search is enabled")
	}
	return nil
}
