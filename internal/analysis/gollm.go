package analysis

import (
	"context"
	"fmt"
	"os"

	"github.com/teilomillet/gollm"

	"github.com/alexander-akhmetov/prdloop/internal/apperr"
	"github.com/alexander-akhmetov/prdloop/internal/llm"
	"github.com/alexander-akhmetov/prdloop/internal/prompt"
	"github.com/alexander-akhmetov/prdloop/internal/review"
)

const systemPrompt = "You are a senior engineer reviewing implementation tasks for hidden risks. Answer only with the requested YAML block."

// GollmConfig configures the API-backed analyzer.
type GollmConfig struct {
	Provider  string
	Model     string
	APIKey    string
	MaxTokens int
}

// generator is the part of gollm.LLM the analyzer needs.
type generator interface {
	Generate(ctx context.Context, model, system, prompt string) (string, error)
}

type gollmGenerator struct {
	llm gollm.LLM
}

func (g gollmGenerator) Generate(ctx context.Context, model, system, text string) (string, error) {
	if model != "" {
		g.llm.SetOption("model", model)
	}
	p := gollm.NewPrompt(text, gollm.WithSystemPrompt(system, gollm.CacheTypeEphemeral))
	return g.llm.Generate(ctx, p)
}

// GollmAnalyzer reviews tasks through a provider API.
type GollmAnalyzer struct {
	gen     generator
	prompts *prompt.Builder
}

var _ review.Analyzer = (*GollmAnalyzer)(nil)

// NewGollmAnalyzer creates an analyzer for cfg.Provider. An empty APIKey
// falls back to the provider's usual environment variable.
func NewGollmAnalyzer(cfg GollmConfig, prompts *prompt.Builder) (*GollmAnalyzer, error) {
	if cfg.Provider == "" {
		cfg.Provider = "anthropic"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	if cfg.APIKey == "" {
		if env, ok := llm.ProviderAPIKeyEnvVars[cfg.Provider]; ok {
			cfg.APIKey = os.Getenv(env)
		}
	}
	if cfg.APIKey == "" {
		return nil, apperr.New(apperr.KindConfiguration, "gollm analyzer", "no API key for provider %s", cfg.Provider)
	}

	opts := []gollm.ConfigOption{
		gollm.SetProvider(cfg.Provider),
		gollm.SetMaxTokens(cfg.MaxTokens),
		gollm.SetTemperature(0.2),
		gollm.SetMaxRetries(1),
		gollm.SetLogLevel(gollm.LogLevelWarn),
		gollm.SetAPIKey(cfg.APIKey),
	}
	if cfg.Model != "" {
		opts = append(opts, gollm.SetModel(cfg.Model))
	}
	l, err := gollm.NewLLM(opts...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConfiguration, "gollm analyzer", fmt.Errorf("create LLM for provider %s: %w", cfg.Provider, err))
	}
	return newGollmAnalyzer(gollmGenerator{llm: l}, prompts)
}

func newGollmAnalyzer(gen generator, prompts *prompt.Builder) (*GollmAnalyzer, error) {
	if prompts == nil {
		b, err := prompt.NewBuilder(nil)
		if err != nil {
			return nil, err
		}
		prompts = b
	}
	return &GollmAnalyzer{gen: gen, prompts: prompts}, nil
}

// Analyze sends the analysis prompt and parses the findings block. The
// request timeout bounds the API call.
func (a *GollmAnalyzer) Analyze(ctx context.Context, req review.AnalysisRequest) (*review.Analysis, error) {
	text, err := a.prompts.Analyze(prompt.AnalyzeData{Task: req.Task, Results: req.Results})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConfiguration, "analyze", err)
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	out, err := a.gen.Generate(ctx, req.Model, systemPrompt, text)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, apperr.New(apperr.KindTimeout, "analyze", "%s timed out after %s", req.Task.ID, req.Timeout)
		}
		return nil, apperr.Wrap(apperr.KindExternalFailure, "analyze", err)
	}

	analysis, err := ParseFindings(out)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindExternalFailure, "analyze", fmt.Errorf("parse findings for %s: %w", req.Task.ID, err))
	}
	return analysis, nil
}
