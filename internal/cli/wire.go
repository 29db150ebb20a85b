package cli

import (
	"fmt"
	"os"

	"github.com/alexander-akhmetov/prdloop/internal/analysis"
	"github.com/alexander-akhmetov/prdloop/internal/config"
	"github.com/alexander-akhmetov/prdloop/internal/consensus"
	"github.com/alexander-akhmetov/prdloop/internal/debug"
	"github.com/alexander-akhmetov/prdloop/internal/event"
	"github.com/alexander-akhmetov/prdloop/internal/git"
	"github.com/alexander-akhmetov/prdloop/internal/llm"
	"github.com/alexander-akhmetov/prdloop/internal/lock"
	"github.com/alexander-akhmetov/prdloop/internal/loop"
	"github.com/alexander-akhmetov/prdloop/internal/prd"
	"github.com/alexander-akhmetov/prdloop/internal/prompt"
	"github.com/alexander-akhmetov/prdloop/internal/review"
	"github.com/alexander-akhmetov/prdloop/internal/search"
	"github.com/alexander-akhmetov/prdloop/internal/store"
)

// newExecutor builds the execution collaborator. Tests replace it.
var newExecutor = func(cfg *config.Config, events event.Handler) loop.Executor {
	inv := llm.NewClaudeInvoker(cfg.Executor.Command, llm.EnvConfig{ConfigDir: cfg.Executor.ConfigDir})
	return llm.NewClaudeExecutor(inv, events, cfg.Executor.Flags)
}

// newAnalyzer builds the analysis collaborator selected by
// review.analyzer.kind. Kind none returns nil.
var newAnalyzer = func(cfg *config.Config, wd string, prompts *prompt.Builder) (review.Analyzer, error) {
	a := cfg.Review.Analyzer
	switch a.Kind {
	case config.AnalyzerGollm:
		return analysis.NewGollmAnalyzer(analysis.GollmConfig{
			Provider:  a.Gollm.Provider,
			Model:     a.Gollm.Model,
			APIKey:    os.Getenv(a.Gollm.APIKeyEnv),
			MaxTokens: a.Gollm.MaxTokens,
		}, prompts)
	case config.AnalyzerCLI:
		inv := llm.NewClaudeInvoker(a.Command, llm.EnvConfig{ConfigDir: cfg.Executor.ConfigDir})
		return analysis.NewCLIAnalyzer(inv, prompts, a.Flags, wd)
	default:
		return nil, nil
	}
}

// components is everything one command invocation works with.
type components struct {
	cfg       *config.Config
	workDir   string
	prdPath   string
	manager   *store.Manager
	bus       *event.Bus
	consensus *consensus.Coordinator
	prompts   *prompt.Builder
	// reviewer is nil when review is disabled.
	reviewer *review.Reviewer
}

func newComponents(cfg *config.Config, wd string) (*components, error) {
	prompts, err := prompt.NewBuilder(cfg.Prompts)
	if err != nil {
		return nil, fmt.Errorf("create prompt builder: %w", err)
	}

	bus := event.NewBus(0)
	opts := []store.Option{
		store.WithSaveDelay(cfg.SaveDelay()),
		store.WithOnUpdate(func(doc *prd.Document) {
			bus.Publish(event.ProgressUpdate(doc.Progress()))
		}),
	}
	if cfg.Lock {
		opts = append(opts, store.WithLocker(lock.NewFileLocker()))
	}

	c := &components{
		cfg:       cfg,
		workDir:   wd,
		prdPath:   resolvePath(wd, cfg.PRDPath),
		manager:   store.New(opts...),
		bus:       bus,
		consensus: consensus.New(),
		prompts:   prompts,
	}

	if cfg.Review.Enabled {
		r, err := c.newReviewer()
		if err != nil {
			return nil, err
		}
		c.reviewer = r
	}
	return c, nil
}

func (c *components) newReviewer() (*review.Reviewer, error) {
	cfg := c.cfg
	opts := []review.Option{
		review.WithFindingsWriter(c.manager),
		review.WithConsensus(c.consensus),
		review.WithEvents(c.bus.Handler()),
		review.WithTimeout(cfg.ReviewTimeout()),
		review.WithModel(cfg.Review.Model),
	}

	if s := cfg.Review.Search; s.Enabled {
		client := search.New(search.Config{
			Endpoint:   s.Endpoint,
			APIKey:     os.Getenv(s.APIKeyEnv),
			MaxResults: s.MaxResults,
		}, nil)
		opts = append(opts, review.WithSearcher(client), review.WithSearchTimeout(cfg.SearchTimeout()))
	}

	analyzer, err := newAnalyzer(cfg, c.workDir, c.prompts)
	if err != nil {
		return nil, fmt.Errorf("create analyzer: %w", err)
	}
	if analyzer != nil {
		opts = append(opts, review.WithAnalyzer(analyzer))
	}
	return review.New(opts...), nil
}

// newLoop assembles the execution loop.
func (c *components) newLoop() *loop.Loop {
	cfg := c.cfg
	opts := []loop.Option{
		loop.WithManager(c.manager),
		loop.WithEvents(c.bus.Handler()),
		loop.WithConsensus(c.consensus),
		loop.WithPrompts(c.prompts),
	}
	if c.reviewer != nil {
		opts = append(opts, loop.WithLookahead(c.reviewer))
	}
	if git.IsInsideRepo(c.workDir) {
		if t, err := git.NewTracker(c.workDir); err == nil {
			opts = append(opts, loop.WithChangeTracker(t))
		} else {
			debug.Logf("cli: change tracking disabled: %v", err)
		}
	}

	return loop.New(loop.Config{
		PRDPath:        c.prdPath,
		ProgressPath:   resolvePath(c.workDir, cfg.ProgressPath),
		WorkingDir:     c.workDir,
		MaxIterations:  cfg.MaxIterations,
		MaxNoProgress:  cfg.MaxNoProgress,
		Timeout:        cfg.IterationTimeout(),
		Model:          cfg.Executor.Model,
		PermissionMode: cfg.Executor.PermissionMode,
		Sandbox:        cfg.Executor.Sandbox,
	}, newExecutor(cfg, c.bus.Handler()), opts...)
}
