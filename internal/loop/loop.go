// Package loop runs the execution loop: it repeatedly hands the next PRD
// task to the execution collaborator until the document is complete, the
// iteration budget runs out, or the user aborts.
package loop

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alexander-akhmetov/prdloop/internal/apperr"
	"github.com/alexander-akhmetov/prdloop/internal/consensus"
	"github.com/alexander-akhmetov/prdloop/internal/debug"
	"github.com/alexander-akhmetov/prdloop/internal/engine"
	"github.com/alexander-akhmetov/prdloop/internal/event"
	"github.com/alexander-akhmetov/prdloop/internal/prd"
	"github.com/alexander-akhmetov/prdloop/internal/progress"
	"github.com/alexander-akhmetov/prdloop/internal/prompt"
	"github.com/alexander-akhmetov/prdloop/internal/protocol"
	"github.com/alexander-akhmetov/prdloop/internal/store"
)

// lookaheadDrainTimeout bounds how long finish waits for a lookahead pass.
var lookaheadDrainTimeout = 10 * time.Second

// Config holds the run parameters.
type Config struct {
	PRDPath string
	// ProgressPath defaults to progress.txt next to the PRD.
	ProgressPath string
	WorkingDir   string
	// MaxIterations of zero means unlimited.
	MaxIterations int
	// MaxNoProgress of zero disables the no-progress guard.
	MaxNoProgress  int
	Timeout        time.Duration
	Model          string
	PermissionMode string
	Sandbox        bool
}

// Option configures a Loop.
type Option func(*Loop)

// WithManager sets the persistence manager. The loop owns a fresh one by
// default.
func WithManager(m *store.Manager) Option { return func(l *Loop) { l.manager = m } }

// WithEvents sets the event handler.
func WithEvents(h event.Handler) Option { return func(l *Loop) { l.events = h } }

// WithConsensus gates execution of tasks with unresolved findings.
func WithConsensus(c *consensus.Coordinator) Option { return func(l *Loop) { l.consensus = c } }

// WithPrompts sets the prompt builder.
func WithPrompts(b *prompt.Builder) Option { return func(l *Loop) { l.prompts = b } }

// WithChangeTracker records working-tree changes per iteration.
func WithChangeTracker(t ChangeTracker) Option { return func(l *Loop) { l.tracker = t } }

// WithLookahead starts a lookahead pass from the current task at the start
// of every iteration. When the run ends the reviewer is stopped and its pass
// joined before the final save.
func WithLookahead(r Lookahead) Option { return func(l *Loop) { l.reviewer = r } }

// Loop drives iterations. A Loop runs once; create a new one per run.
type Loop struct {
	cfg       Config
	executor  Executor
	engine    engine.Engine
	manager   *store.Manager
	events    event.Handler
	consensus *consensus.Coordinator
	prompts   *prompt.Builder
	tracker   ChangeTracker
	reviewer  Lookahead
	logger    *progress.Logger
	// noProgress is only touched by the Run goroutine.
	noProgress int
	// lookahead tracks Start goroutines so finish can join them.
	lookahead sync.WaitGroup

	mu     sync.Mutex
	cond   *sync.Cond
	state  protocol.EngineState
	abort  bool
	cancel context.CancelFunc
	runID  string
}

// New creates an idle Loop.
func New(cfg Config, executor Executor, opts ...Option) *Loop {
	l := &Loop{
		cfg:      cfg,
		executor: executor,
		engine:   engine.Engine{MaxIterations: cfg.MaxIterations, MaxNoProgress: cfg.MaxNoProgress},
		state:    protocol.EngineIdle,
	}
	l.cond = sync.NewCond(&l.mu)
	for _, opt := range opts {
		opt(l)
	}
	if l.manager == nil {
		l.manager = store.New()
	}
	return l
}

// State returns the current engine state.
func (l *Loop) State() protocol.EngineState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// RunID returns the id of the current or last run.
func (l *Loop) RunID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.runID
}

// Manager returns the persistence manager the loop works through.
func (l *Loop) Manager() *store.Manager {
	return l.manager
}

// Pause stops the loop at its next check point. No-op unless running.
func (l *Loop) Pause() {
	l.mu.Lock()
	if l.state != protocol.EngineRunning {
		l.mu.Unlock()
		return
	}
	l.state = protocol.EnginePaused
	l.mu.Unlock()
	l.publish(event.Paused())
}

// Resume continues a paused loop. No-op unless paused.
func (l *Loop) Resume() {
	l.mu.Lock()
	if l.state != protocol.EnginePaused {
		l.mu.Unlock()
		return
	}
	l.state = protocol.EngineRunning
	l.cond.Broadcast()
	l.mu.Unlock()
	l.publish(event.Resumed())
}

// Abort stops the loop at its next check point and kills the in-flight
// execution call. No-op unless running or paused.
func (l *Loop) Abort() {
	l.mu.Lock()
	if l.state != protocol.EngineRunning && l.state != protocol.EnginePaused {
		l.mu.Unlock()
		return
	}
	l.abort = true
	cancel := l.cancel
	l.cond.Broadcast()
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Run executes the loop until a stop condition. It always returns a
// Result; the error is non-nil only for load or initialization failures,
// which stop the run with reason error.
func (l *Loop) Run(ctx context.Context) (*Result, error) {
	l.mu.Lock()
	if l.state != protocol.EngineIdle {
		l.mu.Unlock()
		return nil, apperr.New(apperr.KindConfiguration, "run", "engine not idle (state %s)", l.state)
	}
	ctx, cancel := context.WithCancel(ctx)
	l.state = protocol.EngineRunning
	l.cancel = cancel
	l.runID = uuid.NewString()
	l.mu.Unlock()

	stopWake := context.AfterFunc(ctx, func() {
		l.mu.Lock()
		l.cond.Broadcast()
		l.mu.Unlock()
	})

	start := time.Now()
	res := &Result{RunID: l.runID}
	defer func() {
		stopWake()
		cancel()
		l.finish(res, start)
	}()

	if err := l.init(); err != nil {
		res.Reason = protocol.StopError
		res.Message = err.Error()
		return res, err
	}

	if l.manager.IsComplete() {
		res.Reason = protocol.StopPRDComplete
		res.Message = "PRD already complete"
		return res, nil
	}

	for {
		next, _ := l.manager.NextTask()
		pending := false
		if l.consensus != nil && next.ID != "" {
			_, pending = l.consensus.Pending(next.ID)
		}

		act := l.engine.DecideNext(engine.Input{
			AbortRequested:   l.aborted(ctx),
			Paused:           l.State() == protocol.EnginePaused,
			DocumentComplete: l.manager.IsComplete(),
			Iterations:       res.IterationsRun,
			NoProgress:       l.noProgress,
			NextTaskID:       next.ID,
			ConsensusPending: pending,
		})

		switch act.Kind {
		case engine.ActionExit:
			res.Reason = act.Reason
			res.Message = act.Message
			return res, nil
		case engine.ActionWaitResume:
			l.waitResume(ctx)
		case engine.ActionWaitConsensus:
			l.logger.Printf("Waiting for consensus on %s", act.TaskID)
			if err := l.consensus.WaitResolved(ctx, act.TaskID); err != nil {
				debug.Logf("loop: consensus wait on %s ended: %v", act.TaskID, err)
			}
		case engine.ActionExecute:
			if stop, reason := l.iterate(ctx, res, act.TaskID); stop {
				res.Reason = reason
				res.Message = "completion marker detected"
				return res, nil
			}
		}
	}
}

func (l *Loop) init() error {
	if l.cfg.PRDPath == "" {
		return apperr.New(apperr.KindConfiguration, "run", "no PRD path configured")
	}
	if l.executor == nil {
		return apperr.New(apperr.KindConfiguration, "run", "no executor configured")
	}
	if l.prompts == nil {
		b, err := prompt.NewBuilder(nil)
		if err != nil {
			return apperr.Wrap(apperr.KindConfiguration, "load prompts", err)
		}
		l.prompts = b
	}

	if err := l.manager.Load(l.cfg.PRDPath); err != nil {
		return err
	}

	progressPath := l.cfg.ProgressPath
	if progressPath == "" {
		progressPath = progress.DefaultPath(l.cfg.PRDPath)
	}
	doc := l.manager.Document()
	logger, err := progress.Open(progress.Config{
		Path:    progressPath,
		PRDPath: l.cfg.PRDPath,
		Name:    doc.Name,
		RunID:   l.runID,
		WorkDir: l.cfg.WorkingDir,
	})
	if err != nil {
		return apperr.Wrap(apperr.KindIO, "open progress log", err)
	}
	l.mu.Lock()
	l.logger = logger
	l.mu.Unlock()
	l.logger.RunStarted(l.cfg.MaxIterations)
	return nil
}

func (l *Loop) finish(res *Result, start time.Time) {
	if l.reviewer != nil {
		l.reviewer.Stop()
		l.joinLookahead()
	}
	if err := l.manager.Flush(); err != nil {
		l.publish(event.Error(fmt.Sprintf("final save failed: %v", err)))
	}
	res.Progress = l.manager.Progress()
	res.Duration = time.Since(start)

	if res.Reason == protocol.StopPRDComplete {
		l.publish(event.DocumentComplete(res.Progress))
	}

	l.mu.Lock()
	l.state = protocol.EngineStopped
	l.cancel = nil
	l.cond.Broadcast()
	l.mu.Unlock()

	l.publish(event.Stopped(res.Reason, res.Message, res))
	if l.logger != nil {
		l.logger.Exit(res.Reason.String(), res.Message, res.IterationsRun, res.FilesChanged())
		if err := l.logger.Close(); err != nil {
			debug.Logf("loop: %v", err)
		}
	}
}

func (l *Loop) aborted(ctx context.Context) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.abort || ctx.Err() != nil
}

func (l *Loop) waitResume(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for l.state == protocol.EnginePaused && !l.abort && ctx.Err() == nil {
		l.cond.Wait()
	}
}

// publish sends e to the handler and records it in the progress log.
func (l *Loop) publish(e event.Event) {
	l.events.Publish(e)
	l.mu.Lock()
	logger := l.logger
	l.mu.Unlock()
	if logger != nil {
		logger.Record(e)
	}
}

// iterate runs one iteration on taskID and reports whether the collaborator
// signalled that the whole document is done.
func (l *Loop) iterate(ctx context.Context, res *Result, taskID string) (bool, protocol.StopReason) {
	task, _ := l.manager.Task(taskID)
	res.IterationsRun++
	n := res.IterationsRun
	ir := IterationResult{Iteration: n, TaskID: taskID}

	if mr := l.manager.StartTask(taskID); !mr.Success {
		debug.Logf("loop: start %s: %s", taskID, mr.Message)
	}
	l.logger.Iteration(n, l.cfg.MaxIterations, taskID, task.Title)
	l.publish(event.IterationStart(n, taskID))
	l.publish(event.TaskStart(taskID, task.Title))
	l.startLookahead(ctx, taskID)

	start := time.Now()
	outcome := l.execute(ctx, task, n)
	ir.Duration = time.Since(start)
	ir.Success = outcome.Success
	ir.CompletionDetected = outcome.CompletionDetected
	if outcome.Err != nil {
		ir.Error = outcome.Err.Error()
		l.publish(event.Error(fmt.Sprintf("iteration %d on %s failed: %v", n, taskID, outcome.Err)))
	}

	after, found := l.manager.Task(taskID)
	decision := l.engine.ProcessOutcome(engine.Outcome{
		Success:            outcome.Success,
		CompletionDetected: outcome.CompletionDetected,
		TaskDone:           found && after.Done,
		TaskWasDone:        task.Done,
	})
	ir.TaskCompleted = decision.TaskCompleted
	if decision.TaskCompleted {
		l.publish(event.TaskComplete(taskID, after.Title))
	}

	if l.tracker != nil {
		files, err := l.tracker.Changed()
		if err != nil {
			debug.Logf("loop: changed files: %v", err)
		}
		ir.FilesChanged = files
		l.logger.FilesChanged(files)
	}

	ir.Progress = l.manager.Progress()
	res.Iterations = append(res.Iterations, ir)
	l.noProgress = engine.NoProgressStreak(l.noProgress, ir.TaskCompleted, ir.FilesChanged)

	l.logger.Printf("%s", engine.FormatIterationSummary(n, taskID, ir.Success, ir.FilesChanged))
	l.publish(event.IterationComplete(n, taskID, ir))
	l.publish(event.ProgressUpdate(ir.Progress))

	return decision.Stop, decision.Reason
}

func (l *Loop) startLookahead(ctx context.Context, taskID string) {
	if l.reviewer == nil {
		return
	}
	tasks := l.manager.AllTasks()
	idx := slices.IndexFunc(tasks, func(it prd.Item) bool { return it.ID == taskID })
	if idx < 0 {
		return
	}
	l.lookahead.Add(1)
	go func() {
		defer l.lookahead.Done()
		l.reviewer.Start(ctx, tasks, idx)
	}()
}

// joinLookahead waits for running passes. An in-flight review step is not
// cancellable, so the wait gives up after lookaheadDrainTimeout.
func (l *Loop) joinLookahead() {
	done := make(chan struct{})
	go func() {
		l.lookahead.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(lookaheadDrainTimeout):
		debug.Logf("loop: lookahead still running after %s", lookaheadDrainTimeout)
	}
}

// execute flushes pending writes, invokes the collaborator and reloads the
// document it may have edited. Failures are reported in the outcome.
func (l *Loop) execute(ctx context.Context, task prd.Item, n int) ExecOutcome {
	path := l.manager.Path()
	if err := l.manager.Flush(); err != nil {
		return ExecOutcome{Err: err}
	}
	before, _ := os.ReadFile(path)

	text, err := l.prompts.Execute(prompt.ExecuteData{
		PRDPath:       path,
		ProgressPath:  l.logger.Path(),
		Task:          task,
		Progress:      l.manager.Progress(),
		Iteration:     n,
		MaxIterations: l.cfg.MaxIterations,
	})
	if err != nil {
		return ExecOutcome{Err: apperr.Wrap(apperr.KindConfiguration, "build prompt", err)}
	}

	outcome := l.executor.Execute(ctx, ExecRequest{
		Prompt:         text,
		Sandbox:        l.cfg.Sandbox,
		PermissionMode: l.cfg.PermissionMode,
		Model:          l.cfg.Model,
		Timeout:        l.cfg.Timeout,
		WorkingDir:     l.cfg.WorkingDir,
	})

	if err := l.manager.Reload(); err != nil {
		outcome.Success = false
		outcome.Err = errors.Join(outcome.Err, err)
		return outcome
	}
	after, _ := os.ReadFile(path)
	l.logger.Diff(filepath.Base(path), before, after)
	return outcome
}
