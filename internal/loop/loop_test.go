package loop

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexander-akhmetov/prdloop/internal/apperr"
	"github.com/alexander-akhmetov/prdloop/internal/consensus"
	"github.com/alexander-akhmetov/prdloop/internal/event"
	"github.com/alexander-akhmetov/prdloop/internal/prd"
	"github.com/alexander-akhmetov/prdloop/internal/protocol"
	"github.com/alexander-akhmetov/prdloop/internal/review"
	"github.com/alexander-akhmetov/prdloop/internal/store"
)

const twoTasks = `{
  "name": "demo",
  "version": "1.0.0",
  "status": "in_progress",
  "tasks": [
    {"id": "impl-001", "phase": 1, "title": "Add parser", "status": "pending"},
    {"id": "impl-002", "phase": 2, "title": "Add printer", "status": "pending"}
  ],
  "metadata": {"createdAt": "2026-01-01T00:00:00Z", "updatedAt": "2026-01-01T00:00:00Z"}
}`

const doneTasks = `{
  "name": "demo",
  "version": "1.0.0",
  "tasks": [
    {"id": "impl-001", "phase": 1, "title": "Add parser", "status": "completed"}
  ],
  "metadata": {"createdAt": "2026-01-01T00:00:00Z", "updatedAt": "2026-01-01T00:00:00Z"}
}`

const blockedStories = `{
  "name": "stories",
  "version": "1.0.0",
  "userStories": [
    {"id": "US-001", "title": "Login", "priority": 1, "passes": false, "dependsOn": ["US-404"]}
  ],
  "metadata": {"createdAt": "2026-01-01T00:00:00Z", "updatedAt": "2026-01-01T00:00:00Z"}
}`

func writePRD(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prd.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// completeNext marks the next selectable phase task completed on disk, the
// way the execution collaborator does.
func completeNext(t *testing.T, path string) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	doc, err := prd.Decode(data)
	require.NoError(t, err)
	tasks, ok := doc.Tasks.(prd.PhaseList)
	require.True(t, ok)
	id, ok := tasks.Next()
	require.True(t, ok)
	for i := range tasks {
		if tasks[i].ID == id {
			tasks[i].Status = prd.StatusCompleted
		}
	}
	out, err := prd.Encode(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, out, 0o644))
}

func completingExecutor(t *testing.T, path string, calls *atomic.Int32) ExecutorFunc {
	return func(ctx context.Context, req ExecRequest) ExecOutcome {
		if calls != nil {
			calls.Add(1)
		}
		completeNext(t, path)
		return ExecOutcome{Success: true}
	}
}

type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recorder) handle(e event.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) kinds() []event.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event.Kind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

func (r *recorder) count(k event.Kind) int {
	n := 0
	for _, got := range r.kinds() {
		if got == k {
			n++
		}
	}
	return n
}

func TestRunCompletesAllTasks(t *testing.T) {
	path := writePRD(t, twoTasks)
	rec := &recorder{}
	var calls atomic.Int32

	l := New(Config{PRDPath: path}, completingExecutor(t, path, &calls), WithEvents(rec.handle))
	res, err := l.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, protocol.StopPRDComplete, res.Reason)
	assert.Equal(t, 2, res.IterationsRun)
	assert.Equal(t, int32(2), calls.Load())
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, res.RunID, l.RunID())
	require.Len(t, res.Iterations, 2)
	assert.Equal(t, "impl-001", res.Iterations[0].TaskID)
	assert.Equal(t, "impl-002", res.Iterations[1].TaskID)
	for _, it := range res.Iterations {
		assert.True(t, it.Success)
		assert.True(t, it.TaskCompleted)
	}
	assert.Equal(t, prd.Progress{Total: 2, Completed: 2, Remaining: 0, Percentage: 100}, res.Progress)
	assert.Equal(t, protocol.EngineStopped, l.State())

	assert.Equal(t, 2, rec.count(event.KindTaskComplete))
	assert.Equal(t, 1, rec.count(event.KindDocumentComplete))
	kinds := rec.kinds()
	require.NotEmpty(t, kinds)
	assert.Equal(t, event.KindStopped, kinds[len(kinds)-1])

	log, err := os.ReadFile(filepath.Join(filepath.Dir(path), "progress.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(log), "Iteration 1")
	assert.Contains(t, string(log), "Completed impl-001: Add parser")
	assert.Contains(t, string(log), "prd.json changed:")
	assert.Contains(t, string(log), "Stop reason: prd_complete")
}

func TestRunAlreadyComplete(t *testing.T) {
	path := writePRD(t, doneTasks)
	var calls atomic.Int32

	l := New(Config{PRDPath: path}, completingExecutor(t, path, &calls))
	res, err := l.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, protocol.StopPRDComplete, res.Reason)
	assert.Equal(t, 0, res.IterationsRun)
	assert.Zero(t, calls.Load())
}

func TestRunStopReasons(t *testing.T) {
	tests := []struct {
		name       string
		doc        string
		maxIter    int
		noProgress int
		outcome    ExecOutcome
		wantReason protocol.StopReason
		wantIters  int
	}{
		{
			name:       "max iterations",
			doc:        twoTasks,
			maxIter:    2,
			outcome:    ExecOutcome{Success: true},
			wantReason: protocol.StopMaxIterations,
			wantIters:  2,
		},
		{
			name:       "no selectable tasks",
			doc:        blockedStories,
			outcome:    ExecOutcome{Success: true},
			wantReason: protocol.StopNoTasks,
			wantIters:  0,
		},
		{
			name:       "no progress",
			doc:        twoTasks,
			maxIter:    10,
			noProgress: 3,
			outcome:    ExecOutcome{Success: true},
			wantReason: protocol.StopNoProgress,
			wantIters:  3,
		},
		{
			name:       "completion marker",
			doc:        twoTasks,
			maxIter:    5,
			outcome:    ExecOutcome{Success: true, CompletionDetected: true},
			wantReason: protocol.StopPRDComplete,
			wantIters:  1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writePRD(t, tc.doc)
			exec := ExecutorFunc(func(ctx context.Context, req ExecRequest) ExecOutcome { return tc.outcome })

			l := New(Config{PRDPath: path, MaxIterations: tc.maxIter, MaxNoProgress: tc.noProgress}, exec)
			res, err := l.Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tc.wantReason, res.Reason)
			assert.Equal(t, tc.wantIters, res.IterationsRun)
		})
	}
}

func TestRunCompletionMarkerMessage(t *testing.T) {
	path := writePRD(t, twoTasks)
	exec := ExecutorFunc(func(ctx context.Context, req ExecRequest) ExecOutcome {
		return ExecOutcome{Success: true, CompletionDetected: true}
	})

	res, err := New(Config{PRDPath: path}, exec).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "completion marker detected", res.Message)
	require.Len(t, res.Iterations, 1)
	assert.True(t, res.Iterations[0].CompletionDetected)
	assert.False(t, res.Iterations[0].TaskCompleted)
}

func TestRunFailedIterationContinues(t *testing.T) {
	path := writePRD(t, twoTasks)
	rec := &recorder{}
	var calls atomic.Int32
	exec := ExecutorFunc(func(ctx context.Context, req ExecRequest) ExecOutcome {
		if calls.Add(1) == 1 {
			return ExecOutcome{Err: errors.New("exit status 1")}
		}
		completeNext(t, path)
		return ExecOutcome{Success: true}
	})

	res, err := New(Config{PRDPath: path}, exec, WithEvents(rec.handle)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, protocol.StopPRDComplete, res.Reason)
	assert.Equal(t, 3, res.IterationsRun)
	failed := res.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, 1, failed[0].Iteration)
	assert.Equal(t, "impl-001", failed[0].TaskID)
	assert.Contains(t, failed[0].Error, "exit status 1")
	assert.Equal(t, 1, rec.count(event.KindError))
}

func TestRunReloadFailureFailsIteration(t *testing.T) {
	path := writePRD(t, twoTasks)
	var calls atomic.Int32
	exec := ExecutorFunc(func(ctx context.Context, req ExecRequest) ExecOutcome {
		if calls.Add(1) == 1 {
			require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))
		}
		return ExecOutcome{Success: true}
	})

	res, err := New(Config{PRDPath: path, MaxIterations: 1}, exec).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Iterations, 1)
	assert.False(t, res.Iterations[0].Success)
	assert.NotEmpty(t, res.Iterations[0].Error)
}

func TestRunInitErrors(t *testing.T) {
	t.Run("missing document", func(t *testing.T) {
		l := New(Config{PRDPath: filepath.Join(t.TempDir(), "missing.json")}, ExecutorFunc(nil))
		res, err := l.Run(context.Background())
		require.Error(t, err)
		assert.Equal(t, apperr.KindIO, apperr.KindOf(err))
		assert.Equal(t, protocol.StopError, res.Reason)
		assert.Equal(t, protocol.EngineStopped, l.State())
	})

	t.Run("no path", func(t *testing.T) {
		res, err := New(Config{}, ExecutorFunc(nil)).Run(context.Background())
		require.Error(t, err)
		assert.Equal(t, apperr.KindConfiguration, apperr.KindOf(err))
		assert.Equal(t, protocol.StopError, res.Reason)
	})

	t.Run("no executor", func(t *testing.T) {
		res, err := New(Config{PRDPath: writePRD(t, twoTasks)}, nil).Run(context.Background())
		require.Error(t, err)
		assert.Equal(t, protocol.StopError, res.Reason)
	})
}

func TestRunTwice(t *testing.T) {
	path := writePRD(t, doneTasks)
	l := New(Config{PRDPath: path}, ExecutorFunc(nil))
	_, err := l.Run(context.Background())
	require.NoError(t, err)

	res, err := l.Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, apperr.KindConfiguration, apperr.KindOf(err))
}

func TestControlsOutsideRunAreNoOps(t *testing.T) {
	rec := &recorder{}
	l := New(Config{PRDPath: writePRD(t, twoTasks)}, ExecutorFunc(nil), WithEvents(rec.handle))

	l.Pause()
	assert.Equal(t, protocol.EngineIdle, l.State())
	l.Resume()
	assert.Equal(t, protocol.EngineIdle, l.State())
	l.Abort()
	assert.Equal(t, protocol.EngineIdle, l.State())
	assert.Empty(t, rec.kinds())
}

func TestAbortKillsExecution(t *testing.T) {
	path := writePRD(t, twoTasks)
	started := make(chan struct{})
	var cancelled atomic.Bool
	exec := ExecutorFunc(func(ctx context.Context, req ExecRequest) ExecOutcome {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
		return ExecOutcome{Err: ctx.Err()}
	})

	l := New(Config{PRDPath: path}, exec)
	done := make(chan *Result, 1)
	go func() {
		res, _ := l.Run(context.Background())
		done <- res
	}()

	<-started
	l.Abort()

	select {
	case res := <-done:
		assert.Equal(t, protocol.StopUserAbort, res.Reason)
		assert.Equal(t, 1, res.IterationsRun)
		assert.True(t, cancelled.Load())
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after abort")
	}
}

func TestContextCancelStopsRun(t *testing.T) {
	path := writePRD(t, twoTasks)
	ctx, cancel := context.WithCancel(context.Background())
	exec := ExecutorFunc(func(ctx context.Context, req ExecRequest) ExecOutcome {
		cancel()
		return ExecOutcome{Err: ctx.Err()}
	})

	res, err := New(Config{PRDPath: path}, exec).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, protocol.StopUserAbort, res.Reason)
}

func TestPauseAndResumeDuringRun(t *testing.T) {
	path := writePRD(t, twoTasks)
	rec := &recorder{}
	var l *Loop
	var paused atomic.Bool

	exec := ExecutorFunc(func(ctx context.Context, req ExecRequest) ExecOutcome {
		if paused.CompareAndSwap(false, true) {
			l.Pause()
		}
		completeNext(t, path)
		return ExecOutcome{Success: true}
	})
	handler := func(e event.Event) {
		rec.handle(e)
		if e.Kind == event.KindPaused {
			go l.Resume()
		}
	}

	l = New(Config{PRDPath: path}, exec, WithEvents(handler))
	res, err := l.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, protocol.StopPRDComplete, res.Reason)
	assert.Equal(t, 1, rec.count(event.KindPaused))
	assert.Eventually(t, func() bool { return rec.count(event.KindResumed) == 1 }, time.Second, 5*time.Millisecond)
}

func TestAbortWhilePaused(t *testing.T) {
	path := writePRD(t, twoTasks)
	var l *Loop
	exec := ExecutorFunc(func(ctx context.Context, req ExecRequest) ExecOutcome {
		l.Pause()
		return ExecOutcome{Success: true}
	})
	handler := func(e event.Event) {
		if e.Kind == event.KindPaused {
			go l.Abort()
		}
	}

	l = New(Config{PRDPath: path}, exec, WithEvents(handler))
	res, err := l.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, protocol.StopUserAbort, res.Reason)
	assert.Equal(t, 1, res.IterationsRun)
}

func TestConsensusGateBlocksExecution(t *testing.T) {
	path := writePRD(t, twoTasks)
	coord := consensus.New()
	coord.Raise("impl-001", []string{"uses a deprecated API"})
	var calls atomic.Int32

	l := New(Config{PRDPath: path}, completingExecutor(t, path, &calls), WithConsensus(coord))
	done := make(chan *Result, 1)
	go func() {
		res, _ := l.Run(context.Background())
		done <- res
	}()

	assert.Never(t, func() bool { return calls.Load() > 0 }, 100*time.Millisecond, 10*time.Millisecond)
	require.True(t, coord.Resolve("impl-001"))

	select {
	case res := <-done:
		assert.Equal(t, protocol.StopPRDComplete, res.Reason)
		assert.Equal(t, int32(2), calls.Load())
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish after consensus")
	}
}

func TestExecRequestAndPrompt(t *testing.T) {
	path := writePRD(t, twoTasks)
	var got ExecRequest
	exec := ExecutorFunc(func(ctx context.Context, req ExecRequest) ExecOutcome {
		got = req
		return ExecOutcome{Success: true}
	})

	cfg := Config{
		PRDPath:        path,
		WorkingDir:     "/work",
		MaxIterations:  1,
		Timeout:        time.Minute,
		Model:          "sonnet",
		PermissionMode: "acceptEdits",
		Sandbox:        true,
	}
	_, err := New(cfg, exec).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "/work", got.WorkingDir)
	assert.Equal(t, time.Minute, got.Timeout)
	assert.Equal(t, "sonnet", got.Model)
	assert.Equal(t, "acceptEdits", got.PermissionMode)
	assert.True(t, got.Sandbox)
	assert.Contains(t, got.Prompt, "impl-001: Add parser")
	assert.Contains(t, got.Prompt, path)
	assert.Contains(t, got.Prompt, protocol.CompletionMarker)
}

func TestFindingsReachPrompt(t *testing.T) {
	path := writePRD(t, twoTasks)
	var prompt string
	exec := ExecutorFunc(func(ctx context.Context, req ExecRequest) ExecOutcome {
		prompt = req.Prompt
		return ExecOutcome{Success: true}
	})

	l := New(Config{PRDPath: path, MaxIterations: 1}, exec)
	require.NoError(t, l.Manager().Load(path))
	require.True(t, l.Manager().SetFindings("impl-001", []string{"pin the parser version"}).Success)
	require.NoError(t, l.Manager().Flush())

	_, err := l.Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, prompt, "pin the parser version")
}

type fakeTracker struct {
	batches [][]string
	calls   int
}

func (f *fakeTracker) Changed() ([]string, error) {
	if f.calls >= len(f.batches) {
		return nil, nil
	}
	b := f.batches[f.calls]
	f.calls++
	return b, nil
}

func TestChangedFilesCountAsProgress(t *testing.T) {
	path := writePRD(t, twoTasks)
	tracker := &fakeTracker{batches: [][]string{{"a.go"}, nil, {"b.go"}, nil, nil}}
	exec := ExecutorFunc(func(context.Context, ExecRequest) ExecOutcome { return ExecOutcome{Success: true} })

	res, err := New(Config{PRDPath: path, MaxIterations: 10, MaxNoProgress: 2}, exec, WithChangeTracker(tracker)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, protocol.StopNoProgress, res.Reason)
	assert.Equal(t, 5, res.IterationsRun)
	assert.Contains(t, res.Message, "2 consecutive")
}

func TestChangeTracking(t *testing.T) {
	path := writePRD(t, twoTasks)
	tracker := &fakeTracker{batches: [][]string{{"parser.go", "prd.json"}, {"printer.go", "prd.json"}}}

	res, err := New(Config{PRDPath: path}, completingExecutor(t, path, nil), WithChangeTracker(tracker)).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Iterations, 2)
	assert.Equal(t, []string{"parser.go", "prd.json"}, res.Iterations[0].FilesChanged)
	assert.Equal(t, []string{"parser.go", "prd.json", "printer.go"}, res.FilesChanged())

	log, err := os.ReadFile(filepath.Join(filepath.Dir(path), "progress.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(log), "Files changed: parser.go, prd.json")
}

type fakeLookahead struct {
	mu      sync.Mutex
	indexes []int
	counts  []int
	stopped atomic.Int32
}

func (f *fakeLookahead) Start(ctx context.Context, tasks []prd.Item, executorIndex int) []review.StepReviewResult {
	f.mu.Lock()
	f.indexes = append(f.indexes, executorIndex)
	f.counts = append(f.counts, len(tasks))
	f.mu.Unlock()
	return nil
}

func (f *fakeLookahead) Stop() { f.stopped.Add(1) }

func (f *fakeLookahead) started() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.indexes...)
}

func TestLookaheadStartsEachIteration(t *testing.T) {
	path := writePRD(t, twoTasks)
	la := &fakeLookahead{}

	_, err := New(Config{PRDPath: path}, completingExecutor(t, path, nil), WithLookahead(la)).Run(context.Background())
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return len(la.started()) == 2 }, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []int{0, 1}, la.started())
	assert.Equal(t, int32(1), la.stopped.Load())
}

type slowAnalyzer struct {
	delay    time.Duration
	findings map[string][]string
}

func (a slowAnalyzer) Analyze(ctx context.Context, req review.AnalysisRequest) (*review.Analysis, error) {
	time.Sleep(a.delay)
	return &review.Analysis{Findings: a.findings[req.Task.ID]}, nil
}

func TestRunJoinsLookaheadBeforeFinalSave(t *testing.T) {
	path := writePRD(t, twoTasks)
	m := store.New()
	reviewer := review.New(
		review.WithAnalyzer(slowAnalyzer{delay: 150 * time.Millisecond, findings: map[string][]string{"impl-002": {"printer drops trailing newline"}}}),
		review.WithFindingsWriter(m),
	)

	_, err := New(Config{PRDPath: path}, completingExecutor(t, path, nil), WithManager(m), WithLookahead(reviewer)).Run(context.Background())
	require.NoError(t, err)

	assert.False(t, m.Dirty())
	assert.True(t, reviewer.Reviewed("impl-002"))

	onDisk := store.New()
	require.NoError(t, onDisk.Load(path))
	tasks := onDisk.AllTasks()
	require.Len(t, tasks, 2)
	assert.Equal(t, []string{"printer drops trailing newline"}, tasks[1].Findings)
}

func TestJoinLookaheadGivesUp(t *testing.T) {
	old := lookaheadDrainTimeout
	lookaheadDrainTimeout = 10 * time.Millisecond
	t.Cleanup(func() { lookaheadDrainTimeout = old })

	release := make(chan struct{})
	l := New(Config{}, nil)
	l.lookahead.Add(1)
	go func() {
		<-release
		l.lookahead.Done()
	}()

	start := time.Now()
	l.joinLookahead()
	assert.Less(t, time.Since(start), time.Second)
	close(release)
}
