package review

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alexander-akhmetov/prdloop/internal/apperr"
	"github.com/alexander-akhmetov/prdloop/internal/consensus"
	"github.com/alexander-akhmetov/prdloop/internal/debug"
	"github.com/alexander-akhmetov/prdloop/internal/event"
	"github.com/alexander-akhmetov/prdloop/internal/prd"
	"github.com/alexander-akhmetov/prdloop/internal/protocol"
)

const (
	// LookaheadWindow is how many tasks past the executor a pass covers.
	LookaheadWindow = 5
	// DefaultTimeout bounds a single ReviewStep.
	DefaultTimeout = 120 * time.Second
	// DefaultSearchTimeout bounds a single search query.
	DefaultSearchTimeout = 15 * time.Second
)

// Option configures a Reviewer.
type Option func(*Reviewer)

// WithSearcher enables search-backed review.
func WithSearcher(s Searcher) Option { return func(r *Reviewer) { r.searcher = s } }

// WithAnalyzer sets the analysis collaborator.
func WithAnalyzer(a Analyzer) Option { return func(r *Reviewer) { r.analyzer = a } }

// WithFindingsWriter persists non-empty findings onto reviewed tasks.
func WithFindingsWriter(w FindingsWriter) Option { return func(r *Reviewer) { r.writer = w } }

// WithConsensus raises findings on c and waits for their resolution before
// moving on to the next task.
func WithConsensus(c *consensus.Coordinator) Option { return func(r *Reviewer) { r.consensus = c } }

// WithEvents sets the event handler.
func WithEvents(h event.Handler) Option { return func(r *Reviewer) { r.events = h } }

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option { return func(r *Reviewer) { r.timeout = d } }

// WithSearchTimeout overrides DefaultSearchTimeout.
func WithSearchTimeout(d time.Duration) Option { return func(r *Reviewer) { r.searchTimeout = d } }

// WithModel sets the model forwarded to the analyzer.
func WithModel(model string) Option { return func(r *Reviewer) { r.model = model } }

// Reviewer walks a window of upcoming tasks and reviews each one once.
type Reviewer struct {
	searcher      Searcher
	analyzer      Analyzer
	writer        FindingsWriter
	consensus     *consensus.Coordinator
	events        event.Handler
	timeout       time.Duration
	searchTimeout time.Duration
	model         string

	mu          sync.Mutex
	state       protocol.ReviewerState
	reviewed    map[string]struct{}
	pauseReason string
	// passing is true from the moment Start claims a pass until it returns.
	passing bool
	// wake is closed and replaced on every state change.
	wake chan struct{}
	// consensusDone is non-nil while WaitForConsensus blocks.
	consensusDone chan struct{}
}

// New creates an idle Reviewer.
func New(opts ...Option) *Reviewer {
	r := &Reviewer{
		timeout:       DefaultTimeout,
		searchTimeout: DefaultSearchTimeout,
		state:         protocol.ReviewerIdle,
		reviewed:      make(map[string]struct{}),
		wake:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State returns the current reviewer state.
func (r *Reviewer) State() protocol.ReviewerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// PauseReason returns the reason passed to the last Pause.
func (r *Reviewer) PauseReason() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pauseReason
}

// Reviewed reports whether id has been reviewed in this session.
func (r *Reviewer) Reviewed(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.reviewed[id]
	return ok
}

// ReviewedCount returns the size of the reviewed set.
func (r *Reviewer) ReviewedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reviewed)
}

// setState must be called with r.mu held.
func (r *Reviewer) setState(s protocol.ReviewerState) {
	r.state = s
	close(r.wake)
	r.wake = make(chan struct{})
}

func (r *Reviewer) markReviewed(id string) {
	r.mu.Lock()
	r.reviewed[id] = struct{}{}
	r.mu.Unlock()
}

// Start reviews tasks[executorIndex+1 : executorIndex+1+LookaheadWindow] in
// order. Tasks that already carry findings or were reviewed earlier are
// marked and skipped. A paused pass blocks until Resume; a stopped pass
// returns early. Start returns nil without reviewing anything while another
// pass is active, including one that is paused or waiting on consensus.
// It returns the results of the steps it ran.
func (r *Reviewer) Start(ctx context.Context, tasks []prd.Item, executorIndex int) []StepReviewResult {
	r.mu.Lock()
	if r.passing || r.state == protocol.ReviewerStopped || r.state == protocol.ReviewerWaitingForConsensus {
		r.mu.Unlock()
		return nil
	}
	r.passing = true
	if r.state != protocol.ReviewerPaused {
		r.setState(protocol.ReviewerRunning)
	}
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.passing = false
		r.mu.Unlock()
	}()

	first := max(executorIndex+1, 0)
	last := min(first+LookaheadWindow, len(tasks))

	var results []StepReviewResult
	for i := first; i < last; i++ {
		if !r.awaitRunning(ctx) {
			return results
		}

		task := tasks[i]
		if r.Reviewed(task.ID) {
			continue
		}
		if len(task.Findings) > 0 {
			debug.Logf("review: %s already has findings, skipping", task.ID)
			r.markReviewed(task.ID)
			continue
		}

		res := r.ReviewStep(ctx, task)
		results = append(results, res)

		if res.HasFindings() && r.consensus != nil {
			if err := r.waitCoordinated(ctx, task.ID); err != nil {
				return results
			}
		}
	}

	r.mu.Lock()
	finished := r.state == protocol.ReviewerRunning
	if finished {
		r.setState(protocol.ReviewerIdle)
	}
	reviewed := len(r.reviewed)
	r.mu.Unlock()

	if finished {
		r.events.Publish(event.ReviewerCaughtUp(reviewed))
	}
	return results
}

// awaitRunning blocks while paused. It returns false once the pass must end.
func (r *Reviewer) awaitRunning(ctx context.Context) bool {
	for {
		r.mu.Lock()
		state, wake := r.state, r.wake
		r.mu.Unlock()

		switch state {
		case protocol.ReviewerRunning:
			return ctx.Err() == nil
		case protocol.ReviewerPaused:
			select {
			case <-wake:
			case <-ctx.Done():
				return false
			}
		default:
			return false
		}
	}
}

// waitCoordinated holds the pass in waiting_for_consensus until the
// coordinator resolves taskID. Only a running pass waits.
func (r *Reviewer) waitCoordinated(ctx context.Context, taskID string) error {
	r.mu.Lock()
	if r.state != protocol.ReviewerRunning {
		r.mu.Unlock()
		return nil
	}
	done, prev := r.beginConsensusWait()
	r.mu.Unlock()

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if r.consensus.WaitResolved(wctx, taskID) == nil {
			r.ConsensusCompleted()
		}
	}()
	return r.endConsensusWait(ctx, done, prev)
}

// ReviewStep reviews a single task. The work races a timer of the
// configured timeout; a timed-out review reports TimedOut with no findings.
// Cancelling ctx does not interrupt an in-flight review. The task is added
// to the reviewed set in every case.
func (r *Reviewer) ReviewStep(ctx context.Context, task prd.Item) StepReviewResult {
	r.events.Publish(event.ReviewStepStarted(task.ID, task.Title))
	start := time.Now()

	workCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	done := make(chan StepReviewResult, 1)
	go func() {
		defer cancel()
		done <- r.review(workCtx, task)
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	var res StepReviewResult
	select {
	case res = <-done:
	case <-timer.C:
		res = StepReviewResult{
			Findings: []string{},
			TimedOut: true,
			Error:    apperr.New(apperr.KindTimeout, "review "+task.ID, "timed out after %s", r.timeout).Error(),
		}
	}
	res.StepID = task.ID
	res.Duration = time.Since(start)
	if res.Findings == nil {
		res.Findings = []string{}
	}

	r.markReviewed(task.ID)

	if res.HasFindings() && r.writer != nil {
		if mr := r.writer.SetFindings(task.ID, res.Findings); !mr.Success {
			debug.Logf("review: store findings for %s: %s", task.ID, mr.Message)
			if mr.ErrorCode == protocol.CodeNotLoaded {
				r.mu.Lock()
				r.setState(protocol.ReviewerError)
				r.mu.Unlock()
			}
		}
	}

	r.events.Publish(event.ReviewStepCompleted(task.ID, res.Findings, res))
	if res.HasFindings() {
		// Raise before publishing so a subscriber can resolve right away.
		if r.consensus != nil {
			r.consensus.Raise(task.ID, res.Findings)
		}
		r.events.Publish(event.ConsensusNeeded(task.ID, res.Findings))
	}
	return res
}

func (r *Reviewer) searchEnabled() bool {
	if r.searcher == nil {
		return false
	}
	if a, ok := r.searcher.(availability); ok {
		return a.Available()
	}
	return true
}

func (r *Reviewer) review(ctx context.Context, task prd.Item) StepReviewResult {
	if !r.searchEnabled() {
		if r.analyzer == nil {
			return StepReviewResult{Success: true, Findings: []string{}}
		}
		return r.analyze(ctx, task, nil)
	}

	results := r.search(ctx, DeriveQueries(task.Title, task.Description))
	if r.analyzer == nil {
		return StepReviewResult{
			Success:  true,
			Findings: HeuristicFindings(results),
			Results:  results,
		}
	}
	return r.analyze(ctx, task, results)
}

func (r *Reviewer) analyze(ctx context.Context, task prd.Item, results []SearchResult) StepReviewResult {
	a, err := r.analyzer.Analyze(ctx, AnalysisRequest{
		Task:    task,
		Results: results,
		Model:   r.model,
		Timeout: r.timeout,
	})
	if err != nil {
		return StepReviewResult{
			Findings: []string{},
			Results:  results,
			Error:    apperr.Wrap(apperr.KindExternalFailure, "analyze "+task.ID, err).Error(),
		}
	}
	if a == nil {
		a = &Analysis{}
	}
	return StepReviewResult{
		Success:   true,
		Findings:  a.Findings,
		Results:   results,
		Reasoning: a.Reasoning,
	}
}

// search issues all queries concurrently and keeps the successful results
// in query order.
func (r *Reviewer) search(ctx context.Context, queries []string) []SearchResult {
	var wg sync.WaitGroup
	perQuery := make([][]SearchResult, len(queries))
	for i, q := range queries {
		wg.Add(1)
		go func(idx int, query string) {
			defer wg.Done()
			res, err := r.searcher.Search(ctx, query, r.searchTimeout)
			if err != nil {
				debug.Logf("review: search %q failed: %v", query, err)
				return
			}
			perQuery[idx] = res
		}(i, q)
	}
	wg.Wait()

	var all []SearchResult
	for _, res := range perQuery {
		all = append(all, res...)
	}
	return all
}

// Pause halts the lookahead pass before its next task. No-op unless running
// or waiting for consensus; a pass paused while waiting stays paused once
// the finding is resolved.
func (r *Reviewer) Pause(reason string) {
	r.mu.Lock()
	if r.state != protocol.ReviewerRunning && r.state != protocol.ReviewerWaitingForConsensus {
		r.mu.Unlock()
		return
	}
	r.pauseReason = reason
	r.setState(protocol.ReviewerPaused)
	r.mu.Unlock()
	r.events.Publish(event.ReviewerPaused(reason))
}

// Resume continues a paused pass. No-op unless paused. With no pass in
// progress the reviewer returns to idle.
func (r *Reviewer) Resume() {
	r.mu.Lock()
	if r.state != protocol.ReviewerPaused {
		r.mu.Unlock()
		return
	}
	r.pauseReason = ""
	if r.passing {
		r.setState(protocol.ReviewerRunning)
	} else {
		r.setState(protocol.ReviewerIdle)
	}
	r.mu.Unlock()
	r.events.Publish(event.ReviewerResumed())
}

// WaitForConsensus blocks in the waiting_for_consensus state until
// ConsensusCompleted is called, the reviewer is stopped, or ctx is done.
// The previous state is restored unless it changed meanwhile.
func (r *Reviewer) WaitForConsensus(ctx context.Context) error {
	r.mu.Lock()
	if r.state == protocol.ReviewerStopped {
		r.mu.Unlock()
		return fmt.Errorf("reviewer stopped")
	}
	done, prev := r.beginConsensusWait()
	r.mu.Unlock()
	return r.endConsensusWait(ctx, done, prev)
}

// beginConsensusWait must be called with r.mu held.
func (r *Reviewer) beginConsensusWait() (chan struct{}, protocol.ReviewerState) {
	prev := r.state
	if prev == protocol.ReviewerWaitingForConsensus {
		prev = protocol.ReviewerRunning
	}
	if r.consensusDone == nil {
		r.consensusDone = make(chan struct{})
	}
	r.setState(protocol.ReviewerWaitingForConsensus)
	return r.consensusDone, prev
}

func (r *Reviewer) endConsensusWait(ctx context.Context, done chan struct{}, prev protocol.ReviewerState) error {
	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	r.mu.Lock()
	if r.state == protocol.ReviewerWaitingForConsensus {
		r.setState(prev)
	}
	r.mu.Unlock()
	return err
}

// ConsensusCompleted releases a WaitForConsensus call. It reports whether
// a waiter was released.
func (r *Reviewer) ConsensusCompleted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.consensusDone == nil {
		return false
	}
	close(r.consensusDone)
	r.consensusDone = nil
	return true
}

// Stop ends the current pass and refuses new ones until Reset. An in-flight
// ReviewStep runs to completion.
func (r *Reviewer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.consensusDone != nil {
		close(r.consensusDone)
		r.consensusDone = nil
	}
	r.setState(protocol.ReviewerStopped)
}

// Reset clears the reviewed set and returns the reviewer to idle.
func (r *Reviewer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.consensusDone != nil {
		close(r.consensusDone)
		r.consensusDone = nil
	}
	r.reviewed = make(map[string]struct{})
	r.pauseReason = ""
	r.setState(protocol.ReviewerIdle)
}
