package loop

import (
	"sync"

	"github.com/alexander-akhmetov/prdloop/internal/protocol"
)

// Controller is the part of a Loop external controls act on.
type Controller interface {
	Pause()
	Resume()
	Abort()
	State() protocol.EngineState
}

// ReviewerControl is the part of the lookahead reviewer external controls
// act on. *review.Reviewer satisfies it.
type ReviewerControl interface {
	Pause(reason string)
	Resume()
	State() protocol.ReviewerState
	ConsensusCompleted() bool
}

// Registry holds the active loop and its reviewer so commands, signal
// handlers and the TUI can control them without owning them.
type Registry struct {
	mu       sync.Mutex
	active   Controller
	reviewer ReviewerControl
}

// RegisterReviewer makes rc the active reviewer. A nil rc clears it.
func (r *Registry) RegisterReviewer(rc ReviewerControl) {
	r.mu.Lock()
	r.reviewer = rc
	r.mu.Unlock()
}

// Reviewer returns the active reviewer, if any.
func (r *Registry) Reviewer() (ReviewerControl, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reviewer, r.reviewer != nil
}

// ToggleReviewerPause pauses the reviewer or resumes a paused one and
// returns the resulting state.
func (r *Registry) ToggleReviewerPause() (protocol.ReviewerState, bool) {
	rc, ok := r.Reviewer()
	if !ok {
		return "", false
	}
	if rc.State() == protocol.ReviewerPaused {
		rc.Resume()
	} else {
		rc.Pause("paused by user")
	}
	return rc.State(), true
}

// SkipConsensus releases a reviewer waiting on findings without resolving
// them. It reports whether a wait was released.
func (r *Registry) SkipConsensus() bool {
	rc, ok := r.Reviewer()
	return ok && rc.ConsensusCompleted()
}

// Register makes c the active loop, replacing any previous one.
func (r *Registry) Register(c Controller) {
	r.mu.Lock()
	r.active = c
	r.mu.Unlock()
}

// Unregister clears the active loop if it is c.
func (r *Registry) Unregister(c Controller) {
	r.mu.Lock()
	if r.active == c {
		r.active = nil
	}
	r.mu.Unlock()
}

// Active returns the active loop, if any.
func (r *Registry) Active() (Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active, r.active != nil
}

// Pause pauses the active loop. It reports whether one was registered.
func (r *Registry) Pause() bool {
	return r.with(Controller.Pause)
}

// Resume resumes the active loop.
func (r *Registry) Resume() bool {
	return r.with(Controller.Resume)
}

// Abort aborts the active loop.
func (r *Registry) Abort() bool {
	return r.with(Controller.Abort)
}

// TogglePause pauses a running loop or resumes a paused one and returns
// the resulting state.
func (r *Registry) TogglePause() (protocol.EngineState, bool) {
	c, ok := r.Active()
	if !ok {
		return "", false
	}
	if c.State() == protocol.EnginePaused {
		c.Resume()
	} else {
		c.Pause()
	}
	return c.State(), true
}

func (r *Registry) with(fn func(Controller)) bool {
	c, ok := r.Active()
	if ok {
		fn(c)
	}
	return ok
}
