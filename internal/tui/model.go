package tui

import (
	"slices"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/alexander-akhmetov/prdloop/internal/consensus"
	"github.com/alexander-akhmetov/prdloop/internal/event"
	"github.com/alexander-akhmetov/prdloop/internal/loop"
	"github.com/alexander-akhmetov/prdloop/internal/prd"
	"github.com/alexander-akhmetov/prdloop/internal/protocol"
)

// maxEvents caps the log history kept for the viewport.
const maxEvents = 5000

type runState int

const (
	stateRunning runState = iota
	statePaused
	stateStopped
	stateComplete
)

// Controller is how the TUI drives the loop. *loop.Registry satisfies it.
type Controller interface {
	TogglePause() (protocol.EngineState, bool)
	Abort() bool
	ToggleReviewerPause() (protocol.ReviewerState, bool)
	// SkipConsensus lets the reviewer move on while findings stay pending.
	SkipConsensus() bool
}

// Options configures the TUI.
type Options struct {
	PRDPath       string
	WorkingDir    string
	MaxIterations int
	Control       Controller
	// Consensus receives acknowledgements of review findings.
	Consensus *consensus.Coordinator
	// Document returns the current PRD, or nil before it is loaded.
	Document func() *prd.Document
}

// Model is the bubbletea model for the TUI.
type Model struct {
	opts Options

	name      string
	tasks     []prd.Item
	progress  prd.Progress
	taskID    string
	iteration int
	// pending holds task ids awaiting consensus, in the order raised.
	pending   []string
	findings  map[string][]string
	reviewing string
	reviewed  int
	// reviewPaused mirrors the reviewer's paused state.
	reviewPaused bool
	gitState  string
	startTime time.Time

	events      []event.Event
	logViewport viewport.Model
	spinner     spinner.Model
	renderer    *glamour.TermRenderer
	width       int
	height      int
	ready       bool

	runState runState
	result   *loop.Result
	err      error
}

// NewModel creates a Model for one run.
func NewModel(opts Options) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	m := Model{
		opts:      opts,
		findings:  make(map[string][]string),
		spinner:   s,
		runState:  stateRunning,
		startTime: time.Now(),
		gitState:  gitState(opts.WorkingDir),
	}
	m.refresh()
	return m
}

// EventMsg carries a typed event from the loop or the reviewer.
type EventMsg struct {
	Event event.Event
}

// LoopDoneMsg signals the loop has finished.
type LoopDoneMsg struct {
	Result *loop.Result
	Err    error
}

type rendererReadyMsg struct {
	renderer *glamour.TermRenderer
}

// refresh reloads the task view from the document.
func (m *Model) refresh() {
	if m.opts.Document == nil {
		return
	}
	doc := m.opts.Document()
	if doc == nil {
		return
	}
	m.name = doc.Name
	m.tasks = doc.Items()
	m.progress = doc.Progress()
}

// apply folds ev into the model state.
func (m *Model) apply(ev event.Event) {
	switch ev.Kind {
	case event.KindIterationStart:
		m.iteration = ev.Iteration
		m.taskID = ev.TaskID
		m.refresh()
	case event.KindTaskStart:
		m.dropPending(ev.TaskID)
	case event.KindTaskComplete, event.KindIterationComplete, event.KindProgress, event.KindDocumentComplete:
		m.refresh()
	case event.KindPaused:
		m.runState = statePaused
	case event.KindResumed:
		m.runState = stateRunning
	case event.KindStopped:
		if ev.Reason == protocol.StopPRDComplete {
			m.runState = stateComplete
		} else {
			m.runState = stateStopped
		}
		m.refresh()
	case event.KindReviewStepStarted:
		m.reviewing = ev.TaskID
	case event.KindReviewStepCompleted:
		m.reviewing = ""
		m.refresh()
	case event.KindReviewerPaused:
		m.reviewPaused = true
	case event.KindReviewerResumed:
		m.reviewPaused = false
	case event.KindReviewerCaughtUp:
		m.reviewing = ""
		m.reviewed = ev.Iteration
	case event.KindConsensusNeeded:
		if !slices.Contains(m.pending, ev.TaskID) {
			m.pending = append(m.pending, ev.TaskID)
		}
		m.findings[ev.TaskID] = ev.Findings
	}
}

func (m *Model) dropPending(id string) {
	m.pending = slices.DeleteFunc(m.pending, func(p string) bool { return p == id })
}

// acknowledge resolves the oldest pending findings. It reports the task id
// it acknowledged.
func (m *Model) acknowledge() (string, bool) {
	if len(m.pending) == 0 {
		return "", false
	}
	id := m.pending[0]
	m.pending = m.pending[1:]
	if m.opts.Consensus != nil {
		m.opts.Consensus.Resolve(id)
	}
	return id, true
}

func (m *Model) acknowledgeAll() int {
	n := len(m.pending)
	m.pending = nil
	if m.opts.Consensus != nil {
		m.opts.Consensus.ResolveAll()
	}
	return n
}

func (m Model) active() bool {
	return m.runState == stateRunning || m.runState == statePaused
}
