package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/alexander-akhmetov/prdloop/internal/debug"
	"github.com/alexander-akhmetov/prdloop/internal/event"
	"github.com/alexander-akhmetov/prdloop/internal/protocol"
)

func createRendererCmd(width int) tea.Cmd {
	return func() tea.Msg {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(max(width-6, 40)),
		)
		if err != nil {
			debug.Logf("tui: failed to create glamour renderer: %v", err)
		}
		return rendererReadyMsg{renderer: renderer}
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tea.WindowSize())
}

func (m Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.active() && m.opts.Control != nil {
			m.opts.Control.Abort()
		}
		return m, tea.Quit

	case "p":
		if m.active() && m.opts.Control != nil {
			if state, ok := m.opts.Control.TogglePause(); ok {
				if state == protocol.EnginePaused {
					m.runState = statePaused
				} else {
					m.runState = stateRunning
				}
			}
		}

	case "a":
		if m.active() && m.opts.Control != nil {
			m.opts.Control.Abort()
			m.runState = stateStopped
		}

	case "v":
		if m.active() && m.opts.Control != nil {
			if state, ok := m.opts.Control.ToggleReviewerPause(); ok {
				m.reviewPaused = state == protocol.ReviewerPaused
			}
		}

	case "s":
		if len(m.pending) > 0 && m.opts.Control != nil && m.opts.Control.SkipConsensus() {
			m.appendEvent(event.Prog("reviewer continuing, findings still pending"))
		}

	case "r":
		if id, ok := m.acknowledge(); ok {
			m.appendEvent(event.Prog(fmt.Sprintf("findings for %s acknowledged", id)))
		}

	case "R":
		if n := m.acknowledgeAll(); n > 0 {
			m.appendEvent(event.Prog(fmt.Sprintf("acknowledged findings for %d tasks", n)))
		}

	case "up", "k", "down", "j", "pgup", "ctrl+u", "pgdown", "ctrl+d":
		var cmd tea.Cmd
		m.logViewport, cmd = m.logViewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

// appendEvent adds ev to the log and keeps the viewport pinned to the
// bottom if it was there.
func (m *Model) appendEvent(ev event.Event) {
	m.events = append(m.events, ev)
	if len(m.events) > maxEvents {
		m.events = m.events[len(m.events)-maxEvents:]
	}
	if !m.ready {
		return
	}
	atBottom := m.logViewport.AtBottom()
	m.logViewport.SetContent(m.renderLog())
	if atBottom {
		m.logViewport.GotoBottom()
	}
}

func (m Model) layout() (sidebarWidth, mainWidth, contentHeight int) {
	sidebarWidth = max(40, min(56, m.width*38/100))
	mainWidth = m.width - sidebarWidth - 4
	contentHeight = m.height - 3
	return sidebarWidth, mainWidth, contentHeight
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		_, mainWidth, contentHeight := m.layout()

		if !m.ready {
			m.logViewport = viewport.New(mainWidth-4, contentHeight-4)
			m.ready = true
			cmds = append(cmds, createRendererCmd(mainWidth))
		} else {
			m.logViewport.Width = mainWidth - 4
			m.logViewport.Height = contentHeight - 4
		}
		m.logViewport.SetContent(m.renderLog())

	case rendererReadyMsg:
		m.renderer = msg.renderer
		m.logViewport.SetContent(m.renderLog())

	case EventMsg:
		m.apply(msg.Event)
		m.appendEvent(msg.Event)

	case LoopDoneMsg:
		m.result = msg.Result
		m.err = msg.Err
		if m.active() {
			m.runState = stateStopped
		}
		if msg.Result != nil && msg.Result.Reason == protocol.StopPRDComplete {
			m.runState = stateComplete
		}
		m.refresh()
		if msg.Err != nil {
			m.appendEvent(event.Error(fmt.Sprintf("loop error: %v", msg.Err)))
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}
