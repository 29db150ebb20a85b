// Package tui implements the terminal user interface using bubbletea.
package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/alexander-akhmetov/prdloop/internal/debug"
	"github.com/alexander-akhmetov/prdloop/internal/event"
	"github.com/alexander-akhmetov/prdloop/internal/loop"
)

// Program runs the TUI for one loop run.
type Program struct {
	program *tea.Program
}

// New creates a Program. The loop is started by the caller.
func New(opts Options) *Program {
	return &Program{program: tea.NewProgram(NewModel(opts), tea.WithAltScreen())}
}

// Run forwards events to the UI and blocks until the user quits.
func (p *Program) Run(events <-chan event.Event) error {
	go func() {
		for ev := range events {
			p.program.Send(EventMsg{Event: ev})
		}
	}()

	debug.Logf("tui: starting program")
	_, err := p.program.Run()
	return err
}

// Finish tells the UI the loop has returned.
func (p *Program) Finish(res *loop.Result, err error) {
	p.program.Send(LoopDoneMsg{Result: res, Err: err})
}
