//go:build windows

package llm

import (
	"fmt"
	"os/exec"
	"sync"
)

// processGroup kills only the direct process; Windows has no process groups.
type processGroup struct {
	cmd  *exec.Cmd
	done chan struct{}
	once sync.Once
	err  error
}

func setupProcessGroup(_ *exec.Cmd) {}

func watchProcessGroup(cmd *exec.Cmd, cancelCh <-chan struct{}) *processGroup {
	pg := &processGroup{cmd: cmd, done: make(chan struct{})}
	go func() {
		select {
		case <-cancelCh:
			if cmd.Process != nil {
				_ = cmd.Process.Kill()
			}
		case <-pg.done:
		}
	}()
	return pg
}

// Wait waits for the command to exit.
func (pg *processGroup) Wait() error {
	pg.once.Do(func() {
		pg.err = pg.cmd.Wait()
		close(pg.done)
		if pg.err != nil {
			pg.err = fmt.Errorf("command wait: %w", pg.err)
		}
	})
	return pg.err
}
