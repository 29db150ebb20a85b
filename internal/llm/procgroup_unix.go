//go:build !windows

package llm

import (
	"fmt"
	"log"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// gracefulShutdownDelay is the time to wait between SIGTERM and SIGKILL.
const gracefulShutdownDelay = 100 * time.Millisecond

// processGroup kills the whole process tree of a command when cancelCh
// closes, so tools the collaborator spawned die with it.
type processGroup struct {
	cmd  *exec.Cmd
	done chan struct{}
	once sync.Once
	err  error
}

func setupProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// watchProcessGroup must be called after cmd has started.
func watchProcessGroup(cmd *exec.Cmd, cancelCh <-chan struct{}) *processGroup {
	pg := &processGroup{cmd: cmd, done: make(chan struct{})}
	go func() {
		select {
		case <-cancelCh:
			pg.kill()
		case <-pg.done:
		}
	}()
	return pg
}

func (pg *processGroup) kill() {
	process := pg.cmd.Process
	if process == nil {
		return
	}
	pid := process.Pid
	if pid <= 0 {
		log.Printf("[llm] invalid PID %d, skipping process group kill", pid)
		return
	}

	pgid := -pid
	if err := syscall.Kill(pgid, syscall.SIGTERM); err != nil && err != syscall.ESRCH {
		log.Printf("[llm] SIGTERM failed for pgid %d: %v", pgid, err)
	}

	time.Sleep(gracefulShutdownDelay)

	if err := syscall.Kill(pgid, syscall.SIGKILL); err != nil && err != syscall.ESRCH {
		log.Printf("[llm] SIGKILL failed for pgid %d: %v", pgid, err)
	}
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
